package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"dupsweep/internal/config"
	"dupsweep/internal/database"
	"dupsweep/internal/encryption"
	"dupsweep/internal/model"
	"dupsweep/internal/provider"
	"dupsweep/internal/sweep"
)

// Options tune how the app is wired for one command.
type Options struct {
	// Source selects a configured source by name; empty means the first.
	Source string
	// Verbose also prints debug and info records on stderr.
	Verbose bool
}

// DupsweepApp is the application layer between the CLI and SweepService.
// It constructs all dependencies from config, scopes every call to the
// configured owner and source, and manages the DB lifecycle on Close.
type DupsweepApp struct {
	cfg       *config.Config
	source    config.SourceConfig
	ownerID   string
	db        *database.SQLiteDatabase
	provider  sweep.Provider
	encryptor encryption.Encryptor
	service   *sweep.SweepService
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// NewDupsweepApp creates a fully wired DupsweepApp from the given config.
// operation identifies the CLI command being run (e.g. "Rescan", "DeleteAll").
// The caller must call Close when done.
func NewDupsweepApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*DupsweepApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	src, err := cfg.Source(opts.Source)
	if err != nil {
		return nil, err
	}

	p, err := provider.NewProviderFromConfig(ctx, src, cfg.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run 'dupsweep db migrate'): %w", err)
	}

	consoleLevel := slog.LevelWarn
	if opts.Verbose {
		consoleLevel = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, consoleLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("source", src.Name)

	svc := sweep.NewSweepService(db, db, p, &slogAdapter{l: logger}, sweep.RealClock{}, sweep.UUIDGenerator{})
	svc.SetStrictScan(cfg.Scan.Strict)

	return &DupsweepApp{
		cfg:       cfg,
		source:    src,
		ownerID:   StoreOwnerID(cfg.OwnerID, src.Name),
		db:        db,
		provider:  p,
		encryptor: enc,
		service:   svc,
		op:        NewOperation(operation, "source="+src.Name),
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// StoreOwnerID is the owner key records and logs are stored under. Each
// source keeps its own inventory, so a rescan of one source never replaces
// the records of another.
func StoreOwnerID(ownerID, sourceName string) string {
	return ownerID + "/" + sourceName
}

// OwnerID returns the store owner key this app operates on.
func (a *DupsweepApp) OwnerID() string {
	return a.ownerID
}

// Source returns the selected source config.
func (a *DupsweepApp) Source() config.SourceConfig {
	return a.source
}

// persistOperation saves the operation to the database, giving it an id.
// Only state-changing commands call this.
func (a *DupsweepApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// track persists the operation and records a failure when err is non-nil.
func (a *DupsweepApp) track(err error) error {
	if err != nil {
		a.op.Fail()
		a.logger.Error("operation failed", "operation", a.op.String(), "error", err)
	}
	return err
}

// Rescan replaces the stored inventory with a fresh listing of the source.
func (a *DupsweepApp) Rescan(ctx context.Context) (*sweep.ScanResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	res, err := a.service.Rescan(ctx, a.ownerID)
	return res, a.track(err)
}

// ListRecords returns stored records matching filter in the requested order.
func (a *DupsweepApp) ListRecords(ctx context.Context, filter sweep.RecordFilter, sort sweep.RecordSort) ([]*sweep.FileRecord, error) {
	return a.service.ListRecords(ctx, a.ownerID, filter, sort)
}

// ListDuplicates returns the current duplicate groups.
func (a *DupsweepApp) ListDuplicates(ctx context.Context) (*sweep.DuplicateListing, error) {
	return a.service.ListDuplicates(ctx, a.ownerID)
}

// PreviewDeletion lists what DeleteDuplicate would process for target.
func (a *DupsweepApp) PreviewDeletion(ctx context.Context, target sweep.DeleteTarget) ([]*sweep.FileRecord, error) {
	return a.service.PreviewDeletion(ctx, a.ownerID, target)
}

// DeleteDuplicate removes one file or the duplicates of one group.
func (a *DupsweepApp) DeleteDuplicate(ctx context.Context, target sweep.DeleteTarget) (*sweep.DeleteResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	res, err := a.service.DeleteDuplicate(ctx, a.ownerID, target)
	if err == nil && res.FailedCount > 0 {
		a.op.Fail()
	}
	return res, a.track(err)
}

// DeleteAllDuplicates removes the duplicates of every group.
func (a *DupsweepApp) DeleteAllDuplicates(ctx context.Context) (*sweep.DeleteAllResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	res, err := a.service.DeleteAllDuplicates(ctx, a.ownerID)
	if err == nil && res.GroupErrors > 0 {
		a.op.Fail()
	}
	return res, a.track(err)
}

// Stats returns the duplicate summary.
func (a *DupsweepApp) Stats(ctx context.Context) (*sweep.DuplicateStats, error) {
	return a.service.GetDuplicateStats(ctx, a.ownerID)
}

// StorageReport returns per-category usage.
func (a *DupsweepApp) StorageReport(ctx context.Context) (*sweep.StorageReport, error) {
	return a.service.StorageReport(ctx, a.ownerID)
}

// Tree returns the stored records as a forest.
func (a *DupsweepApp) Tree(ctx context.Context) ([]*sweep.TreeNode, error) {
	return a.service.Tree(ctx, a.ownerID)
}

// Activity returns the most recent activity entries.
func (a *DupsweepApp) Activity(ctx context.Context, limit int) ([]*sweep.ActivityLogEntry, error) {
	return a.service.ActivityFeed(ctx, a.ownerID, limit)
}

// History returns the most recent recorded operations.
func (a *DupsweepApp) History(limit int) ([]*model.Operation, error) {
	return a.db.ListOperations(limit)
}

// ExportAudit writes the cleanup log as CSV to w, age-encrypted when
// encrypt is set. Returns the number of entries written.
func (a *DupsweepApp) ExportAudit(ctx context.Context, w io.Writer, encrypt bool) (int, error) {
	if !encrypt {
		return a.service.ExportCleanupLog(ctx, a.ownerID, w)
	}
	if !a.encryptor.IsConfigured() {
		return 0, fmt.Errorf("encryption keys not set up (run 'dupsweep keys init')")
	}

	var plain bytes.Buffer
	n, err := a.service.ExportCleanupLog(ctx, a.ownerID, &plain)
	if err != nil {
		return 0, err
	}
	if err := a.encryptor.Encrypt(&plain, w); err != nil {
		return 0, fmt.Errorf("encrypting export: %w", err)
	}
	return n, nil
}

// UploadAudit exports the cleanup log and stores it in the configured
// export bucket under name. Returns the object location and entry count.
func (a *DupsweepApp) UploadAudit(ctx context.Context, name string, encrypt bool) (string, int, error) {
	uploader, err := provider.NewS3UploaderFromConfig(ctx, a.cfg.Export)
	if err != nil {
		return "", 0, err
	}
	return a.uploadAudit(ctx, uploader, name, encrypt)
}

type auditUploader interface {
	Upload(ctx context.Context, name string, body io.Reader) (string, error)
}

func (a *DupsweepApp) uploadAudit(ctx context.Context, u auditUploader, name string, encrypt bool) (string, int, error) {
	var buf bytes.Buffer
	n, err := a.ExportAudit(ctx, &buf, encrypt)
	if err != nil {
		return "", 0, err
	}
	loc, err := u.Upload(ctx, name, &buf)
	if err != nil {
		return "", 0, err
	}
	a.logger.Info("audit export uploaded", "location", loc, "entries", n)
	return loc, n, nil
}

// DecryptAudit decrypts an encrypted export from r into w.
func (a *DupsweepApp) DecryptAudit(passphrase string, r io.Reader, w io.Writer) error {
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	return dec.Decrypt(r, w)
}

// Close finalizes the operation record, if any, and closes all resources.
func (a *DupsweepApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// MigrateDatabase brings the configured database to the latest schema.
// It does not need a fully valid config, so `db migrate` works before
// sources are set up.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return db.Migrate()
}

// SetupKeys creates the key pair used to encrypt audit exports. Like
// MigrateDatabase it only needs the encryption section of the config.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	return enc.Setup(passphrase)
}
