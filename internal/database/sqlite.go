package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dupsweep/internal/database/migrations"
	"dupsweep/internal/model"
	"dupsweep/internal/sweep"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores file records, cleanup and activity logs and the
// operation history in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every new connection to ":memory:" is a fresh, empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const recordColumns = `owner_id, external_id, name, size_bytes, content_signature, mime_type, mime_category, modified_at, parent_id`

const insertRecordSQL = `INSERT INTO file_records (` + recordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// sortColumns maps the sort allow-list onto columns.
var sortColumns = map[string]string{
	sweep.SortByName:       "name",
	sweep.SortBySize:       "size_bytes",
	sweep.SortByMimeType:   "mime_type",
	sweep.SortByModifiedAt: "modified_at",
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Record operations

func (s *SQLiteDatabase) DeleteAllRecords(ctx context.Context, ownerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) BulkInsertRecords(ctx context.Context, records []*sweep.FileRecord) (int, []sweep.InsertFailure, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, failures := insertRecords(ctx, tx, records, false)

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("committing transaction: %w", err)
	}
	return inserted, failures, nil
}

// ReplaceRecords swaps the owner's record set in one transaction.
// SQLite rolls back only the failing statement on a constraint error, so
// in non-strict mode the remaining rows still commit.
func (s *SQLiteDatabase) ReplaceRecords(ctx context.Context, ownerID string, records []*sweep.FileRecord, strict bool) (int, []sweep.InsertFailure, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_records WHERE owner_id = ?`, ownerID); err != nil {
		return 0, nil, fmt.Errorf("deleting existing records: %w", err)
	}

	for _, r := range records {
		if r.OwnerID != ownerID {
			return 0, nil, fmt.Errorf("record %s belongs to owner %q, not %q", r.ExternalID, r.OwnerID, ownerID)
		}
	}

	inserted, failures := insertRecords(ctx, tx, records, strict)
	if strict && len(failures) > 0 {
		return 0, failures, fmt.Errorf("inserting record %s: %w", failures[0].ExternalID, failures[0].Err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("committing transaction: %w", err)
	}
	return inserted, failures, nil
}

// insertRecords inserts rows one at a time, collecting failures. With
// stopOnError it returns at the first failure.
func insertRecords(ctx context.Context, ex execer, records []*sweep.FileRecord, stopOnError bool) (int, []sweep.InsertFailure) {
	inserted := 0
	var failures []sweep.InsertFailure
	for _, r := range records {
		_, err := ex.ExecContext(ctx, insertRecordSQL,
			r.OwnerID,
			r.ExternalID,
			r.Name,
			r.SizeBytes,
			nullString(r.ContentSignature),
			r.MimeType,
			string(r.MimeCategory),
			r.ModifiedAt.UnixNano(),
			nullString(r.ParentID),
		)
		if err != nil {
			failures = append(failures, sweep.InsertFailure{ExternalID: r.ExternalID, Err: err})
			if stopOnError {
				return inserted, failures
			}
			continue
		}
		inserted++
	}
	return inserted, failures
}

func (s *SQLiteDatabase) QueryRecords(ctx context.Context, ownerID string, filter sweep.RecordFilter, sort sweep.RecordSort) ([]*sweep.FileRecord, error) {
	var (
		where = []string{"owner_id = ?"}
		args  = []any{ownerID}
	)
	if filter.Name != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Name))+"%")
	}
	if filter.MimeType != "" {
		where = append(where, "mime_type = ?")
		args = append(args, filter.MimeType)
	}
	if !filter.ModifiedAfter.IsZero() {
		where = append(where, "modified_at > ?")
		args = append(args, filter.ModifiedAfter.UnixNano())
	}
	if !filter.ModifiedBefore.IsZero() {
		where = append(where, "modified_at < ?")
		args = append(args, filter.ModifiedBefore.UnixNano())
	}

	sort = sweep.NormalizeSort(sort)
	query := fmt.Sprintf(`SELECT %s FROM file_records WHERE %s ORDER BY %s %s, external_id ASC`,
		recordColumns, strings.Join(where, " AND "), sortColumns[sort.Field], strings.ToUpper(sort.Direction))

	records, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return records, nil
}

func (s *SQLiteDatabase) FindRecordsByFingerprint(ctx context.Context, ownerID string, key sweep.FingerprintKey) ([]*sweep.FileRecord, error) {
	records, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM file_records
		 WHERE owner_id = ? AND content_signature = ? AND size_bytes = ?
		 ORDER BY modified_at DESC, external_id ASC`,
		ownerID, key.Signature, key.SizeBytes)
	if err != nil {
		return nil, fmt.Errorf("finding records by fingerprint: %w", err)
	}
	return records, nil
}

func (s *SQLiteDatabase) FindRecord(ctx context.Context, ownerID, externalID string) (*sweep.FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM file_records WHERE owner_id = ? AND external_id = ?`,
		ownerID, externalID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteDatabase) DeleteRecord(ctx context.Context, ownerID, externalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE owner_id = ? AND external_id = ?`, ownerID, externalID)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GroupByFingerprint(ctx context.Context, ownerID string) ([]sweep.FingerprintCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_signature, size_bytes, COUNT(*) AS n
		FROM file_records
		WHERE owner_id = ?
		  AND content_signature IS NOT NULL
		  AND content_signature <> ''
		  AND size_bytes > 0
		GROUP BY content_signature, size_bytes
		HAVING COUNT(*) > 1
		ORDER BY n * size_bytes DESC, content_signature ASC, size_bytes ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("grouping by fingerprint: %w", err)
	}
	defer rows.Close()

	var counts []sweep.FingerprintCount
	for rows.Next() {
		var c sweep.FingerprintCount
		if err := rows.Scan(&c.Key.Signature, &c.Key.SizeBytes, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning fingerprint row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fingerprint rows: %w", err)
	}
	return counts, nil
}

func (s *SQLiteDatabase) CategoryTotals(ctx context.Context, ownerID string) ([]sweep.CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mime_category, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM file_records
		WHERE owner_id = ? AND (mime_type IS NULL OR mime_type <> ?)
		GROUP BY mime_category`, ownerID, sweep.FolderMimeType)
	if err != nil {
		return nil, fmt.Errorf("aggregating categories: %w", err)
	}
	defer rows.Close()

	var totals []sweep.CategoryTotal
	for rows.Next() {
		var (
			t   sweep.CategoryTotal
			cat string
		)
		if err := rows.Scan(&cat, &t.Files, &t.Bytes); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		t.Category = sweep.MimeCategory(cat)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}
	return totals, nil
}

// Audit log operations

func (s *SQLiteDatabase) AppendCleanupLog(ctx context.Context, e *sweep.CleanupLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cleanup_logs (id, owner_id, source, item_name, item_external_id, action, batch_id, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Source, e.ItemName, e.ItemExternalID, e.Action, e.BatchID, e.SizeBytes, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("appending cleanup log: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) AppendActivityLog(ctx context.Context, e *sweep.ActivityLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, owner_id, action, category, bytes_saved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Action, e.Category, e.BytesSaved, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("appending activity log: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListCleanupLog(ctx context.Context, ownerID string) ([]*sweep.CleanupLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, source, item_name, item_external_id, action, batch_id, size_bytes, created_at
		FROM cleanup_logs
		WHERE owner_id = ?
		ORDER BY created_at ASC, rowid ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing cleanup log: %w", err)
	}
	defer rows.Close()

	var entries []*sweep.CleanupLogEntry
	for rows.Next() {
		var e sweep.CleanupLogEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Source, &e.ItemName, &e.ItemExternalID, &e.Action, &e.BatchID, &e.SizeBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cleanup log: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cleanup log: %w", err)
	}
	return entries, nil
}

func (s *SQLiteDatabase) ListActivityLog(ctx context.Context, ownerID string, limit int) ([]*sweep.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, action, category, bytes_saved, created_at
		FROM activity_logs
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity log: %w", err)
	}
	defer rows.Close()

	var entries []*sweep.ActivityLogEntry
	for rows.Next() {
		var e sweep.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Action, &e.Category, &e.BytesSaved, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity log: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity log: %w", err)
	}
	return entries, nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*model.Operation, error) {
	startedAt := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, 'running')`,
		startedAt, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return &model.Operation{
		ID:         id,
		StartedAt:  startedAt,
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	_, err := s.db.Exec(`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`, time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		var op model.Operation
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies any pending migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*sweep.FileRecord, error) {
	var (
		r          sweep.FileRecord
		signature  sql.NullString
		parent     sql.NullString
		category   string
		modifiedNs int64
	)
	if err := row.Scan(&r.OwnerID, &r.ExternalID, &r.Name, &r.SizeBytes, &signature, &r.MimeType, &category, &modifiedNs, &parent); err != nil {
		return nil, err
	}
	r.ContentSignature = signature.String
	r.ParentID = parent.String
	r.MimeCategory = sweep.MimeCategory(category)
	r.ModifiedAt = time.Unix(0, modifiedNs).UTC()
	return &r, nil
}

func (s *SQLiteDatabase) queryRecords(ctx context.Context, query string, args ...any) ([]*sweep.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*sweep.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Compile-time checks that SQLiteDatabase implements the engine's store interfaces
var (
	_ sweep.RecordStore = (*SQLiteDatabase)(nil)
	_ sweep.AuditSink   = (*SQLiteDatabase)(nil)
)
