package sweep

import (
	"context"
	"time"
)

// RecordFilter narrows ListRecords results. Zero values disable a filter.
type RecordFilter struct {
	Name           string // case-insensitive substring
	MimeType       string // exact match
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
}

// RecordSort orders ListRecords results. Use NormalizeSort to apply the
// allow-list before handing a sort to a RecordStore.
type RecordSort struct {
	Field     string
	Direction string
}

// FingerprintCount is one aggregated row of GroupByFingerprint.
type FingerprintCount struct {
	Key   FingerprintKey
	Count int
}

// CategoryTotal aggregates stored records by MimeCategory.
type CategoryTotal struct {
	Category MimeCategory
	Files    int
	Bytes    int64
}

// InsertFailure describes a record rejected during a bulk insert.
type InsertFailure struct {
	ExternalID string
	Err        error
}

// RecordStore persists FileRecords per owner.
// Lookups that find nothing return (nil, nil) or an empty slice.
type RecordStore interface {
	// DeleteAllRecords removes every record of ownerID.
	DeleteAllRecords(ctx context.Context, ownerID string) error

	// BulkInsertRecords inserts records one by one. Records that fail to
	// insert are reported and skipped.
	BulkInsertRecords(ctx context.Context, records []*FileRecord) (inserted int, failures []InsertFailure, err error)

	// ReplaceRecords deletes all records of ownerID and inserts records in a
	// single transaction. When strict is true any insert failure rolls the
	// whole replacement back; otherwise failing rows are skipped.
	ReplaceRecords(ctx context.Context, ownerID string, records []*FileRecord, strict bool) (inserted int, failures []InsertFailure, err error)

	// QueryRecords returns the owner's records matching filter in sort order.
	QueryRecords(ctx context.Context, ownerID string, filter RecordFilter, sort RecordSort) ([]*FileRecord, error)

	// FindRecordsByFingerprint returns the owner's records sharing key.
	FindRecordsByFingerprint(ctx context.Context, ownerID string, key FingerprintKey) ([]*FileRecord, error)

	// FindRecord returns a single record, or nil if it does not exist.
	FindRecord(ctx context.Context, ownerID, externalID string) (*FileRecord, error)

	// DeleteRecord removes a single record. Deleting a missing record is not an error.
	DeleteRecord(ctx context.Context, ownerID, externalID string) error

	// GroupByFingerprint aggregates eligible records by fingerprint and
	// returns only keys shared by more than one record.
	GroupByFingerprint(ctx context.Context, ownerID string) ([]FingerprintCount, error)

	// CategoryTotals aggregates the owner's records by category.
	CategoryTotals(ctx context.Context, ownerID string) ([]CategoryTotal, error)
}

// CleanupLogEntry is an append-only audit record of one deleted item.
type CleanupLogEntry struct {
	ID             string
	OwnerID        string
	Source         string
	ItemName       string
	ItemExternalID string
	Action         string
	BatchID        string
	SizeBytes      int64
	CreatedAt      time.Time
}

// ActivityLogEntry is an append-only summary shown in activity feeds.
type ActivityLogEntry struct {
	ID         string
	OwnerID    string
	Action     string
	Category   string
	BytesSaved int64
	CreatedAt  time.Time
}

// Cleanup log actions.
const (
	ActionDeleteDuplicate = "delete-duplicate"
	ActionDeleteFile      = "delete-file"
)

// AuditSink stores cleanup and activity logs. Entries are never mutated.
type AuditSink interface {
	AppendCleanupLog(ctx context.Context, entry *CleanupLogEntry) error
	AppendActivityLog(ctx context.Context, entry *ActivityLogEntry) error

	// ListCleanupLog returns the owner's cleanup log, oldest first.
	ListCleanupLog(ctx context.Context, ownerID string) ([]*CleanupLogEntry, error)

	// ListActivityLog returns up to limit activity entries, newest first.
	ListActivityLog(ctx context.Context, ownerID string, limit int) ([]*ActivityLogEntry, error)
}
