package sweep

import (
	"context"
	"fmt"
)

// SweepService coordinates the record store, the audit sink and one
// external provider to scan an owner's corpus, report duplicates and clean
// them up.
//
// Mutating operations (Rescan, DeleteDuplicate, DeleteAllDuplicates) for
// the same owner must not run concurrently. The service does no per-owner
// locking; callers serialize them.
type SweepService struct {
	store      RecordStore
	audit      AuditSink
	provider   Provider
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	sessions   *SessionCache
	strictScan bool
}

// NewSweepService creates a new SweepService with the provided dependencies.
func NewSweepService(store RecordStore, audit AuditSink, provider Provider, logger Logger, clock Clock, idgen IDGenerator) *SweepService {
	return &SweepService{
		store:    store,
		audit:    audit,
		provider: provider,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		sessions: NewSessionCache(),
	}
}

// SetStrictScan makes Rescan all-or-nothing: a single failing insert rolls
// back the whole replacement instead of being skipped.
func (s *SweepService) SetStrictScan(strict bool) {
	s.strictScan = strict
}

// LastScan returns the most recent scan result for ownerID held by this
// service, or nil if there is none.
func (s *SweepService) LastScan(ownerID string) *ScanResult {
	return s.sessions.Get(ownerID)
}

// ListRecords returns the owner's records matching filter. Unrecognized
// sort fields or directions fall back to DefaultSort.
func (s *SweepService) ListRecords(ctx context.Context, ownerID string, filter RecordFilter, sort RecordSort) ([]*FileRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	records, err := s.store.QueryRecords(ctx, ownerID, filter, NormalizeSort(sort))
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return records, nil
}

// DuplicateListing is the full duplicate report for one owner.
type DuplicateListing struct {
	Groups           []*DuplicateGroup
	TotalGroups      int
	TotalDuplicates  int
	TotalWastedSpace int64
}

// ListDuplicates derives the owner's duplicate groups from current records.
func (s *SweepService) ListDuplicates(ctx context.Context, ownerID string) (*DuplicateListing, error) {
	groups, err := s.currentGroups(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &DuplicateListing{
		Groups:           groups,
		TotalGroups:      len(groups),
		TotalDuplicates:  CountDuplicates(groups),
		TotalWastedSpace: ComputeWastedSpace(groups),
	}, nil
}

// Tree returns the owner's records as a display forest. The forest from the
// last scan is reused while it is still current.
func (s *SweepService) Tree(ctx context.Context, ownerID string) ([]*TreeNode, error) {
	if scan := s.sessions.Get(ownerID); scan != nil {
		return scan.Forest, nil
	}
	records, err := s.ListRecords(ctx, ownerID, RecordFilter{}, RecordSort{Field: SortByName, Direction: SortAsc})
	if err != nil {
		return nil, err
	}
	return BuildTree(records), nil
}

// currentGroups loads every record of the owner and computes its groups.
func (s *SweepService) currentGroups(ctx context.Context, ownerID string) ([]*DuplicateGroup, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	records, err := s.store.QueryRecords(ctx, ownerID, RecordFilter{}, DefaultSort)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return ComputeGroups(BuildIndex(records)), nil
}
