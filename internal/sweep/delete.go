package sweep

import (
	"context"
	"fmt"
	"strings"
)

// DeleteTarget names what DeleteDuplicate removes: either a single record by
// ExternalID, or every non-original member of the group identified by Key.
// Exactly one of the two must be set.
type DeleteTarget struct {
	ExternalID string
	Key        FingerprintKey
}

func (t DeleteTarget) validate() error {
	hasID := t.ExternalID != ""
	hasKey := t.Key.Signature != "" || t.Key.SizeBytes != 0
	switch {
	case hasID && hasKey:
		return fmt.Errorf("%w: both external id and fingerprint given", ErrInvalidTarget)
	case hasID:
		return nil
	case !hasKey:
		return fmt.Errorf("%w: external id or fingerprint required", ErrInvalidTarget)
	case !t.Key.Valid():
		return fmt.Errorf("%w: fingerprint needs a signature and a positive size", ErrInvalidTarget)
	}
	return nil
}

// Outcome is what happened to one deletion target.
type Outcome string

const (
	OutcomeDeleted  Outcome = "deleted"
	OutcomeTrashed  Outcome = "already-trashed"
	OutcomeNotOwned Outcome = "not-owned"
	OutcomeFailed   Outcome = "failed"
)

// ItemOutcome reports the handling of a single target in a batch.
type ItemOutcome struct {
	ExternalID string
	Name       string
	SizeBytes  int64
	Outcome    Outcome
	Err        error
}

// DeleteResult summarizes one deletion batch. Callers must inspect the
// counts: a batch with failures still returns a nil error.
//
// FailedOrSkippedCount = FailedCount + SkippedTrashed + SkippedNotOwned.
type DeleteResult struct {
	BatchID              string
	DeletedCount         int
	FailedOrSkippedCount int
	FailedCount          int
	SkippedTrashed       int
	SkippedNotOwned      int
	TotalBytesFreed      int64
	Items                []ItemOutcome
}

// DeleteAllResult sums the batches run by DeleteAllDuplicates.
type DeleteAllResult struct {
	DeletedCount         int
	FailedOrSkippedCount int
	TotalBytesFreed      int64
	GroupsProcessed      int
	GroupErrors          int
	BatchIDs             []string
}

// DeleteDuplicate removes a single record or the duplicates of one group.
//
// Targets are always resolved from the store at call time. For a group the
// members are re-ranked and all but the most recently modified are
// processed. Each target is checked against the provider, soft-deleted and
// then removed from the store, one at a time; a failing item never stops the
// batch. The only error returned for a well-formed target is
// ErrNoMatchingRecords, when nothing in the store matches it.
func (s *SweepService) DeleteDuplicate(ctx context.Context, ownerID string, target DeleteTarget) (*DeleteResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidTarget)
	}
	if err := target.validate(); err != nil {
		return nil, err
	}

	if target.ExternalID != "" {
		return s.deleteSingle(ctx, ownerID, target.ExternalID)
	}
	return s.deleteGroup(ctx, ownerID, target.Key)
}

// DeleteAllDuplicates runs the group deletion once for every duplicate
// fingerprint of the owner. Groups are independent: a group that fails to
// resolve is logged and counted in GroupErrors, and the rest still run.
func (s *SweepService) DeleteAllDuplicates(ctx context.Context, ownerID string) (*DeleteAllResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidTarget)
	}

	counts, err := s.store.GroupByFingerprint(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("grouping records by fingerprint: %w", err)
	}

	total := &DeleteAllResult{}
	for _, c := range counts {
		res, err := s.deleteGroup(ctx, ownerID, c.Key)
		if err != nil {
			s.logger.Warn("skipping duplicate group", "key", c.Key.String(), "error", err)
			total.GroupErrors++
			continue
		}
		total.GroupsProcessed++
		total.DeletedCount += res.DeletedCount
		total.FailedOrSkippedCount += res.FailedOrSkippedCount
		total.TotalBytesFreed += res.TotalBytesFreed
		total.BatchIDs = append(total.BatchIDs, res.BatchID)
	}

	s.logger.Info("delete-all complete",
		"owner", ownerID,
		"groups", total.GroupsProcessed,
		"deleted", total.DeletedCount,
		"failed_or_skipped", total.FailedOrSkippedCount,
		"bytes_freed", total.TotalBytesFreed,
	)
	return total, nil
}

// PreviewDeletion resolves target exactly as DeleteDuplicate would and
// returns the records that would be processed, without contacting the
// provider or changing anything.
func (s *SweepService) PreviewDeletion(ctx context.Context, ownerID string, target DeleteTarget) ([]*FileRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidTarget)
	}
	if err := target.validate(); err != nil {
		return nil, err
	}
	if target.ExternalID != "" {
		rec, err := s.resolveSingle(ctx, ownerID, target.ExternalID)
		if err != nil {
			return nil, err
		}
		return []*FileRecord{rec}, nil
	}
	return s.resolveGroup(ctx, ownerID, target.Key)
}

func (s *SweepService) deleteSingle(ctx context.Context, ownerID, externalID string) (*DeleteResult, error) {
	rec, err := s.resolveSingle(ctx, ownerID, externalID)
	if err != nil {
		return nil, err
	}
	return s.runBatch(ctx, ownerID, []*FileRecord{rec}, ActionDeleteFile), nil
}

// deleteGroup is shared by DeleteDuplicate and DeleteAllDuplicates.
func (s *SweepService) deleteGroup(ctx context.Context, ownerID string, key FingerprintKey) (*DeleteResult, error) {
	targets, err := s.resolveGroup(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	return s.runBatch(ctx, ownerID, targets, ActionDeleteDuplicate), nil
}

func (s *SweepService) resolveSingle(ctx context.Context, ownerID, externalID string) (*FileRecord, error) {
	rec, err := s.store.FindRecord(ctx, ownerID, externalID)
	if err != nil {
		return nil, fmt.Errorf("finding record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: external id %s", ErrNoMatchingRecords, externalID)
	}
	return rec, nil
}

// resolveGroup returns every member of the group except the original.
// A group reduced to its original yields no targets and no error.
func (s *SweepService) resolveGroup(ctx context.Context, ownerID string, key FingerprintKey) ([]*FileRecord, error) {
	members, err := s.store.FindRecordsByFingerprint(ctx, ownerID, key)
	if err != nil {
		return nil, fmt.Errorf("finding group members: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: fingerprint %s", ErrNoMatchingRecords, key.String())
	}
	rankMembers(members)
	return members[1:], nil
}

// runBatch processes targets sequentially under one batch id.
func (s *SweepService) runBatch(ctx context.Context, ownerID string, targets []*FileRecord, action string) *DeleteResult {
	result := &DeleteResult{BatchID: s.idgen.New()}
	if len(targets) == 0 {
		return result
	}

	identity, identityErr := s.provider.Identity(ctx)
	if identityErr != nil {
		s.logger.Error("cannot determine provider identity", "source", s.provider.Name(), "error", identityErr)
	}

	for _, rec := range targets {
		item := ItemOutcome{ExternalID: rec.ExternalID, Name: rec.Name, SizeBytes: rec.SizeBytes}
		if identityErr != nil {
			item.Outcome = OutcomeFailed
			item.Err = fmt.Errorf("provider identity: %w", identityErr)
		} else {
			item = s.deleteOne(ctx, ownerID, rec, identity, action, result.BatchID)
		}

		switch item.Outcome {
		case OutcomeDeleted:
			result.DeletedCount++
			result.TotalBytesFreed += rec.SizeBytes
		case OutcomeTrashed:
			result.SkippedTrashed++
		case OutcomeNotOwned:
			result.SkippedNotOwned++
		default:
			result.FailedCount++
		}
		result.Items = append(result.Items, item)
	}
	result.FailedOrSkippedCount = result.FailedCount + result.SkippedTrashed + result.SkippedNotOwned

	if result.DeletedCount > 0 {
		s.sessions.Invalidate(ownerID)
		s.appendActivity(ctx, ownerID, result)
	}

	s.logger.Info("deletion batch complete",
		"batch", result.BatchID,
		"owner", ownerID,
		"deleted", result.DeletedCount,
		"failed_or_skipped", result.FailedOrSkippedCount,
		"bytes_freed", result.TotalBytesFreed,
	)
	return result
}

// deleteOne checks, trashes and forgets a single record.
func (s *SweepService) deleteOne(ctx context.Context, ownerID string, rec *FileRecord, identity, action, batchID string) ItemOutcome {
	item := ItemOutcome{ExternalID: rec.ExternalID, Name: rec.Name, SizeBytes: rec.SizeBytes}

	status, err := s.provider.Status(ctx, rec.ExternalID)
	if err != nil {
		s.logger.Warn("status check failed", "id", rec.ExternalID, "error", err)
		item.Outcome = OutcomeFailed
		item.Err = fmt.Errorf("checking status: %w", err)
		return item
	}
	if status.IsTrashed {
		s.logger.Debug("already trashed", "id", rec.ExternalID)
		item.Outcome = OutcomeTrashed
		return item
	}
	if !strings.EqualFold(status.Owner, identity) {
		s.logger.Warn("not deleting item owned by another account", "id", rec.ExternalID, "owner", status.Owner, "account", identity)
		item.Outcome = OutcomeNotOwned
		return item
	}

	if err := s.provider.SoftDelete(ctx, rec.ExternalID); err != nil {
		s.logger.Warn("soft delete failed", "id", rec.ExternalID, "error", err)
		item.Outcome = OutcomeFailed
		item.Err = fmt.Errorf("soft delete: %w", err)
		return item
	}
	item.Outcome = OutcomeDeleted

	// The external object is gone at this point. If the store delete fails the
	// record stays stale until the next rescan replaces the owner's set.
	if err := s.store.DeleteRecord(ctx, ownerID, rec.ExternalID); err != nil {
		s.logger.Error("record left stale after external delete", "id", rec.ExternalID, "error", err)
	}

	entry := &CleanupLogEntry{
		ID:             s.idgen.New(),
		OwnerID:        ownerID,
		Source:         s.provider.Name(),
		ItemName:       rec.Name,
		ItemExternalID: rec.ExternalID,
		Action:         action,
		BatchID:        batchID,
		SizeBytes:      rec.SizeBytes,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.audit.AppendCleanupLog(ctx, entry); err != nil {
		s.logger.Error("appending cleanup log", "id", rec.ExternalID, "batch", batchID, "error", err)
	}

	s.logger.Info("item trashed", "id", rec.ExternalID, "name", rec.Name, "size", rec.SizeBytes)
	return item
}

func (s *SweepService) appendActivity(ctx context.Context, ownerID string, result *DeleteResult) {
	noun := "files"
	if result.DeletedCount == 1 {
		noun = "file"
	}
	entry := &ActivityLogEntry{
		ID:         s.idgen.New(),
		OwnerID:    ownerID,
		Action:     fmt.Sprintf("Deleted %d duplicate %s", result.DeletedCount, noun),
		Category:   s.provider.Name(),
		BytesSaved: result.TotalBytesFreed,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.audit.AppendActivityLog(ctx, entry); err != nil {
		s.logger.Error("appending activity log", "batch", result.BatchID, "error", err)
	}
}
