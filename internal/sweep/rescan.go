package sweep

import (
	"context"
	"fmt"
)

// Rescan replaces the owner's records with a fresh listing from the
// provider. The listing is paged to exhaustion before anything is written;
// a listing error leaves the store untouched. The replacement runs in one
// store transaction. Unless strict scanning is enabled, rows that fail to
// insert are logged and skipped, so the stored set may be a subset of the
// listing.
func (s *SweepService) Rescan(ctx context.Context, ownerID string) (*ScanResult, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	records, err := s.fetchAll(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	inserted, failures, err := s.store.ReplaceRecords(ctx, ownerID, records, s.strictScan)
	if err != nil {
		return nil, fmt.Errorf("replacing records: %w", err)
	}
	for _, f := range failures {
		s.logger.Warn("record not stored", "id", f.ExternalID, "error", f.Err)
	}

	stored, err := s.store.QueryRecords(ctx, ownerID, RecordFilter{}, RecordSort{Field: SortByName, Direction: SortAsc})
	if err != nil {
		return nil, fmt.Errorf("reloading records: %w", err)
	}

	result := &ScanResult{
		OwnerID:     ownerID,
		RecordCount: inserted,
		Fetched:     len(records),
		Failed:      failures,
		Forest:      BuildTree(stored),
	}
	s.sessions.Put(result)

	s.logger.Info("rescan complete",
		"owner", ownerID,
		"source", s.provider.Name(),
		"fetched", result.Fetched,
		"stored", result.RecordCount,
		"failed", len(failures),
	)
	return result, nil
}

// fetchAll pages through the provider listing until it is exhausted.
func (s *SweepService) fetchAll(ctx context.Context, ownerID string) ([]*FileRecord, error) {
	var records []*FileRecord
	seenTokens := make(map[string]bool)
	token := ""
	pages := 0

	for {
		page, err := s.provider.List(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("listing page %d from %s: %w", pages+1, s.provider.Name(), err)
		}
		pages++
		for _, item := range page.Items {
			records = append(records, newRecordFromListing(ownerID, item))
		}
		s.logger.Debug("listing page fetched", "page", pages, "items", len(page.Items))

		if page.NextPageToken == "" {
			break
		}
		if seenTokens[page.NextPageToken] {
			return nil, fmt.Errorf("listing from %s repeated page token %q", s.provider.Name(), page.NextPageToken)
		}
		seenTokens[page.NextPageToken] = true
		token = page.NextPageToken
	}

	return records, nil
}
