package sweep

import (
	"context"
	"fmt"
	"sort"
)

// DuplicateStats is a cheap duplicate summary computed in the store.
type DuplicateStats struct {
	TotalGroups       int
	TotalDuplicates   int
	TotalWastedSpace  int64
	LargestGroupWaste int64
}

// GetDuplicateStats summarizes the owner's duplicates without loading
// individual records. It never mutates state.
func (s *SweepService) GetDuplicateStats(ctx context.Context, ownerID string) (*DuplicateStats, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	counts, err := s.store.GroupByFingerprint(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("grouping records by fingerprint: %w", err)
	}
	return summarizeCounts(counts), nil
}

func summarizeCounts(counts []FingerprintCount) *DuplicateStats {
	stats := &DuplicateStats{}
	for _, c := range counts {
		if c.Count < 2 {
			continue
		}
		waste := int64(c.Count-1) * c.Key.SizeBytes
		stats.TotalGroups++
		stats.TotalDuplicates += c.Count - 1
		stats.TotalWastedSpace += waste
		if waste > stats.LargestGroupWaste {
			stats.LargestGroupWaste = waste
		}
	}
	return stats
}

// StorageReport breaks the owner's stored bytes down by category.
type StorageReport struct {
	Categories []CategoryTotal
	TotalFiles int
	TotalBytes int64
}

// StorageReport returns per-category file counts and sizes, largest first.
func (s *SweepService) StorageReport(ctx context.Context, ownerID string) (*StorageReport, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	totals, err := s.store.CategoryTotals(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("aggregating categories: %w", err)
	}

	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Bytes != totals[j].Bytes {
			return totals[i].Bytes > totals[j].Bytes
		}
		return totals[i].Category < totals[j].Category
	})

	report := &StorageReport{Categories: totals}
	for _, t := range totals {
		report.TotalFiles += t.Files
		report.TotalBytes += t.Bytes
	}
	return report, nil
}

// ActivityFeed returns the owner's most recent activity entries.
func (s *SweepService) ActivityFeed(ctx context.Context, ownerID string, limit int) ([]*ActivityLogEntry, error) {
	entries, err := s.audit.ListActivityLog(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return entries, nil
}
