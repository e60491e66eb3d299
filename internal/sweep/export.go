package sweep

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var cleanupLogHeader = []string{"created_at", "batch_id", "source", "action", "external_id", "name", "size_bytes"}

// ExportCleanupLog writes the owner's cleanup log to w as CSV, oldest entry
// first. Returns the number of entries written.
func (s *SweepService) ExportCleanupLog(ctx context.Context, ownerID string, w io.Writer) (int, error) {
	entries, err := s.audit.ListCleanupLog(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("listing cleanup log: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cleanupLogHeader); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.BatchID,
			e.Source,
			e.Action,
			e.ItemExternalID,
			e.ItemName,
			strconv.FormatInt(e.SizeBytes, 10),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("writing entry %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flushing csv: %w", err)
	}
	return len(entries), nil
}
