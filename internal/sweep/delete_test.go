package sweep_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"dupsweep/internal/database"
	"dupsweep/internal/sweep"
	"dupsweep/internal/testutil"
)

var keyX = sweep.FingerprintKey{Signature: "x", SizeBytes: 100}

// scenarioFixture stores A (x,100,t3), B (x,100,t1) and C (y,50,t2).
func scenarioFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.file("A", "x", 100, t0.Add(3*time.Hour))
	f.file("B", "x", 100, t0.Add(1*time.Hour))
	f.file("C", "y", 50, t0.Add(2*time.Hour))
	f.rescan(t)
	return f
}

func TestSweepService_ListDuplicates(t *testing.T) {
	t.Parallel()
	f := scenarioFixture(t)

	listing, err := f.svc.ListDuplicates(t.Context(), owner)
	if err != nil {
		t.Fatalf("ListDuplicates() error = %v", err)
	}
	if listing.TotalGroups != 1 || len(listing.Groups) != 1 {
		t.Fatalf("TotalGroups = %d, want 1", listing.TotalGroups)
	}
	g := listing.Groups[0]
	if g.Key != keyX {
		t.Errorf("group key = %s, want %s", g.Key, keyX)
	}
	if got := recordIDs(g.Members); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("members = %v, want [A B]", got)
	}
	if listing.TotalWastedSpace != 100 || listing.TotalDuplicates != 1 {
		t.Errorf("wasted = %d, duplicates = %d; want 100, 1", listing.TotalWastedSpace, listing.TotalDuplicates)
	}
}

func TestSweepService_DeleteDuplicate(t *testing.T) {
	t.Parallel()

	t.Run("deletes all but the newest member of a group", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)

		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 1 || res.FailedOrSkippedCount != 0 || res.TotalBytesFreed != 100 {
			t.Errorf("result = %+v, want 1 deleted, 100 bytes", res)
		}
		if res.BatchID != "id-1" {
			t.Errorf("BatchID = %q, want id-1", res.BatchID)
		}
		if got := f.prov.SoftDeleted(); !slices.Equal(got, []string{"B"}) {
			t.Errorf("soft deleted = %v, want [B]", got)
		}
		if got := f.storedIDs(t); !slices.Equal(got, []string{"A", "C"}) {
			t.Errorf("stored = %v, want [A C]", got)
		}

		logs, err := f.db.ListCleanupLog(t.Context(), owner)
		if err != nil {
			t.Fatalf("ListCleanupLog() error = %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("cleanup log entries = %d, want 1", len(logs))
		}
		entry := logs[0]
		if entry.ItemExternalID != "B" || entry.BatchID != res.BatchID || entry.Action != sweep.ActionDeleteDuplicate || entry.Source != "test" {
			t.Errorf("cleanup entry = %+v", entry)
		}

		activity, err := f.db.ListActivityLog(t.Context(), owner, 10)
		if err != nil {
			t.Fatalf("ListActivityLog() error = %v", err)
		}
		if len(activity) != 1 {
			t.Fatalf("activity entries = %d, want 1", len(activity))
		}
		if activity[0].BytesSaved != 100 || activity[0].Action != "Deleted 1 duplicate file" {
			t.Errorf("activity = %+v", activity[0])
		}
		if got := f.ids.Issued(); !slices.Equal(got, []string{"id-1", "id-2", "id-3"}) {
			t.Errorf("ids issued = %v, want batch, cleanup, activity", got)
		}
	})

	t.Run("skips a member already trashed externally", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)
		f.prov.Trash("B")

		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 0 || res.FailedOrSkippedCount != 1 || res.SkippedTrashed != 1 || res.FailedCount != 0 {
			t.Errorf("result = %+v, want 0 deleted, 1 skipped as trashed", res)
		}
		if len(f.prov.SoftDeleted()) != 0 {
			t.Errorf("soft deleted = %v, want none", f.prov.SoftDeleted())
		}
		if f.prov.IsTrashed("A") {
			t.Error("A was trashed")
		}
		activity, _ := f.db.ListActivityLog(t.Context(), owner, 10)
		if len(activity) != 0 {
			t.Errorf("activity entries = %d, want 0", len(activity))
		}
	})

	t.Run("never deletes items owned by another account", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("A", "x", 100, t0.Add(time.Hour))
		f.fileOwnedBy("B", "x", 100, t0, "someone@else.com")
		f.rescan(t)

		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 0 || res.SkippedNotOwned != 1 || res.FailedOrSkippedCount != 1 {
			t.Errorf("result = %+v, want 1 skipped as not owned", res)
		}
		if f.prov.IsTrashed("B") {
			t.Error("B was trashed")
		}
		if got := f.storedIDs(t); !slices.Equal(got, []string{"A", "B"}) {
			t.Errorf("stored = %v, want [A B]", got)
		}
		if !f.logger.Contains("WARN", "not deleting item owned by another account") {
			t.Errorf("missing ownership warning in %v", f.logger.Messages())
		}
	})

	t.Run("owner comparison ignores case", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("A", "x", 100, t0.Add(time.Hour))
		f.fileOwnedBy("B", "x", 100, t0, "Tester@Example.COM")
		f.rescan(t)

		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 1 {
			t.Errorf("DeletedCount = %d, want 1", res.DeletedCount)
		}
	})

	t.Run("is idempotent once a group is cleaned", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)

		if _, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX}); err != nil {
			t.Fatalf("first DeleteDuplicate() error = %v", err)
		}
		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("second DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 0 || res.FailedOrSkippedCount != 0 {
			t.Errorf("second result = %+v, want nothing to do", res)
		}
		activity, _ := f.db.ListActivityLog(t.Context(), owner, 10)
		if len(activity) != 1 {
			t.Errorf("activity entries = %d, want 1", len(activity))
		}
	})

	t.Run("deletes a single record by external id", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)

		// Single-id deletion does not consult the group: even the original goes.
		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{ExternalID: "A"})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 1 || res.TotalBytesFreed != 100 {
			t.Errorf("result = %+v", res)
		}
		logs, _ := f.db.ListCleanupLog(t.Context(), owner)
		if len(logs) != 1 || logs[0].Action != sweep.ActionDeleteFile {
			t.Errorf("cleanup log = %+v, want one delete-file entry", logs)
		}
	})

	t.Run("resolves group members at call time", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)

		if _, err := f.svc.ListDuplicates(t.Context(), owner); err != nil {
			t.Fatalf("ListDuplicates() error = %v", err)
		}
		// B becomes the newest copy before the delete request arrives.
		f.file("B", "x", 100, t0.Add(5*time.Hour))
		f.rescan(t)

		if _, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX}); err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if got := f.prov.SoftDeleted(); !slices.Equal(got, []string{"A"}) {
			t.Errorf("soft deleted = %v, want [A]", got)
		}
	})

	t.Run("continues past per-item failures", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("keep", "x", 100, t0.Add(time.Hour))
		f.file("d1", "x", 100, t0)
		f.file("d2", "x", 100, t0)
		f.file("d3", "x", 100, t0)
		f.rescan(t)
		f.prov.FailStatus("d1", errors.New("rate limited"))
		f.prov.FailSoftDelete("d2", errors.New("permission denied"))

		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 1 || res.FailedCount != 2 || res.FailedOrSkippedCount != 2 {
			t.Errorf("result = %+v, want 1 deleted, 2 failed", res)
		}
		if got := f.storedIDs(t); !slices.Equal(got, []string{"d1", "d2", "keep"}) {
			t.Errorf("stored = %v, want failed items kept", got)
		}
		for _, item := range res.Items {
			if item.Outcome == sweep.OutcomeFailed && item.Err == nil {
				t.Errorf("failed item %s has no error", item.ExternalID)
			}
		}
	})

	t.Run("fails every item when identity is unknown", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)
		f.prov.FailIdentity(errors.New("token expired"))

		res, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 0 || res.FailedCount != 1 {
			t.Errorf("result = %+v, want 1 failed", res)
		}
		if len(f.prov.SoftDeleted()) != 0 {
			t.Error("items were soft deleted without an identity")
		}
	})
}

func TestSweepService_DeleteDuplicate_errors(t *testing.T) {
	t.Parallel()
	f := scenarioFixture(t)

	tests := []struct {
		name    string
		owner   string
		target  sweep.DeleteTarget
		wantErr error
	}{
		{name: "unknown external id", owner: owner, target: sweep.DeleteTarget{ExternalID: "nope"}, wantErr: sweep.ErrNoMatchingRecords},
		{name: "unknown group", owner: owner, target: sweep.DeleteTarget{Key: sweep.FingerprintKey{Signature: "zzz", SizeBytes: 1}}, wantErr: sweep.ErrNoMatchingRecords},
		{name: "empty target", owner: owner, target: sweep.DeleteTarget{}, wantErr: sweep.ErrInvalidTarget},
		{name: "both id and key", owner: owner, target: sweep.DeleteTarget{ExternalID: "A", Key: keyX}, wantErr: sweep.ErrInvalidTarget},
		{name: "signature without size", owner: owner, target: sweep.DeleteTarget{Key: sweep.FingerprintKey{Signature: "x"}}, wantErr: sweep.ErrInvalidTarget},
		{name: "missing owner", owner: "", target: sweep.DeleteTarget{ExternalID: "A"}, wantErr: sweep.ErrInvalidTarget},
		{name: "other owner's record", owner: "owner-2", target: sweep.DeleteTarget{ExternalID: "A"}, wantErr: sweep.ErrNoMatchingRecords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.DeleteDuplicate(t.Context(), tt.owner, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DeleteDuplicate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(f.prov.SoftDeleted()) != 0 {
		t.Errorf("rejected targets caused deletions: %v", f.prov.SoftDeleted())
	}
}

// staleStore fails every DeleteRecord call.
type staleStore struct {
	*database.SQLiteDatabase
}

func (s staleStore) DeleteRecord(ctx context.Context, ownerID, externalID string) error {
	return errors.New("disk I/O error")
}

// brokenAudit fails every append.
type brokenAudit struct {
	*database.SQLiteDatabase
}

func (b brokenAudit) AppendCleanupLog(ctx context.Context, entry *sweep.CleanupLogEntry) error {
	return errors.New("audit unavailable")
}

func (b brokenAudit) AppendActivityLog(ctx context.Context, entry *sweep.ActivityLogEntry) error {
	return errors.New("audit unavailable")
}

func TestSweepService_DeleteDuplicate_storeAndAuditFailures(t *testing.T) {
	t.Parallel()

	t.Run("store failure after external delete is logged, not returned", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)
		svc := sweep.NewSweepService(staleStore{f.db}, f.db, f.prov, f.logger, testutil.FixedClock(), f.ids)

		res, err := svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 1 {
			t.Errorf("DeletedCount = %d, want 1", res.DeletedCount)
		}
		if !f.logger.Contains("ERROR", "record left stale after external delete") {
			t.Errorf("missing stale record error in %v", f.logger.Messages())
		}
		if got := f.storedIDs(t); !slices.Equal(got, []string{"A", "B", "C"}) {
			t.Errorf("stored = %v, want B still present until rescan", got)
		}

		f.rescan(t)
		if got := f.storedIDs(t); !slices.Equal(got, []string{"A", "C"}) {
			t.Errorf("stored after rescan = %v, want [A C]", got)
		}
	})

	t.Run("audit failures do not fail the batch", func(t *testing.T) {
		t.Parallel()
		f := scenarioFixture(t)
		svc := sweep.NewSweepService(f.db, brokenAudit{f.db}, f.prov, f.logger, testutil.FixedClock(), f.ids)

		res, err := svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
		if err != nil {
			t.Fatalf("DeleteDuplicate() error = %v", err)
		}
		if res.DeletedCount != 1 || res.FailedOrSkippedCount != 0 {
			t.Errorf("result = %+v, want 1 deleted", res)
		}
		if !f.logger.Contains("ERROR", "appending cleanup log") || !f.logger.Contains("ERROR", "appending activity log") {
			t.Errorf("missing audit errors in %v", f.logger.Messages())
		}
	})
}

func TestSweepService_DeleteAllDuplicates(t *testing.T) {
	t.Parallel()

	t.Run("runs every group under its own batch", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("x1", "x", 100, t0.Add(2*time.Hour))
		f.file("x2", "x", 100, t0.Add(time.Hour))
		f.file("x3", "x", 100, t0)
		f.file("y1", "y", 10, t0.Add(time.Hour))
		f.file("y2", "y", 10, t0)
		f.file("z", "z", 5, t0)
		f.rescan(t)

		res, err := f.svc.DeleteAllDuplicates(t.Context(), owner)
		if err != nil {
			t.Fatalf("DeleteAllDuplicates() error = %v", err)
		}
		if res.DeletedCount != 3 || res.TotalBytesFreed != 210 || res.GroupsProcessed != 2 {
			t.Errorf("result = %+v, want 3 deleted, 210 bytes, 2 groups", res)
		}
		if len(res.BatchIDs) != 2 || res.BatchIDs[0] == res.BatchIDs[1] {
			t.Errorf("BatchIDs = %v, want two distinct ids", res.BatchIDs)
		}
		if got := f.storedIDs(t); !slices.Equal(got, []string{"x1", "y1", "z"}) {
			t.Errorf("stored = %v, want originals only", got)
		}

		activity, _ := f.db.ListActivityLog(t.Context(), owner, 10)
		if len(activity) != 2 {
			t.Errorf("activity entries = %d, want one per group", len(activity))
		}

		stats, err := f.svc.GetDuplicateStats(t.Context(), owner)
		if err != nil {
			t.Fatalf("GetDuplicateStats() error = %v", err)
		}
		if stats.TotalGroups != 0 {
			t.Errorf("groups left = %d, want 0", stats.TotalGroups)
		}
	})

	t.Run("a failing group does not stop the others", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("x1", "x", 100, t0.Add(time.Hour))
		f.file("x2", "x", 100, t0)
		f.file("y1", "y", 10, t0.Add(time.Hour))
		f.file("y2", "y", 10, t0)
		f.rescan(t)
		f.prov.FailSoftDelete("x2", errors.New("locked"))

		res, err := f.svc.DeleteAllDuplicates(t.Context(), owner)
		if err != nil {
			t.Fatalf("DeleteAllDuplicates() error = %v", err)
		}
		if res.DeletedCount != 1 || res.FailedOrSkippedCount != 1 || res.GroupsProcessed != 2 {
			t.Errorf("result = %+v, want 1 deleted, 1 failed", res)
		}
		if !f.prov.IsTrashed("y2") {
			t.Error("y2 was not trashed")
		}
	})

	t.Run("no duplicates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("only", "x", 1, t0)
		f.rescan(t)

		res, err := f.svc.DeleteAllDuplicates(t.Context(), owner)
		if err != nil {
			t.Fatalf("DeleteAllDuplicates() error = %v", err)
		}
		if res.DeletedCount != 0 || res.GroupsProcessed != 0 {
			t.Errorf("result = %+v, want nothing done", res)
		}
	})

	t.Run("requires an owner", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.DeleteAllDuplicates(t.Context(), ""); !errors.Is(err, sweep.ErrInvalidTarget) {
			t.Errorf("error = %v, want ErrInvalidTarget", err)
		}
	})
}

func TestSweepService_PreviewDeletion(t *testing.T) {
	t.Parallel()
	f := scenarioFixture(t)

	got, err := f.svc.PreviewDeletion(t.Context(), owner, sweep.DeleteTarget{Key: keyX})
	if err != nil {
		t.Fatalf("PreviewDeletion() error = %v", err)
	}
	if ids := recordIDs(got); !slices.Equal(ids, []string{"B"}) {
		t.Errorf("PreviewDeletion() = %v, want [B]", ids)
	}

	got, err = f.svc.PreviewDeletion(t.Context(), owner, sweep.DeleteTarget{ExternalID: "C"})
	if err != nil {
		t.Fatalf("PreviewDeletion() error = %v", err)
	}
	if ids := recordIDs(got); !slices.Equal(ids, []string{"C"}) {
		t.Errorf("PreviewDeletion() = %v, want [C]", ids)
	}

	if len(f.prov.SoftDeleted()) != 0 || len(f.ids.Issued()) != 0 {
		t.Error("PreviewDeletion() had side effects")
	}
}

func TestSweepService_DeleteAllDuplicates_ContentSignatures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	testutil.PutFiles(f.prov, testutil.TestIdentity,
		testutil.File("report.pdf", []byte("quarterly numbers"), t0),
		testutil.File("report (1).pdf", []byte("quarterly numbers"), t0.Add(time.Hour)),
		testutil.File("a.bin", []byte("aaaa"), t0),
		testutil.File("b.bin", []byte("bbbb"), t0),
	)
	f.rescan(t)

	listing, err := f.svc.ListDuplicates(t.Context(), owner)
	if err != nil {
		t.Fatalf("ListDuplicates() error = %v", err)
	}
	if listing.TotalGroups != 1 {
		t.Fatalf("TotalGroups = %d, want 1 (same size alone is not a duplicate)", listing.TotalGroups)
	}
	if got := listing.Groups[0].Key.Signature; got != testutil.SHA256Hex([]byte("quarterly numbers")) {
		t.Errorf("group signature = %q, want content checksum", got)
	}

	res, err := f.svc.DeleteAllDuplicates(t.Context(), owner)
	if err != nil {
		t.Fatalf("DeleteAllDuplicates() error = %v", err)
	}
	if res.DeletedCount != 1 || res.TotalBytesFreed != int64(len("quarterly numbers")) {
		t.Errorf("result = %+v, want 1 deleted freeing %d bytes", res, len("quarterly numbers"))
	}
	if got := f.prov.SoftDeleted(); !slices.Equal(got, []string{"report.pdf"}) {
		t.Errorf("SoftDeleted() = %v, want [report.pdf]", got)
	}
}
