package sweep_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"dupsweep/internal/provider"
	"dupsweep/internal/sweep"
	"dupsweep/internal/testutil"
)

func seedPriorRecords(t *testing.T, f *fixture, n int) {
	t.Helper()
	var records []*sweep.FileRecord
	for i := 0; i < n; i++ {
		records = append(records, rec(fmt.Sprintf("prior-%d", i), "p", 1, t0))
	}
	if _, _, err := f.db.BulkInsertRecords(t.Context(), records); err != nil {
		t.Fatalf("BulkInsertRecords() error = %v", err)
	}
}

func TestSweepService_Rescan(t *testing.T) {
	t.Parallel()

	t.Run("pages through the whole listing and replaces the prior set", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		seedPriorRecords(t, f, 5)
		for i := 0; i < 1001; i++ {
			f.file(fmt.Sprintf("file-%04d", i), fmt.Sprintf("sig-%d", i), 10, t0)
		}

		res := f.rescan(t)
		if res.RecordCount != 1001 || res.Fetched != 1001 {
			t.Errorf("RecordCount = %d, Fetched = %d; want 1001", res.RecordCount, res.Fetched)
		}
		ids := f.storedIDs(t)
		if len(ids) != 1001 {
			t.Fatalf("stored %d records, want 1001", len(ids))
		}
		for _, id := range ids {
			if strings.HasPrefix(id, "prior-") {
				t.Fatalf("prior record %s survived the rescan", id)
			}
		}
		if got := sweep.CountNodes(res.Forest); got != 1001 {
			t.Errorf("forest has %d nodes, want 1001", got)
		}
	})

	t.Run("a listing error leaves the store untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		seedPriorRecords(t, f, 5)
		for i := 0; i < 1001; i++ {
			f.file(fmt.Sprintf("file-%04d", i), "s", 10, t0)
		}
		f.prov.FailList(2, errors.New("backend unavailable"))

		if _, err := f.svc.Rescan(t.Context(), owner); err == nil {
			t.Fatal("Rescan() expected error")
		}
		if got := len(f.storedIDs(t)); got != 5 {
			t.Errorf("stored %d records, want the 5 prior records", got)
		}
		if f.svc.LastScan(owner) != nil {
			t.Error("failed rescan should not be cached")
		}
	})

	t.Run("skips rows that fail to insert", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.file("good", "s", 10, t0)
		f.file("", "s", 10, t0) // rejected by the store

		res := f.rescan(t)
		if res.RecordCount != 1 || res.Fetched != 2 || len(res.Failed) != 1 {
			t.Errorf("result = %d stored, %d fetched, %d failed; want 1, 2, 1", res.RecordCount, res.Fetched, len(res.Failed))
		}
		if !f.logger.Contains("WARN", "record not stored") {
			t.Errorf("missing insert warning in %v", f.logger.Messages())
		}
	})

	t.Run("strict scans are all or nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.svc.SetStrictScan(true)
		seedPriorRecords(t, f, 3)
		f.file("good", "s", 10, t0)
		f.file("", "s", 10, t0)

		if _, err := f.svc.Rescan(t.Context(), owner); err == nil {
			t.Fatal("Rescan() expected error in strict mode")
		}
		if got := len(f.storedIDs(t)); got != 3 {
			t.Errorf("stored %d records, want the 3 prior records", got)
		}
	})

	t.Run("rejects a repeated page token", func(t *testing.T) {
		t.Parallel()
		prov := provider.NewMemoryProvider("test", testutil.TestIdentity, 2)
		prov.RepeatPageTokens()
		f := newFixtureWith(t, prov)
		for i := 0; i < 5; i++ {
			f.file(fmt.Sprintf("f%d", i), "s", 1, t0)
		}

		_, err := f.svc.Rescan(t.Context(), owner)
		if err == nil || !strings.Contains(err.Error(), "repeated page token") {
			t.Errorf("Rescan() error = %v, want repeated page token", err)
		}
	})

	t.Run("does not touch other owners", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		other := rec("theirs", "s", 1, t0)
		other.OwnerID = "owner-2"
		if _, _, err := f.db.BulkInsertRecords(t.Context(), []*sweep.FileRecord{other}); err != nil {
			t.Fatalf("BulkInsertRecords() error = %v", err)
		}
		f.file("mine", "s", 1, t0)
		f.rescan(t)

		recs, err := f.db.QueryRecords(t.Context(), "owner-2", sweep.RecordFilter{}, sweep.DefaultSort)
		if err != nil {
			t.Fatalf("QueryRecords() error = %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("owner-2 has %d records, want 1", len(recs))
		}
	})

	t.Run("derives categories and clamps negative sizes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.prov.Put(sweep.ListedItem{ExternalID: "v", Name: "v.mp4", SizeBytes: -5, MimeType: "video/mp4", ModifiedAt: t0}, testutil.TestIdentity)
		f.rescan(t)

		r, err := f.db.FindRecord(t.Context(), owner, "v")
		if err != nil || r == nil {
			t.Fatalf("FindRecord() = %v, %v", r, err)
		}
		if r.MimeCategory != sweep.CategoryVideo || r.SizeBytes != 0 {
			t.Errorf("record = %+v, want video with size 0", r)
		}
	})

	t.Run("requires an owner", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		if _, err := f.svc.Rescan(t.Context(), ""); err == nil {
			t.Error("Rescan(\"\") expected error")
		}
	})
}

func TestSweepService_ScanSession(t *testing.T) {
	t.Parallel()
	f := scenarioFixture(t)

	scan := f.svc.LastScan(owner)
	if scan == nil {
		t.Fatal("LastScan() = nil after rescan")
	}
	forest, err := f.svc.Tree(t.Context(), owner)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if len(forest) != len(scan.Forest) {
		t.Errorf("Tree() = %d roots, want the cached forest", len(forest))
	}

	if _, err := f.svc.DeleteDuplicate(t.Context(), owner, sweep.DeleteTarget{Key: keyX}); err != nil {
		t.Fatalf("DeleteDuplicate() error = %v", err)
	}
	if f.svc.LastScan(owner) != nil {
		t.Error("deletion should invalidate the cached scan")
	}

	forest, err = f.svc.Tree(t.Context(), owner)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if got := sweep.CountNodes(forest); got != 2 {
		t.Errorf("Tree() after delete has %d nodes, want 2", got)
	}

	// Sessions are per service.
	other := sweep.NewSweepService(f.db, f.db, f.prov, sweep.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
	if other.LastScan(owner) != nil {
		t.Error("a new service should not see another service's scan")
	}
}
