package sweep_test

import (
	"testing"
	"time"

	"dupsweep/internal/database"
	"dupsweep/internal/provider"
	"dupsweep/internal/sweep"
	"dupsweep/internal/testutil"
)

const owner = "owner-1"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *sweep.SweepService
	db     *database.SQLiteDatabase
	prov   *provider.MemoryProvider
	ids    *testutil.StubIDGenerator
	logger *testutil.RecordingLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, testutil.NewTestProvider())
}

func newFixtureWith(t *testing.T, prov *provider.MemoryProvider) *fixture {
	t.Helper()
	f := &fixture{
		db:     testutil.NewTestDatabase(t),
		prov:   prov,
		ids:    testutil.NewStubIDGenerator(),
		logger: testutil.NewRecordingLogger(),
	}
	f.svc = sweep.NewSweepService(f.db, f.db, f.prov, f.logger, testutil.TickingClock(t0, time.Second), f.ids)
	return f
}

// file lists an item owned by the provider's own account.
func (f *fixture) file(id, sig string, size int64, mod time.Time) {
	f.fileOwnedBy(id, sig, size, mod, testutil.TestIdentity)
}

func (f *fixture) fileOwnedBy(id, sig string, size int64, mod time.Time, by string) {
	f.prov.Put(sweep.ListedItem{
		ExternalID:       id,
		Name:             id,
		SizeBytes:        size,
		MimeType:         "text/plain",
		ModifiedAt:       mod,
		ContentSignature: sig,
	}, by)
}

func (f *fixture) rescan(t *testing.T) *sweep.ScanResult {
	t.Helper()
	res, err := f.svc.Rescan(t.Context(), owner)
	if err != nil {
		t.Fatalf("Rescan() error = %v", err)
	}
	return res
}

func (f *fixture) storedIDs(t *testing.T) []string {
	t.Helper()
	recs, err := f.db.QueryRecords(t.Context(), owner, sweep.RecordFilter{}, sweep.RecordSort{Field: sweep.SortByName, Direction: sweep.SortAsc})
	if err != nil {
		t.Fatalf("QueryRecords() error = %v", err)
	}
	return recordIDs(recs)
}

func recordIDs(recs []*sweep.FileRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ExternalID
	}
	return ids
}

// rec builds a FileRecord directly, bypassing any provider.
func rec(id, sig string, size int64, mod time.Time) *sweep.FileRecord {
	return &sweep.FileRecord{
		OwnerID:          owner,
		ExternalID:       id,
		Name:             id,
		SizeBytes:        size,
		ContentSignature: sig,
		ModifiedAt:       mod,
	}
}
