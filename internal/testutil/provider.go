package testutil

import (
	"time"

	"dupsweep/internal/provider"
	"dupsweep/internal/sweep"
)

// TestIdentity is the account test providers act as.
const TestIdentity = "tester@example.com"

// NewTestProvider creates an empty in-memory provider named "test" acting
// as TestIdentity.
func NewTestProvider() *provider.MemoryProvider {
	return provider.NewMemoryProvider("test", TestIdentity, provider.DefaultPageSize)
}

// File builds a listed file whose signature is the SHA-256 of content.
func File(id string, content []byte, modifiedAt time.Time) sweep.ListedItem {
	return sweep.ListedItem{
		ExternalID:       id,
		Name:             id,
		SizeBytes:        int64(len(content)),
		MimeType:         "application/octet-stream",
		ModifiedAt:       modifiedAt,
		ContentSignature: SHA256Hex(content),
	}
}

// PutFiles adds items to p, all owned by owner.
func PutFiles(p *provider.MemoryProvider, owner string, items ...sweep.ListedItem) {
	for _, item := range items {
		p.Put(item, owner)
	}
}
