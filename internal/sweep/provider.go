package sweep

import (
	"context"
	"time"
)

// ListedItem is one object as reported by an external listing.
type ListedItem struct {
	ExternalID       string
	Name             string
	SizeBytes        int64
	MimeType         string
	ModifiedAt       time.Time
	ParentID         string
	ContentSignature string
}

// ListPage is one page of an external listing. An empty NextPageToken
// means the listing is exhausted.
type ListPage struct {
	Items         []ListedItem
	NextPageToken string
}

// ItemStatus is the live state of an external object.
type ItemStatus struct {
	IsTrashed bool
	Owner     string
}

// ListingProvider enumerates the objects of an external system.
type ListingProvider interface {
	// List returns the page identified by pageToken. The empty token
	// requests the first page.
	List(ctx context.Context, pageToken string) (*ListPage, error)
}

// MutationProvider inspects and removes objects in an external system.
type MutationProvider interface {
	// Status returns the live trash and ownership state of an object.
	Status(ctx context.Context, externalID string) (*ItemStatus, error)

	// SoftDelete moves an object to the provider's trash. It must not
	// permanently destroy data.
	SoftDelete(ctx context.Context, externalID string) error

	// Identity returns the account the provider acts as. Objects whose
	// Status().Owner differs from this value are never deleted.
	Identity(ctx context.Context) (string, error)
}

// Provider is an external system the engine can both scan and clean.
type Provider interface {
	ListingProvider
	MutationProvider

	// Name identifies the source in audit records (e.g. "local", "s3").
	Name() string
}
