package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"dupsweep/internal/sweep"
)

// DefaultPageSize is the listing page size used when none is configured.
const DefaultPageSize = 1000

// MemoryProvider is an in-memory implementation of sweep.Provider.
// It keeps objects in a map and can be told to fail specific calls, making it
// useful for testing. This implementation is safe for concurrent use.
type MemoryProvider struct {
	name     string
	identity string
	pageSize int

	mu      sync.Mutex
	objects map[string]*memoryObject

	listErrs     map[int]error // page number (1-based) -> error
	statusErrs   map[string]error
	deleteErrs   map[string]error
	identityErr  error
	repeatTokens bool

	softDeleted []string
}

type memoryObject struct {
	item    sweep.ListedItem
	owner   string
	trashed bool
}

// NewMemoryProvider creates an empty provider acting as identity.
func NewMemoryProvider(name, identity string, pageSize int) *MemoryProvider {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &MemoryProvider{
		name:       name,
		identity:   identity,
		pageSize:   pageSize,
		objects:    make(map[string]*memoryObject),
		listErrs:   make(map[int]error),
		statusErrs: make(map[string]error),
		deleteErrs: make(map[string]error),
	}
}

// Name returns the configured source name.
func (m *MemoryProvider) Name() string {
	return m.name
}

// Put adds or replaces an object owned by owner.
func (m *MemoryProvider) Put(item sweep.ListedItem, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[item.ExternalID] = &memoryObject{item: item, owner: owner}
}

// Remove forgets an object entirely, as if it were purged from the trash.
func (m *MemoryProvider) Remove(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, externalID)
}

// Trash marks an object trashed without recording a SoftDelete call,
// simulating a deletion made outside this process.
func (m *MemoryProvider) Trash(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[externalID]; ok {
		obj.trashed = true
	}
}

// IsTrashed reports whether an object is currently in the trash.
func (m *MemoryProvider) IsTrashed(externalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[externalID]
	return ok && obj.trashed
}

// SoftDeleted returns the ids passed to successful SoftDelete calls, in order.
func (m *MemoryProvider) SoftDeleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.softDeleted...)
}

// SetIdentity changes the account the provider acts as.
func (m *MemoryProvider) SetIdentity(identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = identity
}

// FailList makes the listing of the given page (1-based) return err.
func (m *MemoryProvider) FailList(page int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErrs[page] = err
}

// FailStatus makes Status for externalID return err.
func (m *MemoryProvider) FailStatus(externalID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErrs[externalID] = err
}

// FailSoftDelete makes SoftDelete for externalID return err.
func (m *MemoryProvider) FailSoftDelete(externalID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErrs[externalID] = err
}

// FailIdentity makes Identity return err.
func (m *MemoryProvider) FailIdentity(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identityErr = err
}

// RepeatPageTokens makes every non-final page hand out the same token,
// simulating a misbehaving remote cursor.
func (m *MemoryProvider) RepeatPageTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeatTokens = true
}

// List pages through untrashed objects ordered by external id. The page
// token is the offset of the page's first object.
func (m *MemoryProvider) List(ctx context.Context, pageToken string) (*sweep.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.listErrs[offset/m.pageSize+1]; err != nil {
		return nil, err
	}

	var live []sweep.ListedItem
	for _, obj := range m.objects {
		if !obj.trashed {
			live = append(live, obj.item)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ExternalID < live[j].ExternalID })

	if offset > len(live) {
		offset = len(live)
	}
	end := offset + m.pageSize
	if end > len(live) {
		end = len(live)
	}

	page := &sweep.ListPage{Items: live[offset:end]}
	if end < len(live) {
		page.NextPageToken = strconv.Itoa(end)
		if m.repeatTokens {
			page.NextPageToken = strconv.Itoa(m.pageSize)
		}
	}
	return page, nil
}

// Status returns the trash and owner state of an object.
func (m *MemoryProvider) Status(ctx context.Context, externalID string) (*sweep.ItemStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.statusErrs[externalID]; err != nil {
		return nil, err
	}
	obj, ok := m.objects[externalID]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", externalID)
	}
	return &sweep.ItemStatus{IsTrashed: obj.trashed, Owner: obj.owner}, nil
}

// SoftDelete moves an object to the trash.
func (m *MemoryProvider) SoftDelete(ctx context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.deleteErrs[externalID]; err != nil {
		return err
	}
	obj, ok := m.objects[externalID]
	if !ok {
		return fmt.Errorf("object not found: %s", externalID)
	}
	obj.trashed = true
	m.softDeleted = append(m.softDeleted, externalID)
	return nil
}

// Identity returns the account the provider acts as.
func (m *MemoryProvider) Identity(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identityErr != nil {
		return "", m.identityErr
	}
	return m.identity, nil
}

// Compile-time check that MemoryProvider implements sweep.Provider interface
var _ sweep.Provider = (*MemoryProvider)(nil)
