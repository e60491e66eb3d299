package sweep

import "sync"

// ScanResult is the outcome of one Rescan.
type ScanResult struct {
	OwnerID     string
	RecordCount int
	Fetched     int
	Failed      []InsertFailure
	Forest      []*TreeNode
}

// SessionCache holds the latest scan result per owner. It belongs to a
// single SweepService; nothing is shared between services.
type SessionCache struct {
	mu    sync.RWMutex
	scans map[string]*ScanResult
}

// NewSessionCache creates an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{scans: make(map[string]*ScanResult)}
}

// Put records result as the latest scan for its owner.
func (c *SessionCache) Put(result *ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans[result.OwnerID] = result
}

// Get returns the latest scan for ownerID, or nil.
func (c *SessionCache) Get(ownerID string) *ScanResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scans[ownerID]
}

// Invalidate drops the cached scan for ownerID. Deletions call this since
// the cached forest no longer matches the store.
func (c *SessionCache) Invalidate(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scans, ownerID)
}
