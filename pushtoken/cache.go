package pushtoken

import (
	"sync"
	"time"

	"github.com/CarMarket/pushsync/models"
)

// verificationCache entries carry their own expiry so a writer can choose
// a shorter life for less certain results.
type verificationCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	result  models.VerificationResult
	expires time.Time
}

func newVerificationCache(now func() time.Time) *verificationCache {
	return &verificationCache{entries: make(map[string]cacheEntry), now: now}
}

func (c *verificationCache) get(userID string) (models.VerificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return models.VerificationResult{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, userID)
		return models.VerificationResult{}, false
	}
	return e.result, true
}

func (c *verificationCache) put(userID string, result models.VerificationResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{result: result, expires: c.now().Add(ttl)}
}

func (c *verificationCache) invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
