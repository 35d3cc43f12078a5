package cache

import (
	"sync"
	"time"

	"github.com/JustJay7/legal-costs-drafter/internal/costs"
	"github.com/patrickmn/go-cache"
)

// Cache holds the resolved rate schedule of each case. Schedules are
// immutable once built, so a cached value can be shared between requests.
type Cache interface {
	Get(caseRef string) (*costs.RateSchedule, bool)
	Set(caseRef string, schedule *costs.RateSchedule)
	Delete(caseRef string)
	// Flush drops every schedule but keeps the counters
	Flush()
	Clear()
	Stats() CacheStats
}

type CacheStats struct {
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Evictions  int64     `json:"evictions"`
	Size       int       `json:"size"`
	MaxSize    int       `json:"max_size"`
	LastAccess time.Time `json:"last_access"`
}

type LRUCache struct {
	cache   *cache.Cache
	mu      sync.Mutex
	stats   CacheStats
	maxSize int
}

func NewCache(maxSize int, ttl time.Duration) Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache{
		cache:   cache.New(ttl, ttl*2),
		maxSize: maxSize,
	}
}

func (c *LRUCache) Get(caseRef string) (*costs.RateSchedule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()

	if data, found := c.cache.Get(key(caseRef)); found {
		if schedule, ok := data.(*costs.RateSchedule); ok {
			c.stats.Hits++
			return schedule, true
		}
	}

	c.stats.Misses++
	return nil, false
}

func (c *LRUCache) Set(caseRef string, schedule *costs.RateSchedule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(caseRef)
	if _, exists := c.cache.Get(k); !exists && c.cache.ItemCount() >= c.maxSize {
		c.removeOldest()
	}

	c.cache.Set(k, schedule, cache.DefaultExpiration)
}

func (c *LRUCache) Delete(caseRef string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(key(caseRef))
}

func (c *LRUCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Flush()
	c.stats = CacheStats{}
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.cache.ItemCount()
	stats.MaxSize = c.maxSize
	return stats
}

// removeOldest evicts the entry closest to expiry, which is the one set
// longest ago since every entry shares the same TTL.
func (c *LRUCache) removeOldest() {
	items := c.cache.Items()
	if len(items) == 0 {
		return
	}

	var (
		oldestKey string
		oldest    int64
	)
	for k, item := range items {
		if oldestKey == "" || item.Expiration < oldest {
			oldestKey = k
			oldest = item.Expiration
		}
	}

	c.cache.Delete(oldestKey)
	c.stats.Evictions++
}

func key(caseRef string) string {
	return "rates:" + caseRef
}
