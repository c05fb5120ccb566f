package consistency

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/dotcommander/continuity/internal/narrative"
)

// CacheKey identifies one validation: the same content validated against the
// same universe.
type CacheKey struct {
	UniverseID  string
	ContentType string
	ContentHash string
}

type cacheEntry struct {
	key       CacheKey
	revision  uint64
	encoded   []byte
	expiresAt time.Time
}

// ResultCache is a bounded LRU of validation results with a TTL. Entries are
// stored encoded, so every hit returns an independent, byte-identical result.
// An entry only hits while the universe is still at the revision it was
// computed against.
type ResultCache struct {
	mu      sync.Mutex
	ll      *list.List
	items   map[CacheKey]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   uint64
	misses uint64
}

// NewResultCache creates a cache. A non-positive maxSize defaults to 1000.
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ResultCache{
		ll:      list.New(),
		items:   make(map[CacheKey]*list.Element),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached result for key at revision.
func (c *ResultCache) Get(key CacheKey, revision uint64) (*narrative.ValidationResult, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if e.revision != revision || (c.ttl > 0 && c.now().After(e.expiresAt)) {
		c.removeElement(el)
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	encoded := e.encoded
	c.mu.Unlock()

	var r narrative.ValidationResult
	if err := json.Unmarshal(encoded, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// Set stores a result. It is best effort: a result that cannot be encoded is
// simply not cached.
func (c *ResultCache) Set(key CacheKey, revision uint64, r *narrative.ValidationResult) {
	encoded, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &cacheEntry{key: key, revision: revision, encoded: encoded, expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(e)
	for c.ll.Len() > c.maxSize {
		c.removeElement(c.ll.Back())
	}
}

// Purge drops every entry, for example after the policy changes.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	c.ll.Init()
	c.items = make(map[CacheKey]*list.Element)
	c.mu.Unlock()
}

// Stats returns cache statistics.
func (c *ResultCache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.ll.Len()
}

func (c *ResultCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}
