package aggregator

import (
	"sync/atomic"
	"time"

	"github.com/syncpower/musicnews/article"
)

// DefaultTTL is how long a merged snapshot is served before a refresh.
const DefaultTTL = time.Hour

// Snapshot is an immutable merged article list. It is replaced wholesale and
// never edited after it is stored.
type Snapshot struct {
	Articles   []article.Article
	CapturedAt time.Time
}

// Len returns the number of articles in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Articles)
}

// Cache holds the current snapshot for the lifetime of the process.
type Cache struct {
	ttl     time.Duration
	current atomic.Pointer[Snapshot]
}

// NewCache creates an empty cache. A non-positive ttl uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl}
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Load returns the current snapshot, or nil when none was stored yet.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Fresh returns the current snapshot if it was captured less than the TTL
// before now.
func (c *Cache) Fresh(now time.Time) (*Snapshot, bool) {
	snap := c.current.Load()
	if snap == nil {
		return nil, false
	}
	if now.Sub(snap.CapturedAt) >= c.ttl {
		return snap, false
	}
	return snap, true
}

// Store replaces the current snapshot.
func (c *Cache) Store(snap *Snapshot) {
	c.current.Store(snap)
}

// Invalidate drops the current snapshot so the next read refreshes.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}
