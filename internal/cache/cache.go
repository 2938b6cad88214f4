// Package cache holds recently produced plans keyed by instruction and a
// coarse fingerprint of the agent's situation.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rahul/commander/internal/action"
)

const (
	DefaultCapacity = 20
	DefaultTTL      = 45 * time.Second
)

// Fingerprint is the coarse context mixed into every cache key.
type Fingerprint struct {
	Dimension       string
	ToolTiers       string
	InventoryBucket string
}

// IsZero reports whether no context was captured.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

func (f Fingerprint) String() string {
	if f.IsZero() {
		return ""
	}
	return fmt.Sprintf("dim:%s|tools:%s|inv:%s", f.Dimension, f.ToolTiers, f.InventoryBucket)
}

// Key combines the normalised instruction with the fingerprint.
func Key(instruction string, fp Fingerprint) string {
	key := strings.Join(strings.Fields(strings.ToLower(instruction)), " ")
	if !fp.IsZero() {
		key += "|" + fp.String()
	}
	return key
}

type entry struct {
	plan      action.Plan
	createdAt time.Time
	success   bool
}

// Stats is an informational view of the cache.
type Stats struct {
	Live     int `json:"live"`
	Expired  int `json:"expired"`
	Capacity int `json:"capacity"`
	Hits     int `json:"hits"`
	Misses   int `json:"misses"`
}

// Cache is an LRU of plans with a fixed time-to-live per entry. All access
// goes through one mutex so lookup+promote and insert+evict are atomic.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, entry]
	ttl      time.Duration
	capacity int
	now      func() time.Time
	hits     int
	misses   int
}

type Option func(*Cache)

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	// NewLRU only fails on a non-positive size.
	c.lru, _ = simplelru.NewLRU[string, entry](c.capacity, nil)
	return c
}

func (c *Cache) expired(e entry, now time.Time) bool {
	return !now.Before(e.createdAt.Add(c.ttl))
}

// Get returns a live plan and marks it most recently used. Expired entries
// are dropped on the way.
func (c *Cache) Get(instruction string, fp Fingerprint) (action.Plan, bool) {
	key := Key(instruction, fp)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return action.Plan{}, false
	}
	if c.expired(e, c.now()) || !e.success {
		c.lru.Remove(key)
		c.misses++
		return action.Plan{}, false
	}
	c.hits++
	return e.plan.Clone(), true
}

// Put stores a plan. Plans that ask the player a question are refused since
// they must never be replayed blind.
func (c *Cache) Put(instruction string, fp Fingerprint, plan action.Plan) bool {
	if !plan.IsValid() || plan.HasClarification() {
		return false
	}
	key := Key(instruction, fp)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, entry{plan: plan.Clone(), createdAt: c.now(), success: true})
	return true
}

// MarkFailed turns a cached plan into a miss, so that a plan which failed
// at execution is re-planned next time.
func (c *Cache) MarkFailed(instruction string, fp Fingerprint) {
	key := Key(instruction, fp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lru.Peek(key); ok {
		e.success = false
		c.lru.Add(key, e)
	}
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.hits, c.misses = 0, 0
}

// Len counts entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	s := Stats{Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		if c.expired(e, now) {
			s.Expired++
		} else {
			s.Live++
		}
	}
	return s
}
