package accessctl

import (
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DefaultDecisionTTL is the maximum age a cached decision may be served at.
// Staleness beyond the TTL is a correctness bug, not a tuning knob.
const DefaultDecisionTTL = 5 * time.Minute

// DecisionKey identifies one cached decision. ResourceID is the empty string
// for kind-level attempts.
type DecisionKey struct {
	IdentityID string
	Kind       ResourceKind
	Action     Action
	ResourceID string
}

// DecisionCache memoizes decisions in front of evaluation. Implementations
// must make concurrent Get/Put/InvalidateIdentity linearizable per key and
// must never return a decision older than the TTL. Caching is a performance
// optimization only: a Put failure degrades to evaluate-without-caching and
// must never fail the request.
//
// The contract is deliberately narrow so a networked substitute can replace
// the in-process implementations without touching the evaluator.
type DecisionCache interface {
	Get(key DecisionKey) (*Decision, bool)
	Put(key DecisionKey, dec *Decision) error
	// InvalidateIdentity removes every entry for the identity and marks the
	// invalidation instant: a racing Put whose decision was computed before
	// that instant is discarded instead of inserted.
	InvalidateIdentity(identityID string)
	// SweepExpired evicts expired entries eagerly and reports how many were
	// removed. Without an active sweep, lazy eviction on read still bounds
	// staleness (but not memory).
	SweepExpired() int
}

type cacheEntry struct {
	dec       *Decision
	expiresAt time.Time
}

// MemoryDecisionCache is the default DecisionCache: a mutex-guarded map with
// lazy expiry on read. Decisions are computed outside the lock by the caller;
// the exclusive section covers only map insertion and eviction.
type MemoryDecisionCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	entries     map[DecisionKey]*cacheEntry
	invalidated map[string]time.Time
}

// NewMemoryDecisionCache returns a map-backed cache. A non-positive ttl
// falls back to DefaultDecisionTTL.
func NewMemoryDecisionCache(ttl time.Duration) *MemoryDecisionCache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &MemoryDecisionCache{
		ttl:         ttl,
		entries:     make(map[DecisionKey]*cacheEntry),
		invalidated: make(map[string]time.Time),
	}
}

// TTL reports the configured time-to-live.
func (c *MemoryDecisionCache) TTL() time.Duration { return c.ttl }

func (c *MemoryDecisionCache) Get(key DecisionKey) (*Decision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock: a fresher entry may have been
		// inserted since the read.
		if cur, ok := c.entries[key]; ok && cur == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.dec, true
}

func (c *MemoryDecisionCache) Put(key DecisionKey, dec *Decision) error {
	if dec == nil {
		return nil
	}
	expiresAt := dec.ComputedAt.Add(c.ttl)
	if time.Now().After(expiresAt) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mark, ok := c.invalidated[key.IdentityID]; ok && dec.ComputedAt.Before(mark) {
		// The identity's scope changed after this decision was computed.
		return nil
	}
	c.entries[key] = &cacheEntry{dec: dec, expiresAt: expiresAt}
	return nil
}

func (c *MemoryDecisionCache) InvalidateIdentity(identityID string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated[identityID] = now
	// A mark older than the TTL cannot affect any live Put, so pruning here
	// bounds the map under identity churn even without an active sweeper.
	for id, mark := range c.invalidated {
		if now.Sub(mark) > c.ttl {
			delete(c.invalidated, id)
		}
	}
	for key := range c.entries {
		if key.IdentityID == identityID {
			delete(c.entries, key)
		}
	}
}

func (c *MemoryDecisionCache) SweepExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	// Invalidation marks only matter for puts racing the invalidation; after
	// a full TTL any such computation has long finished.
	for id, mark := range c.invalidated {
		if now.Sub(mark) > c.ttl {
			delete(c.invalidated, id)
		}
	}
	return removed
}

// Len reports the number of live entries (expired ones included until swept).
func (c *MemoryDecisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RistrettoDecisionCache backs the DecisionCache contract with a ristretto
// cache, which bounds memory by cost under heavy key cardinality. Ristretto
// cannot enumerate keys, so a per-identity key index is kept alongside to
// implement InvalidateIdentity.
type RistrettoDecisionCache struct {
	ttl   time.Duration
	cache *ristretto.Cache

	mu             sync.Mutex
	keysByIdentity map[string]map[string]struct{}
	invalidated    map[string]time.Time
}

// NewRistrettoDecisionCache builds a ristretto-backed cache. numCounters,
// maxCost and bufferItems are passed through; zero values get modest
// defaults suitable for a per-process decision cache.
func NewRistrettoDecisionCache(ttl time.Duration, numCounters, maxCost, bufferItems int64) (*RistrettoDecisionCache, error) {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	if numCounters <= 0 {
		numCounters = 1 << 16
	}
	if maxCost <= 0 {
		maxCost = 1 << 14
	}
	if bufferItems <= 0 {
		bufferItems = 64
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoDecisionCache{
		ttl:            ttl,
		cache:          rc,
		keysByIdentity: make(map[string]map[string]struct{}),
		invalidated:    make(map[string]time.Time),
	}, nil
}

func (c *RistrettoDecisionCache) rawKey(key DecisionKey) string {
	return strings.Join([]string{key.IdentityID, string(key.Kind), string(key.Action), key.ResourceID}, "\x1f")
}

func (c *RistrettoDecisionCache) Get(key DecisionKey) (*Decision, bool) {
	v, ok := c.cache.Get(c.rawKey(key))
	if !ok {
		return nil, false
	}
	dec, ok := v.(*Decision)
	if !ok {
		return nil, false
	}
	// Ristretto's own TTL is authoritative for eviction, but the contract is
	// measured from ComputedAt, so re-check here.
	if time.Since(dec.ComputedAt) > c.ttl {
		c.cache.Del(c.rawKey(key))
		return nil, false
	}
	c.mu.Lock()
	mark, invalidated := c.invalidated[key.IdentityID]
	c.mu.Unlock()
	if invalidated && dec.ComputedAt.Before(mark) {
		c.cache.Del(c.rawKey(key))
		return nil, false
	}
	return dec, true
}

func (c *RistrettoDecisionCache) Put(key DecisionKey, dec *Decision) error {
	if dec == nil {
		return nil
	}
	remaining := c.ttl - time.Since(dec.ComputedAt)
	if remaining <= 0 {
		return nil
	}
	raw := c.rawKey(key)
	c.mu.Lock()
	if mark, ok := c.invalidated[key.IdentityID]; ok && dec.ComputedAt.Before(mark) {
		c.mu.Unlock()
		return nil
	}
	keys, ok := c.keysByIdentity[key.IdentityID]
	if !ok {
		keys = make(map[string]struct{})
		c.keysByIdentity[key.IdentityID] = keys
	}
	keys[raw] = struct{}{}
	c.mu.Unlock()

	// Ristretto may reject an admission; that is the degrade-to-uncached
	// path, not an error.
	c.cache.SetWithTTL(raw, dec, 1, remaining)
	c.cache.Wait()
	return nil
}

func (c *RistrettoDecisionCache) InvalidateIdentity(identityID string) {
	now := time.Now()
	c.mu.Lock()
	c.invalidated[identityID] = now
	for id, mark := range c.invalidated {
		if now.Sub(mark) > c.ttl {
			delete(c.invalidated, id)
		}
	}
	keys := c.keysByIdentity[identityID]
	delete(c.keysByIdentity, identityID)
	c.mu.Unlock()
	for raw := range keys {
		c.cache.Del(raw)
	}
}

func (c *RistrettoDecisionCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	now := time.Now()
	for id, keys := range c.keysByIdentity {
		for raw := range keys {
			if _, ok := c.cache.Get(raw); !ok {
				delete(keys, raw)
				removed++
			}
		}
		if len(keys) == 0 {
			delete(c.keysByIdentity, id)
		}
	}
	for id, mark := range c.invalidated {
		if now.Sub(mark) > c.ttl {
			delete(c.invalidated, id)
		}
	}
	return removed
}

// Close releases the underlying ristretto resources.
func (c *RistrettoDecisionCache) Close() {
	c.cache.Close()
}
