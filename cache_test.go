package accessctl

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func decisionAt(allowed bool, computedAt time.Time) *Decision {
	reason := ReasonDefaultDeny
	if allowed {
		reason = ReasonRuleMatch
	}
	return &Decision{Allowed: allowed, Reason: reason, ComputedAt: computedAt}
}

func testKey(identityID, resourceID string) DecisionKey {
	return DecisionKey{IdentityID: identityID, Kind: KindBuilding, Action: ActionRead, ResourceID: resourceID}
}

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryDecisionCache(time.Minute)
	key := testKey("u1", "B1")

	if _, ok := c.Get(key); ok {
		t.Fatalf("expected miss on empty cache")
	}
	dec := decisionAt(true, time.Now())
	if err := c.Put(key, dec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || got != dec {
		t.Fatalf("expected the stored decision back")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryDecisionCache(50 * time.Millisecond)
	key := testKey("u1", "B1")

	// The TTL is measured from ComputedAt, not from insertion: an already
	// stale decision never enters the cache.
	if err := c.Put(key, decisionAt(true, time.Now().Add(-time.Second))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected stale decision to be rejected at insert")
	}

	if err := c.Put(key, decisionAt(true, time.Now())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := c.Get(key); !ok {
		t.Fatalf("expected hit inside the TTL window")
	}
	time.Sleep(70 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected miss past the TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expected lazy eviction to remove the expired entry")
	}
}

func TestMemoryCacheInvalidateIdentity(t *testing.T) {
	c := NewMemoryDecisionCache(time.Minute)
	now := time.Now()
	for i := 0; i < 4; i++ {
		_ = c.Put(testKey("u1", fmt.Sprintf("B%d", i)), decisionAt(true, now))
	}
	_ = c.Put(testKey("u2", "B0"), decisionAt(true, now))

	c.InvalidateIdentity("u1")
	for i := 0; i < 4; i++ {
		if _, ok := c.Get(testKey("u1", fmt.Sprintf("B%d", i))); ok {
			t.Fatalf("expected every u1 entry gone")
		}
	}
	if _, ok := c.Get(testKey("u2", "B0")); !ok {
		t.Fatalf("expected other identities untouched")
	}
}

func TestMemoryCachePutRacingInvalidationIsDiscarded(t *testing.T) {
	c := NewMemoryDecisionCache(time.Minute)
	key := testKey("u1", "B1")

	// A decision computed before the invalidation mark reflects the old
	// scope and must not be inserted.
	stale := decisionAt(true, time.Now())
	c.InvalidateIdentity("u1")
	if err := c.Put(key, stale); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected pre-invalidation decision to be discarded")
	}

	// A decision computed after the invalidation is fine.
	fresh := decisionAt(false, time.Now())
	if err := c.Put(key, fresh); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, ok := c.Get(key); !ok || got != fresh {
		t.Fatalf("expected post-invalidation decision to be served")
	}
}

func TestMemoryCacheInvalidationMarksPruned(t *testing.T) {
	// Without a running sweeper, stale marks are dropped as new
	// invalidations arrive, so identity churn cannot grow the map.
	c := NewMemoryDecisionCache(20 * time.Millisecond)
	c.InvalidateIdentity("u1")
	time.Sleep(30 * time.Millisecond)
	c.InvalidateIdentity("u2")

	c.mu.RLock()
	n := len(c.invalidated)
	c.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected stale invalidation marks pruned, %d left", n)
	}
}

func TestMemoryCacheSweepExpired(t *testing.T) {
	c := NewMemoryDecisionCache(30 * time.Millisecond)
	now := time.Now()
	for i := 0; i < 3; i++ {
		_ = c.Put(testKey("u1", fmt.Sprintf("B%d", i)), decisionAt(true, now))
	}
	time.Sleep(50 * time.Millisecond)
	_ = c.Put(testKey("u1", "fresh"), decisionAt(true, time.Now()))

	if removed := c.SweepExpired(); removed != 3 {
		t.Fatalf("expected 3 expired entries swept, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected only the fresh entry left, got %d", c.Len())
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryDecisionCache(time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", g%4)
			for i := 0; i < 200; i++ {
				key := testKey(id, fmt.Sprintf("B%d", i%10))
				_ = c.Put(key, decisionAt(i%2 == 0, time.Now()))
				c.Get(key)
				if i%50 == 0 {
					c.InvalidateIdentity(id)
				}
			}
		}(g)
	}
	wg.Wait()
	c.SweepExpired()
}

func TestRistrettoCacheBasics(t *testing.T) {
	c, err := NewRistrettoDecisionCache(time.Minute, 0, 0, 0)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()
	key := testKey("u1", "B1")

	dec := decisionAt(true, time.Now())
	if err := c.Put(key, dec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || got.Allowed != dec.Allowed {
		t.Fatalf("expected the stored decision back")
	}
}

func TestRistrettoCacheInvalidateIdentity(t *testing.T) {
	c, err := NewRistrettoDecisionCache(time.Minute, 0, 0, 0)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		_ = c.Put(testKey("u1", fmt.Sprintf("B%d", i)), decisionAt(true, time.Now()))
	}
	_ = c.Put(testKey("u2", "B0"), decisionAt(true, time.Now()))

	c.InvalidateIdentity("u1")
	for i := 0; i < 3; i++ {
		if _, ok := c.Get(testKey("u1", fmt.Sprintf("B%d", i))); ok {
			t.Fatalf("expected every u1 entry gone")
		}
	}
	if _, ok := c.Get(testKey("u2", "B0")); !ok {
		t.Fatalf("expected other identities untouched")
	}

	// Pre-invalidation computations are discarded on insert, same as the
	// memory cache.
	stale := decisionAt(true, time.Now().Add(-time.Millisecond))
	_ = c.Put(testKey("u1", "B9"), stale)
	if _, ok := c.Get(testKey("u1", "B9")); ok {
		t.Fatalf("expected pre-invalidation decision to be discarded")
	}
}

func TestRistrettoCacheInvalidationMarksPruned(t *testing.T) {
	c, err := NewRistrettoDecisionCache(20*time.Millisecond, 0, 0, 0)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()

	c.InvalidateIdentity("u1")
	time.Sleep(30 * time.Millisecond)
	c.InvalidateIdentity("u2")

	c.mu.Lock()
	n := len(c.invalidated)
	c.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected stale invalidation marks pruned, %d left", n)
	}
}

func TestRistrettoCacheTTLExpiry(t *testing.T) {
	c, err := NewRistrettoDecisionCache(40*time.Millisecond, 0, 0, 0)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Close()
	key := testKey("u1", "B1")

	_ = c.Put(key, decisionAt(true, time.Now()))
	if _, ok := c.Get(key); !ok {
		t.Fatalf("expected hit inside the TTL window")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected miss past the TTL")
	}
}
