package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Guard suppresses repeat sends of one category to one recipient inside a
// short window. IsDuplicate records now as the last send whenever it
// returns false.
type Guard interface {
	IsDuplicate(ctx context.Context, recipientID string, category Category, now time.Time) (bool, error)
}

// --------------------------------------------------------------------------
// In-process guard
// --------------------------------------------------------------------------

type dedupKey struct {
	recipient string
	category  Category
}

// MemoryGuard is a process-local Guard. State is lost on restart and is not
// shared between replicas; use RedisGuard for that.
type MemoryGuard struct {
	mu       sync.Mutex
	window   time.Duration
	lastSent map[dedupKey]time.Time
}

// NewMemoryGuard creates an empty guard. A non-positive window uses
// DefaultDedupWindow.
func NewMemoryGuard(window time.Duration) *MemoryGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &MemoryGuard{
		window:   window,
		lastSent: make(map[dedupKey]time.Time),
	}
}

// IsDuplicate implements Guard.
func (g *MemoryGuard) IsDuplicate(_ context.Context, recipientID string, category Category, now time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := dedupKey{recipient: recipientID, category: category}
	if last, ok := g.lastSent[key]; ok && now.Sub(last) < g.window {
		return true, nil
	}
	g.lastSent[key] = now

	if len(g.lastSent) > dedupSweepThreshold {
		g.sweep(now)
	}
	return false, nil
}

// Len returns the number of tracked entries.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastSent)
}

func (g *MemoryGuard) sweep(now time.Time) {
	for key, last := range g.lastSent {
		if now.Sub(last) >= g.window {
			delete(g.lastSent, key)
		}
	}
}

// --------------------------------------------------------------------------
// Redis-backed guard
// --------------------------------------------------------------------------

// KeyStore is the subset of the Redis client the shared guard needs.
type KeyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

// RedisGuard shares dedup state across replicas with SET NX and a TTL equal
// to the window. Expiry is enforced by Redis, so now is only stored.
type RedisGuard struct {
	store  KeyStore
	window time.Duration
}

// NewRedisGuard creates a Redis-backed Guard.
func NewRedisGuard(store KeyStore, window time.Duration) *RedisGuard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &RedisGuard{store: store, window: window}
}

// IsDuplicate implements Guard.
func (g *RedisGuard) IsDuplicate(ctx context.Context, recipientID string, category Category, now time.Time) (bool, error) {
	key := fmt.Sprintf("dedup:%s:%s", recipientID, category)
	created, err := g.store.SetNX(ctx, key, now.UnixMilli(), g.window)
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !created, nil
}
