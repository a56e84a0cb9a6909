package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultAPIKeyTTL bounds how long a fetched engine API key stays cached.
// The key rotates out-of-band, so the cache is short-lived and supports
// explicit invalidation on rotation.
const DefaultAPIKeyTTL = 60 * time.Second

// APIKeySource resolves the engine's current API key.
type APIKeySource interface {
	FetchAPIKey(ctx context.Context) (string, error)
}

// APIKeySourceFunc adapts a function to an APIKeySource.
type APIKeySourceFunc func(ctx context.Context) (string, error)

func (f APIKeySourceFunc) FetchAPIKey(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticAPIKey returns a source that always yields the given key.
func StaticAPIKey(key string) APIKeySource {
	return APIKeySourceFunc(func(ctx context.Context) (string, error) {
		return key, nil
	})
}

// APIKeyCache caches the engine API key with a TTL. It is an explicit,
// injected dependency of the Client rather than process-wide state.
type APIKeyCache struct {
	source APIKeySource
	ttl    time.Duration

	mu        sync.Mutex
	key       string
	fetchedAt time.Time
}

// NewAPIKeyCache creates a cache over the given source. A zero ttl uses
// DefaultAPIKeyTTL.
func NewAPIKeyCache(source APIKeySource, ttl time.Duration) *APIKeyCache {
	if ttl <= 0 {
		ttl = DefaultAPIKeyTTL
	}
	return &APIKeyCache{
		source: source,
		ttl:    ttl,
	}
}

// Get returns the cached key, re-fetching when the TTL has lapsed.
func (c *APIKeyCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != "" && time.Since(c.fetchedAt) < c.ttl {
		return c.key, nil
	}

	key, err := c.source.FetchAPIKey(ctx)
	if err != nil {
		return "", err
	}

	c.key = key
	c.fetchedAt = time.Now()
	return key, nil
}

// Invalidate drops the cached key. Called when the engine reports the key
// rotated out from under us.
func (c *APIKeyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = ""
	c.fetchedAt = time.Time{}
}
