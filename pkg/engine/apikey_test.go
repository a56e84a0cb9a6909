package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/engine"
)

func TestAPIKeyCacheServesCachedKey(t *testing.T) {
	fetches := 0
	source := engine.APIKeySourceFunc(func(ctx context.Context) (string, error) {
		fetches++
		return "key-1", nil
	})

	cache := engine.NewAPIKeyCache(source, time.Minute)

	for i := 0; i < 3; i++ {
		key, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "key-1", key)
	}
	assert.Equal(t, 1, fetches)
}

func TestAPIKeyCacheRefetchesAfterTTL(t *testing.T) {
	fetches := 0
	source := engine.APIKeySourceFunc(func(ctx context.Context) (string, error) {
		fetches++
		return "key-1", nil
	})

	cache := engine.NewAPIKeyCache(source, 10*time.Millisecond)

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestAPIKeyCacheInvalidateForcesRefetch(t *testing.T) {
	fetches := 0
	source := engine.APIKeySourceFunc(func(ctx context.Context) (string, error) {
		fetches++
		if fetches == 1 {
			return "stale", nil
		}
		return "fresh", nil
	})

	cache := engine.NewAPIKeyCache(source, time.Minute)

	key, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stale", key)

	cache.Invalidate()

	key, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", key)
	assert.Equal(t, 2, fetches)
}

func TestAPIKeyCachePropagatesSourceError(t *testing.T) {
	source := engine.APIKeySourceFunc(func(ctx context.Context) (string, error) {
		return "", errors.New("vault unreachable")
	})

	cache := engine.NewAPIKeyCache(source, time.Minute)

	_, err := cache.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault unreachable")
}
