// Package cache is the redis-backed resolve cache: TTL'd result entries
// keyed by fingerprint, precise invalidation through per-prompt and
// per-scene index sets, and single-flighted computation.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	resolveKeyPrefix = "prompthub:resolve:"
	promptIdxPrefix  = "prompthub:idx:prompt:"
	sceneIdxPrefix   = "prompthub:idx:scene:"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prompthub_resolve_cache_hits_total",
		Help: "Resolve cache hits.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prompthub_resolve_cache_misses_total",
		Help: "Resolve cache misses.",
	})
)

// Cache implements the engine's ResolveCache over redis.
type Cache struct {
	rdb   redis.UniversalClient
	group singleflight.Group
}

// New wraps a redis client.
func New(rdb redis.UniversalClient) *Cache {
	return &Cache{rdb: rdb}
}

// Get returns the cached value for the fingerprint, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, resolveKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cacheHits.Inc()
	return data, nil
}

// Set stores the value under the fingerprint and records the fingerprint in
// the index set of every prompt in the plan plus the scene, so writes can
// invalidate precisely. Index sets expire alongside the entries they track.
func (c *Cache) Set(ctx context.Context, fingerprint string, value []byte, ttl time.Duration, promptIDs []string, sceneID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, resolveKeyPrefix+fingerprint, value, ttl)
	for _, id := range promptIDs {
		key := promptIdxPrefix + id
		pipe.SAdd(ctx, key, fingerprint)
		pipe.Expire(ctx, key, ttl)
	}
	sceneKey := sceneIdxPrefix + sceneID
	pipe.SAdd(ctx, sceneKey, fingerprint)
	pipe.Expire(ctx, sceneKey, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Do collapses concurrent computations of the same fingerprint into one.
func (c *Cache) Do(fingerprint string, fn func() (any, error)) (any, error) {
	v, err, _ := c.group.Do(fingerprint, fn)
	return v, err
}

// InvalidatePrompt drops every cached resolve whose plan contains the prompt.
func (c *Cache) InvalidatePrompt(ctx context.Context, promptID string) error {
	return c.dropIndexed(ctx, promptIdxPrefix+promptID)
}

// InvalidateScene drops every cached resolve of the scene.
func (c *Cache) InvalidateScene(ctx context.Context, sceneID string) error {
	return c.dropIndexed(ctx, sceneIdxPrefix+sceneID)
}

func (c *Cache) dropIndexed(ctx context.Context, indexKey string) error {
	fingerprints, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := c.rdb.TxPipeline()
	for _, fp := range fingerprints {
		pipe.Del(ctx, resolveKeyPrefix+fp)
	}
	pipe.Del(ctx, indexKey)
	_, err = pipe.Exec(ctx)
	return err
}
