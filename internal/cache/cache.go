// Package cache implements the read-through wrapper spec.md §9 calls
// "decorator-style caching on read paths", backed by Redis. It is kept
// out of the core's hot path: only the notification flush's endpoint
// lookup goes through it, since that is the one read the spec names as
// cacheable UI/reporting-adjacent data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lookout/monitor/internal/domain"
	"github.com/lookout/monitor/internal/persistence"
)

// CachingPersistence decorates a persistence.Persistence with a
// Redis-backed read-through cache for endpoint/workspace lookups.
type CachingPersistence struct {
	persistence.Persistence
	redis *redis.Client
	ttl   time.Duration
}

// New connects to Redis and wraps next with a read-through cache.
func New(ctx context.Context, addr string, ttl time.Duration, next persistence.Persistence) (*CachingPersistence, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	return &CachingPersistence{
		Persistence: next,
		redis:       client,
		ttl:         ttl,
	}, nil
}

// Close releases the Redis connection.
func (c *CachingPersistence) Close() error {
	return c.redis.Close()
}

// SelectEndpointsWithWorkspaceNames overrides the embedded Persistence to
// serve from Redis on a hit and populate it on a miss.
func (c *CachingPersistence) SelectEndpointsWithWorkspaceNames(ctx context.Context, ids []uuid.UUID) ([]domain.EndpointWorkspaceView, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	key := cacheKey(ids)
	if cached, ok := c.readThrough(ctx, key); ok {
		return cached, nil
	}

	views, err := c.Persistence.SelectEndpointsWithWorkspaceNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(views); err == nil {
		// Best-effort: a cache write failure should never fail the read.
		c.redis.Set(ctx, key, data, c.ttl)
	}
	return views, nil
}

func (c *CachingPersistence) readThrough(ctx context.Context, key string) ([]domain.EndpointWorkspaceView, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var views []domain.EndpointWorkspaceView
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, false
	}
	return views, true
}

func cacheKey(ids []uuid.UUID) string {
	sorted := make([]string, len(ids))
	for i, id := range ids {
		sorted[i] = id.String()
	}
	sort.Strings(sorted)
	return fmt.Sprintf("endpoint_workspace_view:%s", strings.Join(sorted, ","))
}
