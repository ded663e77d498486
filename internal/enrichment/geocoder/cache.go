package geocoder

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/contactops/contact-pipeline/pkg/metrics"
	pkgredis "github.com/contactops/contact-pipeline/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "geocode:"

// Lookuper is the lookup contract shared by Client and CachedClient.
type Lookuper interface {
	Lookup(ctx context.Context, query string) (*Result, bool)
}

// CachedClient fronts a Lookuper with a Redis cache. Successful results are
// cached with a TTL; misses are never cached so an address that later becomes
// resolvable is retried on the next run. Concurrent identical queries are
// collapsed through singleflight. Cache failures degrade to direct lookups.
type CachedClient struct {
	next    Lookuper
	client  *pkgredis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCached wraps next with a Redis-backed cache. m may be nil.
func NewCached(next Lookuper, client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *CachedClient {
	return &CachedClient{
		next:    next,
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "geocode-cache"),
	}
}

type lookupOutcome struct {
	result *Result
	ok     bool
}

// Lookup checks the cache before delegating to the wrapped client.
func (c *CachedClient) Lookup(ctx context.Context, query string) (*Result, bool) {
	key := buildKey(query)

	if cached, ok := c.get(ctx, key); ok {
		if c.metrics != nil {
			c.metrics.GeocodeCacheHits.Inc()
		}
		return cached, true
	}
	if c.metrics != nil {
		c.metrics.GeocodeCacheMisses.Inc()
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		result, ok := c.next.Lookup(ctx, query)
		if ok {
			c.put(ctx, key, result)
		}
		return lookupOutcome{result: result, ok: ok}, nil
	})
	outcome := v.(lookupOutcome)
	return outcome.result, outcome.ok
}

func (c *CachedClient) get(ctx context.Context, key string) (*Result, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *CachedClient) put(ctx context.Context, key string, result *Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func buildKey(query string) string {
	return fmt.Sprintf("%s%x", keyPrefix, sha256.Sum256([]byte(query)))
}
