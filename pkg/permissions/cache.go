package permissions

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kestrelsec/kestrel/pkg/observability"
)

// DefaultCacheSize bounds the number of cached users.
const DefaultCacheSize = 4096

// DefaultCacheTTL bounds how stale a cached grant set may get.
const DefaultCacheTTL = time.Minute

// CachingResolver wraps a Resolver with a bounded-TTL LRU keyed by user
// id. Role or permission mutations must call Invalidate for the affected
// user; the TTL is only a backstop against missed invalidations.
type CachingResolver struct {
	inner   Resolver
	cache   *expirable.LRU[int64, *Grants]
	metrics *observability.Metrics
}

// NewCachingResolver wraps inner. size <= 0 and ttl <= 0 select the
// defaults; metrics may be nil.
func NewCachingResolver(inner Resolver, size int, ttl time.Duration, metrics *observability.Metrics) *CachingResolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingResolver{
		inner:   inner,
		cache:   expirable.NewLRU[int64, *Grants](size, nil, ttl),
		metrics: metrics,
	}
}

// Resolve implements Resolver.
func (c *CachingResolver) Resolve(ctx context.Context, userID int64) (*Grants, error) {
	if c.metrics != nil {
		c.metrics.ResolverLookupsTotal.Inc()
	}

	if grants, ok := c.cache.Get(userID); ok {
		if c.metrics != nil {
			c.metrics.ResolverCacheHits.Inc()
		}
		return grants, nil
	}
	if c.metrics != nil {
		c.metrics.ResolverCacheMisses.Inc()
	}

	grants, err := c.inner.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(userID, grants)
	return grants, nil
}

// Invalidate implements Invalidator.
func (c *CachingResolver) Invalidate(userID int64) {
	c.cache.Remove(userID)
}
