package platform

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var groupCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{ //nolint:gochecknoglobals
	Namespace: "rolemirror",
	Name:      "group_cache_lookups_total",
	Help:      "Group lookups served by the in-memory group cache, by outcome.",
}, []string{"outcome"})

// CachedClient keeps recently fetched groups in an expiring LRU.
type CachedClient struct {
	Client
	groups *expirable.LRU[string, *Group]
}

// WithGroupCache wraps c with a group cache of size entries living ttl.
func WithGroupCache(c Client, size int, ttl time.Duration) *CachedClient {
	return &CachedClient{
		Client: c,
		groups: expirable.NewLRU[string, *Group](size, nil, ttl),
	}
}

// FetchGroup implements Client.
func (c *CachedClient) FetchGroup(ctx context.Context, groupID string) (*Group, error) {
	if g, ok := c.groups.Get(groupID); ok {
		groupCacheLookups.WithLabelValues("hit").Inc()

		return g, nil
	}

	groupCacheLookups.WithLabelValues("miss").Inc()

	g, err := c.Client.FetchGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	c.groups.Add(groupID, g)

	return g, nil
}

// Forget drops a cached group.
func (c *CachedClient) Forget(groupID string) {
	c.groups.Remove(groupID)
}
