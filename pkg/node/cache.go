// ABOUTME: TTL cache for node REST lookups
// ABOUTME: ccache storage with singleflight so concurrent misses share one request
package node

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

type lookupCache[T any] struct {
	c     *ccache.Cache[T]
	ttl   time.Duration
	group singleflight.Group
}

// newLookupCache returns nil when caching is disabled; a nil cache always fetches.
func newLookupCache[T any](size int64, ttl time.Duration) *lookupCache[T] {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &lookupCache[T]{
		c: ccache.New(
			ccache.Configure[T]().
				MaxSize(size).
				GetsPerPromote(3).
				ItemsToPrune(1),
		),
		ttl: ttl,
	}
}

// Fetch returns the cached value for key or runs fetch once for all
// concurrent callers. The shared fetch runs on a context detached from any
// single caller; each caller stops waiting when its own ctx ends.
func (c *lookupCache[T]) Fetch(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return fetch(ctx)
	}
	if item := c.c.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		item, err := c.c.Fetch(key, c.ttl, func() (T, error) {
			return fetch(shared)
		})
		if err != nil {
			return nil, err
		}
		return item.Value(), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *lookupCache[T]) Stop() {
	if c != nil {
		c.c.Stop()
	}
}
