// Package cache provides a single-value cache with a TTL, replacing ad-hoc
// global caches with an explicit {value, fetchedAt} type.
package cache

import (
	"context"
	"sync"
	"time"
)

// Value caches the result of fetch for up to ttl. The zero value is not
// usable; construct with NewValue.
type Value[T any] struct {
	mu        sync.Mutex
	ttl       time.Duration
	fetch     func(ctx context.Context) (T, error)
	value     T
	fetchedAt time.Time
	now       func() time.Time
}

func NewValue[T any](ttl time.Duration, fetch func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{ttl: ttl, fetch: fetch, now: time.Now}
}

// Get returns the cached value, refetching when it is stale or when force is
// set. A fetch error leaves any previously cached value intact but is
// returned to the caller.
func (v *Value[T]) Get(ctx context.Context, force bool) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !force && !v.fetchedAt.IsZero() && v.now().Sub(v.fetchedAt) < v.ttl {
		return v.value, nil
	}

	fetched, err := v.fetch(ctx)
	if err != nil {
		return v.value, err
	}
	v.value = fetched
	v.fetchedAt = v.now()
	return v.value, nil
}

// Invalidate forces the next Get to refetch.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fetchedAt = time.Time{}
}
