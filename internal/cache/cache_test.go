package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetCachesWithinTTL(t *testing.T) {
	calls := 0
	v := NewValue(time.Minute, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})

	clock := time.Unix(1000, 0)
	v.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		got, err := v.Get(context.Background(), false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 1 {
			t.Fatalf("expected cached value 1, got %d", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch, got %d", calls)
	}
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	calls := 0
	v := NewValue(time.Minute, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})

	clock := time.Unix(1000, 0)
	v.now = func() time.Time { return clock }

	if got, _ := v.Get(context.Background(), false); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	clock = clock.Add(2 * time.Minute)
	if got, _ := v.Get(context.Background(), false); got != 2 {
		t.Fatalf("expected refetched value 2, got %d", got)
	}
}

func TestGetForceBypassesTTL(t *testing.T) {
	calls := 0
	v := NewValue(time.Hour, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})

	_, _ = v.Get(context.Background(), false)
	got, _ := v.Get(context.Background(), true)
	if got != 2 {
		t.Fatalf("force should refetch, got %d", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	calls := 0
	v := NewValue(time.Hour, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})

	_, _ = v.Get(context.Background(), false)
	v.Invalidate()
	if got, _ := v.Get(context.Background(), false); got != 2 {
		t.Fatalf("expected refetch after invalidate, got %d", got)
	}
}

func TestFetchErrorKeepsStaleValue(t *testing.T) {
	fail := false
	v := NewValue(time.Nanosecond, func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("upstream down")
		}
		return "good", nil
	})

	if got, err := v.Get(context.Background(), false); err != nil || got != "good" {
		t.Fatalf("unexpected: %q %v", got, err)
	}

	fail = true
	got, err := v.Get(context.Background(), true)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if got != "good" {
		t.Fatalf("stale value should survive a failed refetch, got %q", got)
	}
}
