package prefetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func constant(v string) Fetch[string] {
	return func(context.Context) (string, error) { return v, nil }
}

func TestTakeMatchingKey(t *testing.T) {
	t.Parallel()

	var s Slot[string]
	key := Key{FieldID: "vin", Value: "string"}
	if !s.Start(context.Background(), key, constant("next question")) {
		t.Fatal("Start returned false on empty slot")
	}
	got, ok := s.Take(context.Background(), key)
	if !ok || got != "next question" {
		t.Fatalf("Take = %q, %v", got, ok)
	}
	if _, ok := s.Pending(); ok {
		t.Fatal("slot should be empty after Take")
	}
}

func TestStaleValueIsDiscarded(t *testing.T) {
	t.Parallel()

	var s Slot[string]
	s.Start(context.Background(), Key{FieldID: "vin", Value: "a"}, constant("for a"))

	if got, ok := s.Take(context.Background(), Key{FieldID: "vin", Value: "b"}); ok {
		t.Fatalf("stale prefetch consumed: %q", got)
	}
	if _, ok := s.Take(context.Background(), Key{FieldID: "vin", Value: "a"}); ok {
		t.Fatal("mismatched Take must empty the slot")
	}
}

func TestStartSameKeyIsSingleFlight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "q", nil
	}

	var s Slot[string]
	key := Key{FieldID: "f", Value: "v"}
	if !s.Start(context.Background(), key, fetch) {
		t.Fatal("first Start should launch")
	}
	if s.Start(context.Background(), key, fetch) {
		t.Fatal("second Start for same key should not launch")
	}
	close(release)

	if got, ok := s.Take(context.Background(), key); !ok || got != "q" {
		t.Fatalf("Take = %q, %v", got, ok)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestNewKeySupersedesInFlight(t *testing.T) {
	t.Parallel()

	cancelled := make(chan struct{})
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	}

	var s Slot[string]
	s.Start(context.Background(), Key{FieldID: "f", Value: "a"}, slow)
	s.Start(context.Background(), Key{FieldID: "f", Value: "b"}, constant("for b"))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	if got, ok := s.Take(context.Background(), Key{FieldID: "f", Value: "b"}); !ok || got != "for b" {
		t.Fatalf("Take = %q, %v", got, ok)
	}
}

func TestFailedFetchIsAMiss(t *testing.T) {
	t.Parallel()

	var s Slot[string]
	key := Key{FieldID: "f", Value: "v"}
	s.Start(context.Background(), key, func(context.Context) (string, error) {
		return "", errors.New("rate limited")
	})
	if _, ok := s.Take(context.Background(), key); ok {
		t.Fatal("failed prefetch must not be consumed")
	}
}

func TestFetchOutlivesParentContext(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	var s Slot[string]
	key := Key{FieldID: "f", Value: "v"}
	s.Start(parent, key, func(ctx context.Context) (string, error) {
		cancel()
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "ok", nil
	})
	if got, ok := s.Take(context.Background(), key); !ok || got != "ok" {
		t.Fatalf("Take = %q, %v", got, ok)
	}
}

func TestTakeHonoursCallerContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)

	var s Slot[string]
	key := Key{FieldID: "f", Value: "v"}
	s.Start(context.Background(), key, func(ctx context.Context) (string, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return "late", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := s.Take(ctx, key); ok {
		t.Fatal("Take should give up when its context expires")
	}
}
