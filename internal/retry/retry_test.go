package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBusy = errors.New("429 resource exhausted")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

// clock records simulated waits instead of sleeping.
type clock struct {
	waits []time.Duration
}

func (c *clock) sleep(_ context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	return nil
}

func (c *clock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.waits {
		sum += d
	}
	return sum
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	c := &clock{}
	p := Standard(isBusy).WithSleeper(c.sleep)

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errBusy
		}
		return "plated", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "plated" {
		t.Fatalf("got %q, want plated", got)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := p.BaseDelay * (1 + 2)
	if c.total() != want {
		t.Fatalf("simulated delay = %v, want %v", c.total(), want)
	}
}

func TestDoFatalErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	c := &clock{}
	p := Standard(isBusy).WithSleeper(c.sleep)
	fatal := errors.New("malformed response")

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	if err != fatal {
		t.Fatalf("expected the original error back unmodified, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if len(c.waits) != 0 {
		t.Fatalf("expected no delay, got %v", c.waits)
	}
}

func TestDoExhaustsRetriesAndReturnsLastError(t *testing.T) {
	t.Parallel()

	c := &clock{}
	p := FastFail(isBusy).WithSleeper(c.sleep)

	calls := 0
	var last error
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		last = errors.Join(errBusy, errors.New("attempt"))
		return 0, last
	})
	if err != last {
		t.Fatalf("expected last observed error, got %v", err)
	}
	if calls != p.MaxRetries+1 {
		t.Fatalf("calls = %d, want %d", calls, p.MaxRetries+1)
	}
	wantWaits := []time.Duration{3 * time.Second, 6 * time.Second}
	if len(c.waits) != len(wantWaits) {
		t.Fatalf("waits = %v, want %v", c.waits, wantWaits)
	}
	for i := range wantWaits {
		if c.waits[i] != wantWaits[i] {
			t.Fatalf("wait %d = %v, want %v", i, c.waits[i], wantWaits[i])
		}
	}
}

func TestDoStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 3, BaseDelay: time.Hour, Classify: isBusy}

	calls := 0
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errBusy
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestProfiles(t *testing.T) {
	t.Parallel()

	std := Standard(nil)
	if std.MaxRetries != 5 || std.BaseDelay != 5*time.Second {
		t.Fatalf("standard profile = %d/%v", std.MaxRetries, std.BaseDelay)
	}
	fast := FastFail(nil)
	if fast.MaxRetries != 2 || fast.BaseDelay != 3*time.Second {
		t.Fatalf("fast-fail profile = %d/%v", fast.MaxRetries, fast.BaseDelay)
	}
	if got := std.Delay(3); got != 40*time.Second {
		t.Fatalf("Delay(3) = %v, want 40s", got)
	}
}

func TestDoWithoutClassifierNeverRetries(t *testing.T) {
	t.Parallel()

	c := &clock{}
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 4, BaseDelay: time.Second, Sleep: c.sleep}, func(context.Context) (int, error) {
		calls++
		return 0, errBusy
	})
	if !errors.Is(err, errBusy) || calls != 1 || len(c.waits) != 0 {
		t.Fatalf("err=%v calls=%d waits=%v", err, calls, c.waits)
	}
}
