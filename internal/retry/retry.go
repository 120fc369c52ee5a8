// Package retry wraps effectful calls with bounded exponential backoff.
//
// Only failures the policy's Classifier marks as transient are retried.
// Everything else is returned on the spot, unmodified.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Classifier reports whether err is transient and worth another attempt.
type Classifier func(err error) bool

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy configures one call-site profile.
type Policy struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	Classify   Classifier
	Sleep      Sleeper
	Logger     *slog.Logger
}

// Standard is the profile for content-generation calls.
func Standard(classify Classifier) Policy {
	return Policy{
		Name:       "standard",
		MaxRetries: 5,
		BaseDelay:  5 * time.Second,
		Classify:   classify,
	}
}

// FastFail is the profile for latency-sensitive calls such as speech synthesis.
func FastFail(classify Classifier) Policy {
	return Policy{
		Name:       "fast-fail",
		MaxRetries: 2,
		BaseDelay:  3 * time.Second,
		Classify:   classify,
	}
}

// Delay returns the wait before retry number attempt (0-based).
// No jitter is applied.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// WithSleeper returns a copy of p that waits through s.
func (p Policy) WithSleeper(s Sleeper) Policy {
	p.Sleep = s
	return p
}

// WithLogger returns a copy of p that logs retries to l.
func (p Policy) WithLogger(l *slog.Logger) Policy {
	p.Logger = l
	return p
}

// Do invokes op until it succeeds, fails with a non-transient error, or
// MaxRetries transient failures have been retried. The last error is
// returned as-is.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if p.Classify == nil || !p.Classify(err) {
			return v, err
		}
		if attempt >= p.MaxRetries {
			logger.Warn("retries exhausted",
				"policy", p.Name,
				"max_retries", p.MaxRetries,
				"error", err,
			)
			return v, err
		}

		delay := p.Delay(attempt)
		logger.Warn("transient failure, retrying",
			"policy", p.Name,
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", err,
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			var zero T
			return zero, sleepErr
		}
	}
}

// SleepContext blocks for d or until ctx is cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
