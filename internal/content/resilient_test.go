package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/retry"
)

// flakyService fails with err for the first failures calls of each method.
type flakyService struct {
	err      error
	failures int
	calls    int
}

func (f *flakyService) attempt() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyService) ExtractFields(context.Context, string, string, string) ([]domain.Field, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return []domain.Field{{Name: "vin"}}, nil
}

func (f *flakyService) GenerateQuestion(context.Context, []domain.Field, []domain.DecisionRecord, domain.Tier) (*domain.PendingQuestion, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return &domain.PendingQuestion{FieldID: "vin"}, nil
}

func (f *flakyService) RefineQuestion(context.Context, *domain.PendingQuestion, string, domain.Tier) (*domain.PendingQuestion, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return &domain.PendingQuestion{FieldID: "vin"}, nil
}

func (f *flakyService) GenerateDecisionCard(context.Context, string, string, string, domain.Tier, int) (*domain.DecisionAnnotation, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return &domain.DecisionAnnotation{}, nil
}

func (f *flakyService) SynthesizeFinalPackage(context.Context, []domain.Field, []domain.DecisionRecord) (*domain.FinalPackage, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return &domain.FinalPackage{}, nil
}

func (f *flakyService) SynthesizeSpeech(context.Context, string) (domain.PCM, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return domain.PCM{0, 0}, nil
}

func recordingSleeper(waits *[]time.Duration) retry.Sleeper {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestResilientRetriesRateLimits(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	inner := &flakyService{err: &APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"}, failures: 2}
	svc := WithRetry(inner,
		retry.Standard(nil).WithSleeper(recordingSleeper(&waits)).WithLogger(testLogger()),
		retry.FastFail(nil).WithSleeper(recordingSleeper(&waits)).WithLogger(testLogger()),
	)

	q, err := svc.GenerateQuestion(context.Background(), nil, nil, domain.TierBronze)
	if err != nil {
		t.Fatalf("GenerateQuestion: %v", err)
	}
	if q.FieldID != "vin" {
		t.Fatalf("unexpected question %+v", q)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(waits) != len(want) || waits[0] != want[0] || waits[1] != want[1] {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
}

func TestResilientSpeechUsesFastFail(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	limited := &APIError{StatusCode: 429, Message: "rate limit"}
	inner := &flakyService{err: limited, failures: 10}
	svc := WithRetry(inner,
		retry.Standard(nil).WithSleeper(recordingSleeper(&waits)).WithLogger(testLogger()),
		retry.FastFail(nil).WithSleeper(recordingSleeper(&waits)).WithLogger(testLogger()),
	)

	_, err := svc.SynthesizeSpeech(context.Background(), "ciao")
	if !errors.Is(err, limited) {
		t.Fatalf("expected last rate-limit error, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
	if len(waits) != 2 || waits[0] != 3*time.Second || waits[1] != 6*time.Second {
		t.Fatalf("waits = %v", waits)
	}
}

func TestResilientDoesNotRetryFatal(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	inner := &flakyService{err: &APIError{StatusCode: 500, Status: "INTERNAL", Message: "boom"}, failures: 1}
	svc := WithRetry(inner,
		retry.Standard(nil).WithSleeper(recordingSleeper(&waits)).WithLogger(testLogger()),
		retry.FastFail(nil).WithSleeper(recordingSleeper(&waits)).WithLogger(testLogger()),
	)

	if _, err := svc.SynthesizeFinalPackage(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 || len(waits) != 0 {
		t.Fatalf("calls = %d waits = %v", inner.calls, waits)
	}
}
