package content

import (
	"context"

	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/retry"
)

// Resilient wraps a Service with retry policies. Speech uses the fast
// policy since it is interactive; everything else uses the standard one.
type Resilient struct {
	next     Service
	standard retry.Policy
	fast     retry.Policy
}

// WithRetry decorates next. Policies without a classifier get IsTransient.
func WithRetry(next Service, standard, fast retry.Policy) *Resilient {
	if standard.Classify == nil {
		standard.Classify = IsTransient
	}
	if fast.Classify == nil {
		fast.Classify = IsTransient
	}
	return &Resilient{next: next, standard: standard, fast: fast}
}

func (r *Resilient) ExtractFields(ctx context.Context, sourceName, content, mimeType string) ([]domain.Field, error) {
	return retry.Do(ctx, r.standard, func(ctx context.Context) ([]domain.Field, error) {
		return r.next.ExtractFields(ctx, sourceName, content, mimeType)
	})
}

func (r *Resilient) GenerateQuestion(ctx context.Context, fields []domain.Field, decisions []domain.DecisionRecord, tier domain.Tier) (*domain.PendingQuestion, error) {
	return retry.Do(ctx, r.standard, func(ctx context.Context) (*domain.PendingQuestion, error) {
		return r.next.GenerateQuestion(ctx, fields, decisions, tier)
	})
}

func (r *Resilient) RefineQuestion(ctx context.Context, current *domain.PendingQuestion, note string, tier domain.Tier) (*domain.PendingQuestion, error) {
	return retry.Do(ctx, r.standard, func(ctx context.Context) (*domain.PendingQuestion, error) {
		return r.next.RefineQuestion(ctx, current, note, tier)
	})
}

func (r *Resilient) GenerateDecisionCard(ctx context.Context, field, decision, rationale string, tier domain.Tier, sequenceID int) (*domain.DecisionAnnotation, error) {
	return retry.Do(ctx, r.standard, func(ctx context.Context) (*domain.DecisionAnnotation, error) {
		return r.next.GenerateDecisionCard(ctx, field, decision, rationale, tier, sequenceID)
	})
}

func (r *Resilient) SynthesizeFinalPackage(ctx context.Context, fields []domain.Field, decisions []domain.DecisionRecord) (*domain.FinalPackage, error) {
	return retry.Do(ctx, r.standard, func(ctx context.Context) (*domain.FinalPackage, error) {
		return r.next.SynthesizeFinalPackage(ctx, fields, decisions)
	})
}

func (r *Resilient) SynthesizeSpeech(ctx context.Context, text string) (domain.PCM, error) {
	return retry.Do(ctx, r.fast, func(ctx context.Context) (domain.PCM, error) {
		return r.next.SynthesizeSpeech(ctx, text)
	})
}
