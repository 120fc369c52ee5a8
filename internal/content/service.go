// Package content talks to the generative content service that writes
// questions, decision annotations, the final package and speech.
package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/schema-quest/internal/domain"
)

// Service is the set of operations the quest flow consumes.
type Service interface {
	ExtractFields(ctx context.Context, sourceName, content, mimeType string) ([]domain.Field, error)
	GenerateQuestion(ctx context.Context, fields []domain.Field, decisions []domain.DecisionRecord, tier domain.Tier) (*domain.PendingQuestion, error)
	RefineQuestion(ctx context.Context, current *domain.PendingQuestion, note string, tier domain.Tier) (*domain.PendingQuestion, error)
	GenerateDecisionCard(ctx context.Context, field, decision, rationale string, tier domain.Tier, sequenceID int) (*domain.DecisionAnnotation, error)
	SynthesizeFinalPackage(ctx context.Context, fields []domain.Field, decisions []domain.DecisionRecord) (*domain.FinalPackage, error)
	SynthesizeSpeech(ctx context.Context, text string) (domain.PCM, error)
}

// ErrMalformedResponse is returned when the service answers with something
// that does not fit the expected record shape.
var ErrMalformedResponse = errors.New("malformed content response")

// APIError is a non-2xx answer from the content service.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("content service %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("content service %d: %s", e.StatusCode, e.Message)
}

var transientMarkers = []string{
	"resource_exhausted",
	"resource exhausted",
	"quota",
	"rate limit",
	"rate-limit",
	"too many requests",
}

// IsTransient classifies rate-limit, quota and resource-exhaustion answers
// from the content service as retryable. Only an APIError can be transient;
// transport failures, server errors, auth failures and malformed payloads
// are not.
func IsTransient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	text := strings.ToLower(apiErr.Status + " " + apiErr.Message)
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
