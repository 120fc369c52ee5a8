// Package progression owns the session state of one play-through and the
// rules that turn a sequence of decisions into score, tier and completion.
//
// Nothing in this package performs I/O. Callers fetch questions and
// annotations from the content service and hand the results in.
package progression

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ashureev/schema-quest/internal/domain"
)

const (
	// SilverAt and GoldAt are the decision counts that advance the tier.
	SilverAt = 3
	GoldAt   = 6
	// CompleteAt is the decision count that ends the session.
	CompleteAt = 9

	// RationaleBonus is awarded when a rationale is longer than RationaleBonusMinLen.
	RationaleBonus       = 10
	RationaleBonusMinLen = 20

	// A status level is reached once the score strictly exceeds its threshold.
	FunctionalAbove   = 100
	ProfessionalAbove = 300
	MichelinStarAbove = 600
)

var (
	// ErrSessionCompleted is returned when a decision arrives after completion.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrNoPendingQuestion is returned when no question is awaiting a decision.
	ErrNoPendingQuestion = errors.New("no pending question")
	// ErrFieldMismatch is returned when the decision targets a different field.
	ErrFieldMismatch = errors.New("decision field does not match pending question")
)

// IsInvalidState reports whether err reflects a UI race rather than a failure.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrSessionCompleted) ||
		errors.Is(err, ErrNoPendingQuestion) ||
		errors.Is(err, ErrFieldMismatch)
}

// BasePoints returns the points awarded for a decision made under tier.
func BasePoints(tier domain.Tier) int {
	switch tier {
	case domain.TierBronze:
		return 10
	case domain.TierSilver:
		return 25
	case domain.TierGold:
		return 50
	default:
		return 0
	}
}

// ScoreDelta computes the points for one decision.
func ScoreDelta(tier domain.Tier, rationale string) int {
	delta := BasePoints(tier)
	if utf8.RuneCountInString(rationale) > RationaleBonusMinLen {
		delta += RationaleBonus
	}
	return delta
}

// ComputeStatusLevel maps a cumulative score to its status level.
// Thresholds are strict: a score of exactly 100 is still a dumpster fire.
func ComputeStatusLevel(score int) domain.StatusLevel {
	switch {
	case score > MichelinStarAbove:
		return domain.StatusMichelinStar
	case score > ProfessionalAbove:
		return domain.StatusProfessional
	case score > FunctionalAbove:
		return domain.StatusFunctional
	default:
		return domain.StatusDumpsterFire
	}
}

// tierAfter returns the tier in effect once the decision count reaches count.
func tierAfter(current domain.Tier, count int) domain.Tier {
	switch count {
	case SilverAt:
		return domain.TierSilver
	case GoldAt:
		return domain.TierGold
	default:
		return current
	}
}

// PredictNextTier returns the tier that will be in effect after one more
// decision is recorded on top of currentDecisionCount. It mirrors the
// transition applied by RecordDecision so speculative fetches line up.
func PredictNextTier(currentTier domain.Tier, currentDecisionCount int) domain.Tier {
	return tierAfter(currentTier, currentDecisionCount+1)
}

// Outcome describes the effect of one recorded decision.
type Outcome struct {
	Record    domain.DecisionRecord
	Delta     int
	FromTier  domain.Tier
	Tier      domain.Tier
	Completed bool
}

// Advanced reports whether the decision moved the session to a new tier.
func (o Outcome) Advanced() bool {
	return o.FromTier != o.Tier
}

// Session is the mutable state of one play-through.
type Session struct {
	ID         string                  `json:"id"`
	SourceName string                  `json:"source_name,omitempty"`
	Tier       domain.Tier             `json:"tier"`
	Fields     []domain.Field          `json:"fields"`
	Decisions  []domain.DecisionRecord `json:"decisions"`
	Score      int                     `json:"score"`
	Question   *domain.PendingQuestion `json:"question,omitempty"`
	Completed  bool                    `json:"completed"`
	Log        []string                `json:"log"`
	Package    *domain.FinalPackage    `json:"package,omitempty"`

	// QuestionToken increases every time a question request is issued.
	// A response is applied only if it carries the current token.
	QuestionToken uint64 `json:"question_token"`
}

// New returns a freshly started session.
func New(id string) *Session {
	return &Session{
		ID:        id,
		Tier:      domain.TierBronze,
		Fields:    []domain.Field{},
		Decisions: []domain.DecisionRecord{},
		Log:       []string{},
	}
}

// Status derives the status level from the current score.
func (s *Session) Status() domain.StatusLevel {
	return ComputeStatusLevel(s.Score)
}

// Restart reinitializes the session in place. Only the ID survives, and the
// question token keeps counting so responses issued before the restart are
// still rejected.
func (s *Session) Restart() {
	token := s.QuestionToken
	*s = *New(s.ID)
	s.QuestionToken = token + 1
}

// AppendLog adds an entry to the event log.
func (s *Session) AppendLog(entry string) {
	s.Log = append(s.Log, entry)
}

// SetFields stores the fields extracted from the uploaded source.
func (s *Session) SetFields(source string, fields []domain.Field) {
	s.SourceName = source
	s.Fields = cloneSlice(fields)
}

// BeginQuestionRequest issues a new question token, invalidating every
// request started before it.
func (s *Session) BeginQuestionRequest() uint64 {
	s.QuestionToken++
	return s.QuestionToken
}

// ApplyQuestion replaces the pending question if token is still current and
// the session is not completed. It reports whether the question was applied.
func (s *Session) ApplyQuestion(token uint64, q *domain.PendingQuestion) bool {
	if s.Completed || q == nil || token != s.QuestionToken {
		return false
	}
	cp := *q
	cp.Tier = s.Tier
	s.Question = &cp
	return true
}

// RecordDecision appends a decision built from ann, applies its score delta
// and advances the tier. On a completed session it returns
// ErrSessionCompleted and leaves every field untouched.
func (s *Session) RecordDecision(fieldID, value, rationale string, ann domain.DecisionAnnotation) (Outcome, error) {
	if s.Completed {
		return Outcome{}, ErrSessionCompleted
	}
	if s.Question == nil {
		return Outcome{}, ErrNoPendingQuestion
	}
	if s.Question.FieldID != fieldID {
		return Outcome{}, fmt.Errorf("%w: pending %q, got %q", ErrFieldMismatch, s.Question.FieldID, fieldID)
	}

	from := s.Tier
	rec := domain.DecisionRecord{
		ID:             len(s.Decisions) + 1,
		FieldID:        fieldID,
		Value:          value,
		Rationale:      rationale,
		Tier:           from,
		TechnicalNote:  ann.TechnicalNote,
		FlavorReaction: ann.FlavorReaction,
	}
	s.Decisions = append(s.Decisions, rec)

	delta := ScoreDelta(from, rationale)
	s.Score += delta
	s.Question = nil
	// Any question request still in flight belongs to the previous decision.
	s.QuestionToken++

	count := len(s.Decisions)
	if count >= CompleteAt {
		s.Completed = true
	} else {
		s.Tier = tierAfter(from, count)
	}

	return Outcome{
		Record:    rec,
		Delta:     delta,
		FromTier:  from,
		Tier:      s.Tier,
		Completed: s.Completed,
	}, nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Fields = cloneSlice(s.Fields)
	cp.Decisions = cloneSlice(s.Decisions)
	cp.Log = cloneSlice(s.Log)
	if s.Question != nil {
		q := *s.Question
		q.Options = cloneSlice(s.Question.Options)
		cp.Question = &q
	}
	return &cp
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
