package quest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/schema-quest/internal/archive"
	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/export"
	"github.com/ashureev/schema-quest/internal/ingest"
	"github.com/ashureev/schema-quest/internal/prefetch"
	"github.com/ashureev/schema-quest/internal/progression"
)

// Upload is a source file sent by the player.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Start parses an uploaded source and opens a new quest. Input-quality and
// content failures abort before any session exists. When only the first
// question fails, the snapshot is returned together with the error so the
// caller can retry through EnsureQuestion.
func (s *Service) Start(ctx context.Context, userID string, up Upload) (*Snapshot, error) {
	doc, err := ingest.Normalize(up.Name, bytes.NewReader(up.Data), s.readLimit)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, userID, doc, up)
}

// StartFromLink fetches a remote source and opens a new quest from it.
func (s *Service) StartFromLink(ctx context.Context, userID, rawURL string) (*Snapshot, error) {
	doc, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, userID, doc, Upload{Name: doc.Name, MimeType: doc.MimeType, Data: []byte(doc.Content)})
}

func (s *Service) open(ctx context.Context, userID string, doc ingest.Document, up Upload) (*Snapshot, error) {
	fields, err := s.content.ExtractFields(ctx, doc.Name, doc.Content, doc.MimeType)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields found in %s", ingest.ErrInputQuality, doc.Name)
	}

	now := s.now()
	sess := progression.New(s.newID())
	sess.AppendLog(logUploaded(doc.Name))
	sess.SetFields(doc.Name, fields)
	sess.AppendLog(logParsed(len(fields)))

	e := &entry{
		userID:     userID,
		sess:       sess,
		chef:       chefParsed(len(fields)),
		lastActive: now,
		createdAt:  now,
	}
	e.mu.Lock()
	s.register(e)
	s.persist(ctx, e)
	token := sess.BeginQuestionRequest()
	e.mu.Unlock()

	s.logger.Info("quest started", "session_id", sess.ID, "user_id", userID, "source", doc.Name, "fields", len(fields))

	if s.archiver != nil {
		mimeType := up.MimeType
		if mimeType == "" {
			mimeType = doc.MimeType
		}
		s.archiveAsync(ctx, e, archive.File{Name: up.Name, MimeType: mimeType, Data: up.Data}, domain.TierBronze)
	}

	return s.fetchQuestion(ctx, e, token)
}

// fetchQuestion generates a question for the session's current state and
// applies it if token is still current.
func (s *Service) fetchQuestion(ctx context.Context, e *entry, token uint64) (*Snapshot, error) {
	e.mu.Lock()
	fields := cloneFields(e.sess.Fields)
	decisions := cloneDecisions(e.sess.Decisions)
	tier := e.sess.Tier
	e.mu.Unlock()

	q, err := s.content.GenerateQuestion(ctx, fields, decisions, tier)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		return e.snapshot(), err
	}
	s.applyQuestion(ctx, e, token, q)
	return e.snapshot(), nil
}

// applyQuestion must be called with e.mu held.
func (s *Service) applyQuestion(ctx context.Context, e *entry, token uint64, q *domain.PendingQuestion) bool {
	if !e.sess.ApplyQuestion(token, q) {
		s.logger.Debug("discarding stale question", "session_id", e.sess.ID, "token", token, "current", e.sess.QuestionToken)
		return false
	}
	e.selection = nil
	e.next.Discard()
	s.persist(ctx, e)
	s.pub.Publish(e.sess.ID, EventQuestionReady, e.sess.Question)
	return true
}

// Choose records the option the player picked and starts fetching the
// question that would follow it.
func (s *Service) Choose(ctx context.Context, userID, id, value string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.busy {
		return e.snapshot(), ErrBusy
	}
	if e.sess.Completed || e.sess.Question == nil {
		return e.snapshot(), ErrInvalidState
	}
	if _, ok := e.sess.Question.Option(value); !ok {
		return e.snapshot(), fmt.Errorf("%w: %q", ErrUnknownOption, value)
	}

	sel := Selection{FieldID: e.sess.Question.FieldID, Value: value}
	e.selection = &sel
	e.chef = chefChosen
	e.lastActive = s.now()
	s.startPrefetch(ctx, e, sel)
	return e.snapshot(), nil
}

// startPrefetch must be called with e.mu held. Nothing is fetched when the
// pending decision completes the session.
func (s *Service) startPrefetch(ctx context.Context, e *entry, sel Selection) {
	count := len(e.sess.Decisions)
	if count+1 >= progression.CompleteAt {
		e.next.Discard()
		return
	}
	tier := progression.PredictNextTier(e.sess.Tier, count)
	fields := cloneFields(e.sess.Fields)
	decisions := append(cloneDecisions(e.sess.Decisions), domain.DecisionRecord{
		ID:      count + 1,
		FieldID: sel.FieldID,
		Value:   sel.Value,
		Tier:    e.sess.Tier,
	})
	key := prefetch.Key{FieldID: sel.FieldID, Value: sel.Value}
	e.next.Start(ctx, key, func(ctx context.Context) (*domain.PendingQuestion, error) {
		return s.content.GenerateQuestion(ctx, fields, decisions, tier)
	})
}

// Submit justifies the current selection. The content service annotates
// the decision, the progression engine records it, and the next question
// comes from the prefetch slot when it matches or from a fresh request.
func (s *Service) Submit(ctx context.Context, userID, id, rationale string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.sess.Completed {
		defer e.mu.Unlock()
		return e.snapshot(), fmt.Errorf("%w: %w", ErrInvalidState, progression.ErrSessionCompleted)
	}
	if e.busy {
		defer e.mu.Unlock()
		return e.snapshot(), ErrBusy
	}
	if e.selection == nil {
		defer e.mu.Unlock()
		return e.snapshot(), ErrNoSelection
	}
	if e.sess.Question == nil || e.sess.Question.FieldID != e.selection.FieldID {
		defer e.mu.Unlock()
		return e.snapshot(), ErrInvalidState
	}
	sel := *e.selection
	tier := e.sess.Tier
	seq := len(e.sess.Decisions) + 1
	e.busy = true
	e.mu.Unlock()

	ann, err := s.content.GenerateDecisionCard(ctx, sel.FieldID, sel.Value, rationale, tier, seq)

	e.mu.Lock()
	e.busy = false
	if err != nil {
		defer e.mu.Unlock()
		return e.snapshot(), err
	}
	if ann == nil {
		ann = &domain.DecisionAnnotation{}
	}
	outcome, err := e.sess.RecordDecision(sel.FieldID, sel.Value, rationale, *ann)
	if err != nil {
		defer e.mu.Unlock()
		return e.snapshot(), fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	e.sess.AppendLog(logDecision(sel.FieldID))
	e.selection = nil
	s.pub.Publish(id, EventDecisionLogged, outcome.Record)
	if outcome.Advanced() {
		s.pub.Publish(id, EventTierAdvanced, outcome.Tier.Course())
	}
	s.logger.Info("decision recorded",
		"session_id", id,
		"field", sel.FieldID,
		"tier", outcome.FromTier,
		"delta", outcome.Delta,
		"score", e.sess.Score,
		"completed", outcome.Completed,
	)

	if outcome.Completed {
		e.chef = chefComplete
		e.next.Discard()
		s.persist(ctx, e)
		e.mu.Unlock()
		return s.synthesize(ctx, e)
	}

	e.chef = chefReaction(ann.FlavorReaction)
	token := e.sess.BeginQuestionRequest()
	s.persist(ctx, e)
	e.mu.Unlock()

	if q, ok := e.next.Take(ctx, prefetch.Key{FieldID: sel.FieldID, Value: sel.Value}); ok && q != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		s.applyQuestion(ctx, e, token, q)
		return e.snapshot(), nil
	}
	return s.fetchQuestion(ctx, e, token)
}

func (s *Service) synthesize(ctx context.Context, e *entry) (*Snapshot, error) {
	e.mu.Lock()
	fields := cloneFields(e.sess.Fields)
	decisions := cloneDecisions(e.sess.Decisions)
	e.busy = true
	e.mu.Unlock()

	pkg, err := s.content.SynthesizeFinalPackage(ctx, fields, decisions)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	if err != nil {
		return e.snapshot(), err
	}
	if e.sess.Package == nil && e.sess.Completed {
		e.sess.Package = pkg
		s.persist(ctx, e)
		s.pub.Publish(e.sess.ID, EventPackageReady, pkg)
	}
	return e.snapshot(), nil
}

// Refine asks the content service to rework the pending question with a
// note from the player. A response superseded by a newer request or by a
// decision is discarded and reported as ErrInvalidState.
func (s *Service) Refine(ctx context.Context, userID, id, note string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)

	e.mu.Lock()
	if e.busy || e.sess.Completed || e.sess.Question == nil {
		defer e.mu.Unlock()
		return e.snapshot(), ErrInvalidState
	}
	current := e.sess.Clone().Question
	tier := e.sess.Tier
	token := e.sess.BeginQuestionRequest()
	e.mu.Unlock()

	q, err := s.content.RefineQuestion(ctx, current, note, tier)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		return e.snapshot(), err
	}
	if !s.applyQuestion(ctx, e, token, q) {
		return e.snapshot(), ErrInvalidState
	}
	return e.snapshot(), nil
}

// EnsureQuestion fetches a question when none is pending, for example after
// a failed request. It is a no-op when a question already exists.
func (s *Service) EnsureQuestion(ctx context.Context, userID, id string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.sess.Completed || e.busy || len(e.sess.Fields) == 0 {
		defer e.mu.Unlock()
		return e.snapshot(), ErrInvalidState
	}
	if e.sess.Question != nil {
		defer e.mu.Unlock()
		return e.snapshot(), nil
	}
	token := e.sess.BeginQuestionRequest()
	e.mu.Unlock()

	return s.fetchQuestion(ctx, e, token)
}

// EnsurePackage synthesizes the final package of a completed quest if it
// is missing.
func (s *Service) EnsurePackage(ctx context.Context, userID, id string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if !e.sess.Completed {
		defer e.mu.Unlock()
		return e.snapshot(), ErrInvalidState
	}
	if e.busy {
		defer e.mu.Unlock()
		return e.snapshot(), ErrBusy
	}
	if e.sess.Package != nil {
		defer e.mu.Unlock()
		return e.snapshot(), nil
	}
	e.mu.Unlock()
	return s.synthesize(ctx, e)
}

// Restart wipes the quest back to a fresh session with the same ID.
func (s *Service) Restart(ctx context.Context, userID, id string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.Restart()
	e.generation++
	if e.cancelArchive != nil {
		e.cancelArchive()
		e.cancelArchive = nil
	}
	e.selection = nil
	e.archive = nil
	e.chef = chefWelcome
	e.next.Discard()
	s.persist(ctx, e)
	s.pub.Publish(id, EventRestarted, nil)
	s.pub.CloseQuest(id)
	s.logger.Info("quest restarted", "session_id", id)
	return e.snapshot(), nil
}

// Speak synthesizes text, or the quest's current chef line when text is
// empty and a quest ID is given.
func (s *Service) Speak(ctx context.Context, userID, id, text string) (domain.PCM, error) {
	text = strings.TrimSpace(text)
	if text == "" && id != "" {
		e, err := s.lookup(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		text = e.chef
		e.mu.Unlock()
	}
	if text == "" {
		return nil, ErrNothingToSay
	}
	return s.content.SynthesizeSpeech(ctx, text)
}

// Export serializes the final package.
func (s *Service) Export(ctx context.Context, userID, id string, format export.Format) ([]byte, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	pkg := e.sess.Package
	e.mu.Unlock()
	if pkg == nil {
		return nil, ErrNoPackage
	}
	return export.Marshal(pkg, format)
}

func cloneFields(in []domain.Field) []domain.Field {
	return append([]domain.Field(nil), in...)
}

func cloneDecisions(in []domain.DecisionRecord) []domain.DecisionRecord {
	return append([]domain.DecisionRecord(nil), in...)
}
