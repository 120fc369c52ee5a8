// Package quest runs play-throughs: it owns the live session table and
// drives each session through upload, questions, decisions and packaging.
package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/schema-quest/internal/archive"
	"github.com/ashureev/schema-quest/internal/content"
	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/ingest"
	"github.com/ashureev/schema-quest/internal/prefetch"
	"github.com/ashureev/schema-quest/internal/progression"
	"github.com/ashureev/schema-quest/internal/store"
)

// Event types published to session subscribers.
const (
	EventQuestionReady   = "question_ready"
	EventDecisionLogged  = "decision_logged"
	EventTierAdvanced    = "tier_advanced"
	EventPackageReady    = "package_ready"
	EventArchived        = "archived"
	EventArchiveReminder = "archive_reminder"
	EventRestarted       = "restarted"
)

// Publisher delivers session events. Publish must not block. CloseQuest
// ends the feeds of a session whose state they no longer describe.
type Publisher interface {
	Publish(sessionID, eventType string, payload any)
	CloseQuest(sessionID string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}
func (nopPublisher) CloseQuest(string)           {}

// Deps are the collaborators of a Service. Content is required.
type Deps struct {
	Content   content.Service
	Repo      store.Repository
	Archiver  archive.Archiver
	Fetcher   *ingest.Fetcher
	Publisher Publisher
	Logger    *slog.Logger
}

// Options tune a Service.
type Options struct {
	ReadLimit  int
	SessionTTL time.Duration
}

type entry struct {
	mu         sync.Mutex
	userID     string
	sess       *progression.Session
	selection  *Selection
	chef       string
	busy       bool
	archive    *archive.Result
	lastActive time.Time
	createdAt  time.Time
	next       prefetch.Slot[*domain.PendingQuestion]

	// generation counts restarts. Background work started under an older
	// generation must not touch the session.
	generation    uint64
	cancelArchive context.CancelFunc
}

// Service coordinates sessions.
type Service struct {
	content   content.Service
	repo      store.Repository
	archiver  archive.Archiver
	fetcher   *ingest.Fetcher
	pub       Publisher
	logger    *slog.Logger
	readLimit int
	ttl       time.Duration

	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*entry

	background sync.WaitGroup
}

// NewService creates a Service.
func NewService(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := deps.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = ingest.DefaultReadLimit
	}
	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = ingest.NewFetcher(nil, ingest.DefaultFetchTimeout, opts.ReadLimit, logger)
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Service{
		content:   deps.Content,
		repo:      deps.Repo,
		archiver:  deps.Archiver,
		fetcher:   fetcher,
		pub:       pub,
		logger:    logger,
		readLimit: opts.ReadLimit,
		ttl:       opts.SessionTTL,
		now:       time.Now,
		newID:     uuid.NewString,
		sessions:  make(map[string]*entry),
	}
}

// Wait blocks until background archival uploads have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) register(e *entry) {
	s.mu.Lock()
	s.sessions[e.sess.ID] = e
	s.mu.Unlock()
}

// lookup returns the live entry for id, loading it from the store when it
// is not in memory. Entries owned by another user are reported as missing.
func (s *Service) lookup(ctx context.Context, userID, id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		if e.userID != userID {
			return nil, ErrNotFound
		}
		return e, nil
	}

	if s.repo == nil {
		return nil, ErrNotFound
	}
	rec, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec == nil || rec.UserID != userID {
		return nil, ErrNotFound
	}
	sess := &progression.Session{}
	if err := json.Unmarshal([]byte(rec.StateJSON), sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	loaded := &entry{
		userID:     rec.UserID,
		sess:       sess,
		chef:       resumeMessage(sess),
		lastActive: s.now(),
		createdAt:  rec.CreatedAt,
	}

	// Another request may have loaded it concurrently; keep the first.
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = loaded
	return loaded, nil
}

func resumeMessage(sess *progression.Session) string {
	switch {
	case sess.Completed:
		return chefComplete
	case len(sess.Fields) == 0:
		return chefWelcome
	default:
		return chefReaction("")
	}
}

// persist stores e. It must be called with e.mu held. Store failures are
// logged; the live session stays authoritative.
func (s *Service) persist(ctx context.Context, e *entry) {
	e.lastActive = s.now()
	if s.repo == nil {
		return
	}
	state, err := json.Marshal(e.sess)
	if err != nil {
		s.logger.Error("encode session", "session_id", e.sess.ID, "error", err)
		return
	}
	rec := &domain.SessionRecord{
		SessionID:  e.sess.ID,
		UserID:     e.userID,
		SourceName: e.sess.SourceName,
		Tier:       e.sess.Tier,
		Score:      e.sess.Score,
		Decisions:  len(e.sess.Decisions),
		Completed:  e.sess.Completed,
		StateJSON:  string(state),
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.lastActive,
	}
	if err := s.repo.SaveSession(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("persist session failed", "session_id", e.sess.ID, "error", err)
	}
}

// Get returns the current snapshot of a quest.
func (s *Service) Get(ctx context.Context, userID, id string) (*Snapshot, error) {
	e, err := s.lookup(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// List returns the user's quests, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Summary, error) {
	if s.repo != nil {
		recs, err := s.repo.ListSessions(ctx, store.SessionFilter{UserID: userID, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out := make([]Summary, 0, len(recs))
		for _, r := range recs {
			out = append(out, Summary{
				ID:         r.SessionID,
				SourceName: r.SourceName,
				Tier:       r.Tier,
				Score:      r.Score,
				Status:     progression.ComputeStatusLevel(r.Score),
				Decisions:  r.Decisions,
				Completed:  r.Completed,
				UpdatedAt:  r.UpdatedAt,
			})
		}
		return out, nil
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		if e.userID == userID {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, Summary{
			ID:         e.sess.ID,
			SourceName: e.sess.SourceName,
			Tier:       e.sess.Tier,
			Score:      e.sess.Score,
			Status:     e.sess.Status(),
			Decisions:  len(e.sess.Decisions),
			Completed:  e.sess.Completed,
			UpdatedAt:  e.lastActive,
		})
		e.mu.Unlock()
	}
	sortSummaries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortSummaries(out []Summary) {
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
