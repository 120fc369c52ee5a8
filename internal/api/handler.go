// Package api provides HTTP handlers for the Schema Quest API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/schema-quest/internal/middleware"
	"github.com/ashureev/schema-quest/internal/quest"
	"github.com/ashureev/schema-quest/internal/store"
)

const defaultMaxUploadBytes = 5 << 20

// Options tune the handler.
type Options struct {
	MaxUploadBytes int64
	SessionTTL     time.Duration
	ArchiveBackend string
	// Limiter throttles content-generating routes when set.
	Limiter *middleware.RateLimiter
}

// Handler serves the quest API.
type Handler struct {
	repo   store.Repository
	quests *quest.Service
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, quests *quest.Service, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Handler{repo: repo, quests: quests, opts: opts, logger: logger}
}

// RegisterRoutes registers the health, account and quest routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)

		r.Route("/quests", func(r chi.Router) {
			r.Get("/", h.ListQuests)
			r.Get("/{id}", h.GetQuest)
			r.Get("/{id}/export", h.ExportQuest)
			r.Post("/{id}/choose", h.Choose)
			r.Post("/{id}/restart", h.Restart)

			// Routes below call the content service.
			r.Group(func(r chi.Router) {
				r.Use(h.limit)
				r.Post("/", h.StartQuest)
				r.Post("/link", h.StartFromLink)
				r.Post("/{id}/submit", h.Submit)
				r.Post("/{id}/refine", h.Refine)
				r.Post("/{id}/question", h.EnsureQuestion)
				r.Post("/{id}/package", h.EnsurePackage)
			})
		})

		r.With(h.limit).Post("/speech", h.Speech)
	})
}

func (h *Handler) limit(next http.Handler) http.Handler {
	if h.opts.Limiter == nil {
		return next
	}
	return h.opts.Limiter.Handler(next)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
