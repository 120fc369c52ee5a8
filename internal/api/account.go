package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/identity"
	"github.com/ashureev/schema-quest/internal/progression"
)

const healthCheckTimeout = 5 * time.Second

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.repo == nil {
		checks["database"] = "disabled"
	} else if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// GetMe returns the current player's information.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     user.UserID,
		"username":    user.Username,
		"session_id":  identity.SessionIDFromContext(r.Context()),
		"session_ttl": int64(h.opts.SessionTTL.Seconds()),
	})
}

type statusInfo struct {
	Level domain.StatusLevel `json:"level"`
	Label string             `json:"label"`
	Above int                `json:"above"`
}

// GetConfig returns the game configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	archive := h.opts.ArchiveBackend
	if archive == "" {
		archive = "none"
	}
	statuses := []statusInfo{
		{domain.StatusDumpsterFire, domain.StatusDumpsterFire.Label(), 0},
		{domain.StatusFunctional, domain.StatusFunctional.Label(), progression.FunctionalAbove},
		{domain.StatusProfessional, domain.StatusProfessional.Label(), progression.ProfessionalAbove},
		{domain.StatusMichelinStar, domain.StatusMichelinStar.Label(), progression.MichelinStarAbove},
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"courses":         domain.Courses,
		"decisions_total": progression.CompleteAt,
		"status_levels":   statuses,
		"archive_backend": archive,
		"max_upload":      h.opts.MaxUploadBytes,
		"speech": map[string]interface{}{
			"content_type": domain.SpeechContentType,
			"sample_rate":  domain.SpeechSampleRate,
			"channels":     domain.SpeechChannels,
		},
	})
}
