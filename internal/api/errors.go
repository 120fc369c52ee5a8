package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/schema-quest/internal/content"
	"github.com/ashureev/schema-quest/internal/ingest"
	"github.com/ashureev/schema-quest/internal/quest"
)

// Error codes returned to the client.
const (
	CodeKitchenOverloaded = "kitchen_overloaded"
	CodeSpoiledIngredient = "spoiled_ingredient"
	CodeSpoiledFile       = "spoiled_file"
	CodeLinkTimeout       = "link_timeout"
	CodeLinkUnreachable   = "link_unreachable"
	CodeNotFound          = "not_found"
	CodeBadRequest        = "bad_request"
	CodePackageNotReady   = "package_not_ready"
	CodeTooLarge          = "file_too_large"
)

type apiError struct {
	status  int
	code    string
	message string
}

type errorBody struct {
	Error string          `json:"error"`
	Code  string          `json:"code"`
	Quest *quest.Snapshot `json:"quest,omitempty"`
}

type questResponse struct {
	*quest.Snapshot
	Ignored bool `json:"ignored,omitempty"`
}

func classify(err error) apiError {
	switch {
	case errors.Is(err, quest.ErrNotFound):
		return apiError{http.StatusNotFound, CodeNotFound, "Quest not found."}
	case errors.Is(err, quest.ErrNoSelection):
		return apiError{http.StatusBadRequest, CodeBadRequest, "Pick an option before explaining it."}
	case errors.Is(err, quest.ErrUnknownOption):
		return apiError{http.StatusBadRequest, CodeBadRequest, "That option is not on the menu."}
	case errors.Is(err, quest.ErrNothingToSay):
		return apiError{http.StatusBadRequest, CodeBadRequest, "There is nothing to say yet."}
	case errors.Is(err, quest.ErrNoPackage):
		return apiError{http.StatusConflict, CodePackageNotReady, "The deliverables are not plated yet."}
	case errors.Is(err, ingest.ErrInputQuality):
		return apiError{http.StatusUnprocessableEntity, CodeSpoiledFile, "This file is spoiled. Please provide a fresh CSV or JSON data source."}
	case errors.Is(err, ingest.ErrTimeout):
		return apiError{http.StatusGatewayTimeout, CodeLinkTimeout, "That link took too long to answer. Check the address and try again."}
	case errors.Is(err, ingest.ErrUnreachable):
		return apiError{http.StatusBadGateway, CodeLinkUnreachable, "We couldn't reach that link. Download the file and upload it directly instead."}
	case content.IsTransient(err):
		return apiError{http.StatusServiceUnavailable, CodeKitchenOverloaded, "The kitchen is overloaded right now. Give it a moment and try again."}
	default:
		return apiError{http.StatusBadGateway, CodeSpoiledIngredient, "An ingredient came back spoiled from the pantry. Please try again."}
	}
}

// respond writes snap on success. Errors that only mean the request raced
// the quest forward are answered with 200, ignored, and the unchanged
// snapshot; everything else is mapped to a user-facing message.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, snap *quest.Snapshot, err error) {
	if err == nil {
		JSON(w, status, questResponse{Snapshot: snap})
		return
	}
	if quest.IsIgnorable(err) {
		h.logger.Debug("ignoring stale request", "path", r.URL.Path, "error", err)
		JSON(w, http.StatusOK, questResponse{Snapshot: snap, Ignored: true})
		return
	}
	h.fail(w, r, snap, err)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, snap *quest.Snapshot, err error) {
	e := classify(err)
	level := slog.LevelInfo
	if e.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"path", r.URL.Path,
		"status", e.status,
		"code", e.code,
		"error", err,
	)
	JSON(w, e.status, errorBody{Error: e.message, Code: e.code, Quest: snap})
}
