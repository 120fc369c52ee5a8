package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/export"
	"github.com/ashureev/schema-quest/internal/identity"
	"github.com/ashureev/schema-quest/internal/quest"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 64 << 10
)

type uploadRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
}

type linkRequest struct {
	URL string `json:"url"`
}

type chooseRequest struct {
	Value string `json:"value"`
}

type submitRequest struct {
	Rationale string `json:"rationale"`
}

type refineRequest struct {
	Note string `json:"note"`
}

type speechRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// StartQuest accepts a multipart "file" upload or a JSON document and opens
// a new quest from it.
func (h *Handler) StartQuest(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	up, err := h.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: "That file is too big for the kitchen.",
				Code:  CodeTooLarge,
			})
			return
		}
		JSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: CodeBadRequest})
		return
	}

	snap, err := h.quests.Start(r.Context(), userID, up)
	if err != nil {
		h.fail(w, r, snap, err)
		return
	}
	JSON(w, http.StatusCreated, questResponse{Snapshot: snap})
}

func (h *Handler) readUpload(r *http.Request) (quest.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
			return quest.Upload{}, err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return quest.Upload{}, errors.New(`multipart field "file" is required`)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return quest.Upload{}, err
		}
		return quest.Upload{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Data:     data,
		}, nil
	}

	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return quest.Upload{}, err
		}
		return quest.Upload{}, errors.New("invalid request body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "upload.txt"
	}
	return quest.Upload{Name: name, MimeType: req.MimeType, Data: []byte(req.Content)}, nil
}

// StartFromLink opens a new quest from a remote document.
func (h *Handler) StartFromLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		Error(w, http.StatusBadRequest, "url is required")
		return
	}

	snap, err := h.quests.StartFromLink(r.Context(), identity.UserIDFromContext(r.Context()), strings.TrimSpace(req.URL))
	if err != nil {
		h.fail(w, r, snap, err)
		return
	}
	JSON(w, http.StatusCreated, questResponse{Snapshot: snap})
}

// ListQuests returns the caller's quests, newest first.
func (h *Handler) ListQuests(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := h.quests.List(r.Context(), identity.UserIDFromContext(r.Context()), limit)
	if err != nil {
		h.logger.Error("list quests", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list quests")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"quests": list})
}

// GetQuest returns one quest snapshot.
func (h *Handler) GetQuest(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quests.Get(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// Choose records the picked option.
func (h *Handler) Choose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	snap, err := h.quests.Choose(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Value)
	h.respond(w, r, http.StatusOK, snap, err)
}

// Submit justifies the current selection.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	snap, err := h.quests.Submit(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Rationale)
	h.respond(w, r, http.StatusOK, snap, err)
}

// Refine reworks the pending question with the player's note.
func (h *Handler) Refine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	snap, err := h.quests.Refine(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Note)
	h.respond(w, r, http.StatusOK, snap, err)
}

// EnsureQuestion re-requests a question after a failed fetch.
func (h *Handler) EnsureQuestion(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quests.EnsureQuestion(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// EnsurePackage re-requests the final package after a failed synthesis.
func (h *Handler) EnsurePackage(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quests.EnsurePackage(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// Restart wipes the quest back to the welcome screen.
func (h *Handler) Restart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quests.Restart(r.Context(), identity.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respond(w, r, http.StatusOK, snap, err)
}

// ExportQuest downloads the final package as JSON or YAML.
func (h *Handler) ExportQuest(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	data, err := h.quests.Export(r.Context(), identity.UserIDFromContext(r.Context()), id, format)
	if err != nil {
		h.fail(w, r, nil, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(id)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("write export", "error", err)
	}
}

// Speech synthesizes text, or the quest's current chef line, as raw PCM.
func (h *Handler) Speech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	pcm, err := h.quests.Speak(r.Context(), identity.UserIDFromContext(r.Context()), req.SessionID, req.Text)
	if err != nil {
		h.fail(w, r, nil, err)
		return
	}

	w.Header().Set("Content-Type", domain.SpeechContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(pcm)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pcm); err != nil {
		h.logger.Debug("write speech", "error", err)
	}
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeJSON(r, v); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
