package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/schema-quest/internal/identity"
	"github.com/ashureev/schema-quest/internal/quest"
)

// Event types produced by the feed itself.
const (
	EventSnapshot = "snapshot"
	EventPong     = "pong"
)

const writeTimeout = 10 * time.Second

// SnapshotSource resolves a quest the caller is allowed to watch.
type SnapshotSource interface {
	Get(ctx context.Context, userID, id string) (*quest.Snapshot, error)
}

// Handler upgrades /ws/quests/{id} to a websocket event feed.
type Handler struct {
	hub           *Hub
	quests        SnapshotSource
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a websocket feed handler.
func NewHandler(hub *Hub, quests SnapshotSource, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:           hub,
		quests:        quests,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for the websocket upgrade. The first
// message is always the current snapshot.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	tab := identity.SessionIDFromContext(r.Context())
	questID := chi.URLParam(r, "id")

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	snap, err := h.quests.Get(r.Context(), userID, questID)
	if err != nil {
		if errors.Is(err, quest.ErrNotFound) {
			http.Error(w, "quest not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load quest for event feed", "quest_id", questID, "error", err)
		http.Error(w, "failed to load quest", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			h.logger.Debug("close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	sub := h.hub.Subscribe(questID, userID, tab)
	defer h.hub.Unsubscribe(questID, sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	first := Event{Type: EventSnapshot, SessionID: questID, Payload: snap, At: time.Now()}
	if err := writeJSON(ctx, ws, first); err != nil {
		h.logger.Debug("send snapshot", "error", err, "quest_id", questID)
		return
	}

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, questID, userID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			h.flush(ctx, ws, sub)
			h.logger.Info("event feed closed", "quest_id", questID, "user_id", userID, "session_id", tab)
			return
		case msg := <-sub.send:
			if err := writeMessage(ctx, ws, msg); err != nil {
				h.logger.Debug("websocket write", "error", err, "quest_id", questID)
				return
			}
		}
	}
}

// flush writes whatever is still queued for sub.
func (h *Handler) flush(ctx context.Context, ws *websocket.Conn, sub *Subscription) {
	for {
		select {
		case msg := <-sub.send:
			if err := writeMessage(ctx, ws, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, questID, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("websocket closed by client", "quest_id", questID, "user_id", userID)
			} else if ctx.Err() == nil {
				h.logger.Warn("websocket read error", "error", err, "quest_id", questID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ctx, ws, Event{Type: EventPong, SessionID: questID, At: time.Now()}); err != nil {
				h.logger.Debug("send pong", "error", err)
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeMessage(ctx, ws, data)
}

func writeMessage(ctx context.Context, ws *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
