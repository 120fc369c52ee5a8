package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/schema-quest/internal/identity"
	"github.com/ashureev/schema-quest/internal/quest"
	"github.com/ashureev/schema-quest/internal/store"
)

type fakeQuests struct{}

func (fakeQuests) Get(_ context.Context, _ string, id string) (*quest.Snapshot, error) {
	if id != "q1" {
		return nil, quest.ErrNotFound
	}
	return &quest.Snapshot{ID: "q1", ChefMessage: "Bold move."}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFeedServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	r.Get("/ws/quests/{id}", NewHandler(hub, fakeQuests{}, "*", true, quietLogger()).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestFeedSendsSnapshotThenEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger())
	srv := newFeedServer(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/quests/q1"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if ev := readEvent(ctx, t, conn); ev.Type != EventSnapshot || ev.SessionID != "q1" {
		t.Fatalf("first event = %+v", ev)
	}

	hub.Publish("q1", quest.EventArchiveReminder, map[string]string{"error_kind": "AUTH"})
	hub.Publish("other", quest.EventQuestionReady, nil)

	ev := readEvent(ctx, t, conn)
	if ev.Type != quest.EventArchiveReminder {
		t.Fatalf("event = %+v", ev)
	}
	payload, _ := ev.Payload.(map[string]any)
	if payload["error_kind"] != "AUTH" {
		t.Fatalf("payload = %#v", ev.Payload)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if ev := readEvent(ctx, t, conn); ev.Type != EventPong {
		t.Fatalf("expected pong, got %+v", ev)
	}
}

func TestCloseQuestDeliversQueuedEventsThenCloses(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger())
	srv := newFeedServer(t, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/quests/q1"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if ev := readEvent(ctx, t, conn); ev.Type != EventSnapshot {
		t.Fatalf("first event = %+v", ev)
	}

	hub.Publish("q1", quest.EventRestarted, nil)
	hub.CloseQuest("q1")

	if ev := readEvent(ctx, t, conn); ev.Type != quest.EventRestarted {
		t.Fatalf("event = %+v", ev)
	}
	if _, _, err := conn.Read(ctx); err == nil || ctx.Err() != nil {
		t.Fatalf("feed still open after CloseQuest: %v", err)
	}
	if n := hub.Subscribers("q1"); n != 0 {
		t.Fatalf("subscribers = %d", n)
	}
}

func TestFeedUnknownQuest(t *testing.T) {
	t.Parallel()

	srv := newFeedServer(t, NewHub(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/ws/quests/missing"), nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %+v", resp)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger())
	sub := hub.Subscribe("q1", "u1", "tab")

	for i := 0; i < defaultBuffer+5; i++ {
		hub.Publish("q1", quest.EventDecisionLogged, i)
	}
	if got := len(sub.send); got != defaultBuffer {
		t.Fatalf("buffered %d, want %d", got, defaultBuffer)
	}
}

func TestSubscribeReplacesSameTab(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger())
	first := hub.Subscribe("q1", "u1", "tab-1")
	second := hub.Subscribe("q1", "u1", "tab-1")
	other := hub.Subscribe("q1", "u1", "tab-2")

	select {
	case <-first.done:
	default:
		t.Fatal("replaced subscription was not stopped")
	}
	if n := hub.Subscribers("q1"); n != 2 {
		t.Fatalf("subscribers = %d, want 2", n)
	}

	// A stale unsubscribe must not remove the replacement.
	hub.Unsubscribe("q1", first)
	if n := hub.Subscribers("q1"); n != 2 {
		t.Fatalf("stale unsubscribe removed a live feed, subscribers = %d", n)
	}

	hub.Unsubscribe("q1", second)
	hub.CloseQuest("q1")
	select {
	case <-other.done:
	default:
		t.Fatal("CloseQuest did not stop subscriptions")
	}
	if n := hub.Subscribers("q1"); n != 0 {
		t.Fatalf("subscribers = %d after CloseQuest", n)
	}
}
