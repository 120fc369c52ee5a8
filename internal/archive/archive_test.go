package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ashureev/schema-quest/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, KindAuth},
		{"wrapped unauthorized", fmt.Errorf("upload: %w", &googleapi.Error{Code: 401}), KindAuth},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, KindPermission},
		{"server error", &googleapi.Error{Code: 500}, KindUnknown},
		{"transport", &url.Error{Op: "Post", URL: "https://example.invalid", Err: errors.New("connection refused")}, KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func newTestDrive(t *testing.T, h http.HandlerFunc) *Drive {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	d, err := NewDrive(context.Background(), "folder-1", quietLogger(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewDrive: %v", err)
	}
	return d
}

func TestDriveArchiveSuccess(t *testing.T) {
	t.Parallel()

	d := newTestDrive(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "folder-1") || !strings.Contains(string(body), "Silver Layer Harvest") {
			t.Errorf("upload metadata missing folder or description: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"file-9"}`)
	})

	res := d.Archive(context.Background(), File{Name: "fleet.csv", MimeType: "text/csv", Data: []byte("vin\n1\n")}, domain.TierSilver)
	if !res.Success || res.ID != "file-9" {
		t.Fatalf("result = %+v", res)
	}
	if res.Link != "https://drive.google.com/file/d/file-9/view" {
		t.Fatalf("link = %q", res.Link)
	}
}

func TestDriveArchiveReadOnlyKeyIsAuth(t *testing.T) {
	t.Parallel()

	d := newTestDrive(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"API keys are not supported by this API"}}`)
	})

	res := d.Archive(context.Background(), File{Name: "fleet.csv", Data: []byte("x")}, domain.TierBronze)
	if res.Success || res.ErrorKind != KindAuth {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Message, "manually") {
		t.Fatalf("auth result should prompt a manual upload, got %q", res.Message)
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	got := objectKey(domain.TierGold, "../exports/fleet.csv", at)
	if got != "harvest/gold/20260301T123000Z-fleet.csv" {
		t.Fatalf("objectKey = %q", got)
	}
}

func TestNewNoneBackend(t *testing.T) {
	a, err := New(context.Background(), Config{Backend: BackendNone}, quietLogger())
	if err != nil || a != nil {
		t.Fatalf("New(none) = %v, %v", a, err)
	}
	if _, err := New(context.Background(), Config{Backend: "ftp"}, quietLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
