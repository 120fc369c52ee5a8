// Package identity resolves the anonymous player behind a request.
//
// A player is a long-lived cookie ID plus the browser tab the request came
// from. Both are attached to the request context by Middleware.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/schema-quest/internal/domain"
	"github.com/ashureev/schema-quest/internal/store"
)

const (
	AnonCookieName    = "schemaquest_anon_id"
	SessionHeaderName = "X-Schema-Quest-Session-ID"
	// DefaultTab is used when a request names no tab, or an invalid one.
	DefaultTab = "default"

	anonCookieMaxAge   = 30 * 24 * time.Hour
	lastSeenResolution = time.Minute
)

var (
	anonIDPattern = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	tabPattern    = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Player identifies who is playing and from which tab.
type Player struct {
	UserID string
	Tab    string
}

type playerKey struct{}

// FromContext returns the player attached by Middleware.
func FromContext(ctx context.Context) Player {
	if p, ok := ctx.Value(playerKey{}).(Player); ok {
		return p
	}
	return Player{Tab: DefaultTab}
}

// UserIDFromContext returns the player's user ID, or "" outside Middleware.
func UserIDFromContext(ctx context.Context) string {
	return FromContext(ctx).UserID
}

// SessionIDFromContext returns the player's tab.
func SessionIDFromContext(ctx context.Context) string {
	return FromContext(ctx).Tab
}

// Middleware attaches the Player to every request, issuing a cookie and
// creating the user record on first contact.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := anonID(r)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}
			setAnonCookie(w, userID, isDev)

			if err := touchUser(r.Context(), repo, userID); err != nil {
				http.Error(w, `{"error":"failed to initialize anonymous user"}`, http.StatusInternalServerError)
				return
			}

			p := Player{UserID: userID, Tab: tabFromRequest(r)}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, p)))
		})
	}
}

// anonID returns the request's cookie ID, or a new one when the cookie is
// missing or malformed.
func anonID(r *http.Request) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		return c.Value, nil
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

// setAnonCookie (re)issues the cookie so its expiry slides with activity.
func setAnonCookie(w http.ResponseWriter, userID string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// touchUser creates the user on first sight and otherwise bumps last seen,
// at most once per lastSeenResolution.
func touchUser(ctx context.Context, repo store.Repository, userID string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	if user != nil {
		if user.IdleFor(now) < lastSeenResolution {
			return nil
		}
		return repo.UpdateLastSeen(ctx, userID, now)
	}
	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   chefName(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func chefName(userID string) string {
	return "chef-" + userID[len(userID)-8:]
}

// tabFromRequest reads the tab from the header, or from the query string
// for websocket upgrades, which cannot carry custom headers.
func tabFromRequest(r *http.Request) string {
	tab := strings.TrimSpace(r.Header.Get(SessionHeaderName))
	if tab == "" {
		tab = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if !tabPattern.MatchString(tab) {
		return DefaultTab
	}
	return tab
}

// IPFromRequest returns the remote IP without its port.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
