// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/schema-quest/internal/domain"
)

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	UserID string
	Limit  int
}

// Repository defines the interface for persisting players and their quests.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// SaveSession creates or replaces a stored quest session.
	SaveSession(ctx context.Context, rec *domain.SessionRecord) error

	// GetSession retrieves a quest session. It returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// ListSessions returns sessions, most recently updated first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*domain.SessionRecord, error)

	// DeleteSession removes a quest session.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupStaleSessions removes incomplete sessions idle longer than ttl.
	CleanupStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
