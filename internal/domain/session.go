package domain

import (
	"time"
)

// SessionRecord is the persisted form of one play-through.
// StateJSON holds the serialized progression state.
type SessionRecord struct {
	SessionID  string
	UserID     string
	SourceName string
	Tier       Tier
	Score      int
	Decisions  int
	Completed  bool
	StateJSON  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
