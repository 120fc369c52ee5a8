package store

import (
	"strings"
	"time"

	"github.com/ashureev/schema-quest/internal/retry"
)

// isConflict reports SQLITE_BUSY and "database is locked" failures.
// Both are concurrency errors worth another attempt.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// busyPolicy waits 100ms, 200ms, 400ms between write attempts.
func busyPolicy() retry.Policy {
	return retry.Policy{
		Name:       "sqlite-busy",
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		Classify:   isConflict,
	}
}
