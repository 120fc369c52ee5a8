package quest

import (
	"context"
	"time"
)

const sweepInterval = 5 * time.Minute

// StartSweeper runs a background goroutine that periodically evicts idle
// sessions from memory and deletes stale incomplete sessions from the store.
func (s *Service) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("session sweeper started", "interval", sweepInterval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				s.logger.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep evicts sessions idle longer than the TTL. Evicted sessions remain in
// the store and are reloaded on demand unless they are stale and incomplete.
func (s *Service) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var evicted []string
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		idle := !e.busy && e.lastActive.Before(cutoff)
		if idle {
			e.next.Discard()
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.pub.CloseQuest(id)
	}
	if len(evicted) > 0 {
		s.logger.Info("session sweeper evicted idle sessions", "count", len(evicted))
	}

	if s.repo != nil {
		deleted, err := s.repo.CleanupStaleSessions(ctx, s.ttl)
		if err != nil {
			s.logger.Error("session sweeper failed to cleanup stored sessions", "error", err)
		} else if deleted > 0 {
			s.logger.Info("session sweeper deleted stale sessions", "count", deleted)
		}
	}
	return len(evicted)
}
