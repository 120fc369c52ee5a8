package quest

import (
	"context"
	"time"

	"github.com/ashureev/schema-quest/internal/archive"
	"github.com/ashureev/schema-quest/internal/domain"
)

const archiveTimeout = 2 * time.Minute

// archiveAsync uploads the source in the background. The outcome only
// touches the event log and the reminder shown to the player, and is dropped
// if the quest was restarted in the meantime.
func (s *Service) archiveAsync(ctx context.Context, e *entry, f archive.File, tier domain.Tier) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)

	e.mu.Lock()
	gen := e.generation
	e.cancelArchive = cancel
	e.mu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()

		res := s.archiver.Archive(ctx, f, tier)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.generation != gen {
			s.logger.Debug("dropping archive result from before restart", "session_id", e.sess.ID, "file", f.Name)
			return
		}
		e.cancelArchive = nil
		e.archive = &res
		id := e.sess.ID
		switch {
		case res.Success:
			e.sess.AppendLog("Archived " + f.Name + " to the cloud garden.")
			s.pub.Publish(id, EventArchived, res)
		case res.ErrorKind == archive.KindAuth:
			e.sess.AppendLog("Archive needs a manual upload for " + f.Name + ".")
			s.pub.Publish(id, EventArchiveReminder, res)
		default:
			e.sess.AppendLog("Archive failed (" + string(res.ErrorKind) + ") for " + f.Name + ".")
			s.pub.Publish(id, EventArchiveReminder, res)
		}
		s.persist(ctx, e)
	}()
}
