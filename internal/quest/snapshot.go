package quest

import (
	"time"

	"github.com/ashureev/schema-quest/internal/archive"
	"github.com/ashureev/schema-quest/internal/domain"
)

// Selection is an option the player picked but has not justified yet.
type Selection struct {
	FieldID string `json:"field"`
	Value   string `json:"value"`
}

// Snapshot is a read-only view of one quest.
type Snapshot struct {
	ID           string                  `json:"id"`
	SourceName   string                  `json:"source_name,omitempty"`
	Tier         domain.Tier             `json:"tier"`
	Course       domain.CourseInfo       `json:"course"`
	Score        int                     `json:"score"`
	Status       domain.StatusLevel      `json:"status"`
	StatusLabel  string                  `json:"status_label"`
	Completed    bool                    `json:"completed"`
	Fields       []domain.Field          `json:"fields"`
	Decisions    []domain.DecisionRecord `json:"decisions"`
	Question     *domain.PendingQuestion `json:"question,omitempty"`
	Selection    *Selection              `json:"selection,omitempty"`
	Log          []string                `json:"log"`
	ChefMessage  string                  `json:"chef_message"`
	Deliverables *domain.FinalPackage    `json:"deliverables,omitempty"`
	Archive      *archive.Result         `json:"archive,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// Summary is a list entry for stored quests.
type Summary struct {
	ID         string             `json:"id"`
	SourceName string             `json:"source_name"`
	Tier       domain.Tier        `json:"tier"`
	Score      int                `json:"score"`
	Status     domain.StatusLevel `json:"status"`
	Decisions  int                `json:"decisions"`
	Completed  bool               `json:"completed"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// snapshot must be called with e.mu held.
func (e *entry) snapshot() *Snapshot {
	s := e.sess.Clone()
	snap := &Snapshot{
		ID:           s.ID,
		SourceName:   s.SourceName,
		Tier:         s.Tier,
		Course:       s.Tier.Course(),
		Score:        s.Score,
		Status:       s.Status(),
		Completed:    s.Completed,
		Fields:       s.Fields,
		Decisions:    s.Decisions,
		Question:     s.Question,
		Log:          s.Log,
		ChefMessage:  e.chef,
		Deliverables: s.Package,
		UpdatedAt:    e.lastActive,
	}
	snap.StatusLabel = snap.Status.Label()
	if e.selection != nil {
		sel := *e.selection
		snap.Selection = &sel
	}
	if e.archive != nil {
		res := *e.archive
		snap.Archive = &res
	}
	return snap
}
