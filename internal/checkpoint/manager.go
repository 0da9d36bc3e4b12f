// Package checkpoint bounds context growth. When the transcript since
// the last checkpoint exceeds its token budget, the manager summarizes
// it and rolls the session onto a fresh log segment. Knowledge events
// are never summarized; they are replayed verbatim into the new segment
// so the provider's prompt cache stays warm.
package checkpoint

import (
	"context"

	"coachd/internal/contextbuild"
	"coachd/internal/event"
	"coachd/internal/logging"
)

// Summarizer is the slice of the completion provider the manager needs.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Log is the slice of the store the manager needs.
type Log interface {
	Rollover(ctx context.Context, sessionID, summary string, knowledge []event.Event) (*event.Segment, error)
}

// Manager decides and performs checkpoints.
type Manager struct {
	log        Log
	builder    *contextbuild.Builder
	summarizer Summarizer
	budget     int
}

// DefaultBudgetTokens is the transcript budget before a checkpoint fires.
const DefaultBudgetTokens = 24576

// NewManager creates a manager. budget <= 0 selects the default.
func NewManager(log Log, builder *contextbuild.Builder, summarizer Summarizer, budget int) *Manager {
	if budget <= 0 {
		budget = DefaultBudgetTokens
	}
	return &Manager{log: log, builder: builder, summarizer: summarizer, budget: budget}
}

// MaybeCheckpoint rolls the session forward when the transcript exceeds
// the budget. It returns the (possibly updated) session and whether a
// checkpoint happened. Summarization failure defers the checkpoint: the
// session continues on the current segment and no partial segment is
// ever created, because losing events is worse than a long prompt.
func (m *Manager) MaybeCheckpoint(ctx context.Context, sess *event.Session) (*event.Session, bool, error) {
	prompt, err := m.builder.Build(ctx, sess)
	if err != nil {
		return sess, false, err
	}

	used := prompt.TranscriptTokens()
	if used <= m.budget {
		return sess, false, nil
	}
	logging.Checkpoint("session %s transcript at ~%d tokens exceeds budget %d", sess.ID, used, m.budget)

	summary, err := m.summarizer.Summarize(ctx, prompt.Transcript)
	if err != nil {
		logging.Get(logging.CategoryCheckpoint).Warnf("summarization failed, deferring checkpoint for %s: %v", sess.ID, err)
		return sess, false, nil
	}

	seg, err := m.log.Rollover(ctx, sess.ID, summary, prompt.KnowledgeEvents)
	if err != nil {
		return sess, false, err
	}

	next := *sess
	next.CurrentSegmentID = seg.ID
	logging.Checkpoint("session %s rolled onto segment %s", sess.ID, seg.ID)
	return &next, true, nil
}
