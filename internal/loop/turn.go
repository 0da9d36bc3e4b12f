package loop

import (
	"context"
	"fmt"

	"coachd/internal/checkpoint"
	"coachd/internal/event"
	"coachd/internal/knowledge"
	"coachd/internal/logging"
)

// TurnStore is the store surface the runner needs.
type TurnStore interface {
	GetSession(ctx context.Context, id string) (*event.Session, error)
	Append(ctx context.Context, segmentID string, ev event.Event) (int64, error)
	Read(ctx context.Context, segmentID string, afterSeq int64) ([]event.Event, error)
}

// Runner drives one full turn: append the user message, pull in missing
// knowledge, maybe checkpoint, then run the control loop. Each session's
// turn executes as an independent unit of work; sessions share no
// mutable state.
type Runner struct {
	store      TurnStore
	selector   *knowledge.Selector
	fetchers   *knowledge.Fetchers
	checkpoint *checkpoint.Manager
	loop       *Loop
}

// NewRunner wires a turn runner.
func NewRunner(store TurnStore, selector *knowledge.Selector, fetchers *knowledge.Fetchers, cp *checkpoint.Manager, l *Loop) *Runner {
	return &Runner{store: store, selector: selector, fetchers: fetchers, checkpoint: cp, loop: l}
}

// Turn processes one inbound user message. The sink receives stream
// events in log-append order; done is emitted exactly once, last, even
// on error paths. Cancellation aborts outstanding provider calls but
// already-appended events are retained, so a retried request resumes
// rather than repeats.
func (r *Runner) Turn(ctx context.Context, sessionID, message string, sink EventSink) (outcome *Outcome, err error) {
	if sink == nil {
		sink = NopSink{}
	}
	defer func() {
		if err != nil {
			sink.Emit(StreamEvent{Type: StreamError, Message: err.Error()})
		}
		sink.Emit(StreamEvent{Type: StreamDone})
	}()

	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if _, err = r.store.Append(ctx, sess.CurrentSegmentID, event.NewUserMessage(message)); err != nil {
		return nil, err
	}

	// Knowledge selection is best-effort: a selector or fetcher failure
	// degrades the turn, it never blocks it.
	r.gatherKnowledge(ctx, sess, message, sink)

	sess, rolled, err := r.checkpoint.MaybeCheckpoint(ctx, sess)
	if err != nil {
		return nil, err
	}
	if rolled {
		sink.Emit(StreamEvent{Type: StreamStatus, Message: "Condensed earlier conversation"})
	}

	outcome, err = r.loop.Run(ctx, sess, sink)
	if err != nil {
		return nil, err
	}
	if outcome.Status == StatusMaxIterations {
		sink.Emit(StreamEvent{Type: StreamStatus, Message: "Stopped after reaching the action limit"})
	}
	return outcome, nil
}

// gatherKnowledge runs the selector and appends fetched knowledge.
func (r *Runner) gatherKnowledge(ctx context.Context, sess *event.Session, message string, sink EventSink) {
	events, err := r.store.Read(ctx, sess.CurrentSegmentID, 0)
	if err != nil {
		logging.Get(logging.CategoryKnowledge).Warnf("skipping knowledge selection, read failed: %v", err)
		return
	}

	var present []knowledge.Ref
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.IsKnowledge() {
			present = append(present, knowledge.Ref{Source: ev.Knowledge.Source, Params: ev.Knowledge.Params})
			seen[ev.Knowledge.Source] = true
		}
	}

	decision, err := r.selector.Select(ctx, message, present)
	if err != nil {
		logging.Get(logging.CategoryKnowledge).Warnf("selector failed, continuing without new knowledge: %v", err)
		return
	}

	for _, pick := range decision.Append {
		body, err := r.fetchers.Fetch(ctx, pick.Source, pick.Params)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Warnf("fetch %s failed: %v", pick.Source, err)
			continue
		}

		var ev event.Event
		if pick.Widens && seen[pick.Source] {
			ev = event.NewKnowledgeUpdate(pick.Source, pick.Params, body, pick.Source)
		} else {
			ev = event.NewKnowledge(pick.Source, pick.Params, body, pick.Reason)
		}
		if _, err := r.store.Append(ctx, sess.CurrentSegmentID, ev); err != nil {
			logging.Get(logging.CategoryKnowledge).Warnf("append %s failed: %v", pick.Source, err)
			continue
		}
		sink.Emit(StreamEvent{
			Type:    StreamKnowledge,
			Message: fmt.Sprintf("fetched %s", pick.Source),
		})
	}
}
