// Package event defines the append-only event model that records every
// conversation. The event log is the single source of truth: prompts,
// checkpoints, and audit trails are all derived from it.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the event union.
type Kind string

const (
	// KindUserMessage is an inbound message from the user.
	KindUserMessage Kind = "user_message"

	// KindKnowledge carries externally fetched context data. Knowledge
	// events are appended once and never revised in place.
	KindKnowledge Kind = "knowledge"

	// KindKnowledgeUpdate is a scoped widening of earlier knowledge
	// (e.g. a larger date range). It supersedes by append, never by edit.
	KindKnowledgeUpdate Kind = "knowledge_update"

	// KindAction records a tool the provider chose, with its arguments.
	KindAction Kind = "action"

	// KindResult records the outcome of the paired action.
	KindResult Kind = "result"

	// KindCheckpointSummary is the synthesized compaction marker that
	// opens a fresh segment.
	KindCheckpointSummary Kind = "checkpoint_summary"
)

// UserMessage is the payload for KindUserMessage.
type UserMessage struct {
	Text string `json:"text"`
}

// Knowledge is the payload for KindKnowledge and KindKnowledgeUpdate.
type Knowledge struct {
	Source string            `json:"source"`
	Params map[string]string `json:"params,omitempty"`
	Body   string            `json:"body"`
	Reason string            `json:"reason,omitempty"`

	// Supersedes names the source whose params this update widens.
	// Only set on knowledge_update events.
	Supersedes string `json:"supersedes,omitempty"`
}

// Action is the payload for KindAction.
type Action struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Result is the payload for KindResult.
type Result struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	// ResourceVersion is the workout resource version after a mutating
	// action, or the conflicting current version on rejection.
	ResourceVersion int64 `json:"resource_version,omitempty"`
}

// CheckpointSummary is the payload for KindCheckpointSummary.
type CheckpointSummary struct {
	Text string `json:"text"`

	// FromSegmentID identifies the sealed segment this summary compacts.
	FromSegmentID string `json:"from_segment_id"`
}

// Event is one immutable, strictly ordered record in a log segment.
// Seq is assigned by the store at append time and is gap-free per segment.
type Event struct {
	ID        string    `json:"id"`
	SegmentID string    `json:"segment_id"`
	Seq       int64     `json:"seq"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	// Exactly one payload field is set, selected by Kind.
	UserMessage       *UserMessage       `json:"user_message,omitempty"`
	Knowledge         *Knowledge         `json:"knowledge,omitempty"`
	Action            *Action            `json:"action,omitempty"`
	Result            *Result            `json:"result,omitempty"`
	CheckpointSummary *CheckpointSummary `json:"checkpoint_summary,omitempty"`
}

// Validate checks that the payload matches the kind tag.
func (e *Event) Validate() error {
	var want, got int
	set := func(ok bool) {
		if ok {
			got++
		}
	}
	set(e.UserMessage != nil)
	set(e.Knowledge != nil)
	set(e.Action != nil)
	set(e.Result != nil)
	set(e.CheckpointSummary != nil)
	want = 1

	var matched bool
	switch e.Kind {
	case KindUserMessage:
		matched = e.UserMessage != nil
	case KindKnowledge, KindKnowledgeUpdate:
		matched = e.Knowledge != nil
	case KindAction:
		matched = e.Action != nil
	case KindResult:
		matched = e.Result != nil
	case KindCheckpointSummary:
		matched = e.CheckpointSummary != nil
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	if !matched || got != want {
		return fmt.Errorf("event payload does not match kind %q", e.Kind)
	}
	return nil
}

// IsKnowledge reports whether the event carries knowledge of either kind.
func (e *Event) IsKnowledge() bool {
	return e.Kind == KindKnowledge || e.Kind == KindKnowledgeUpdate
}

// NewUserMessage builds a user_message event ready for append.
func NewUserMessage(text string) Event {
	return Event{Kind: KindUserMessage, UserMessage: &UserMessage{Text: text}}
}

// NewKnowledge builds a knowledge event ready for append.
func NewKnowledge(source string, params map[string]string, body, reason string) Event {
	return Event{Kind: KindKnowledge, Knowledge: &Knowledge{
		Source: source, Params: params, Body: body, Reason: reason,
	}}
}

// NewKnowledgeUpdate builds a knowledge_update event widening an earlier
// knowledge event's params.
func NewKnowledgeUpdate(source string, params map[string]string, body, supersedes string) Event {
	return Event{Kind: KindKnowledgeUpdate, Knowledge: &Knowledge{
		Source: source, Params: params, Body: body, Supersedes: supersedes,
	}}
}

// NewAction builds an action event ready for append.
func NewAction(name string, args json.RawMessage) Event {
	return Event{Kind: KindAction, Action: &Action{Name: name, Args: args}}
}

// NewResult builds a result event ready for append.
func NewResult(r Result) Event {
	return Event{Kind: KindResult, Result: &r}
}

// NewCheckpointSummary builds the first event of a fresh segment.
func NewCheckpointSummary(text, fromSegmentID string) Event {
	return Event{Kind: KindCheckpointSummary, CheckpointSummary: &CheckpointSummary{
		Text: text, FromSegmentID: fromSegmentID,
	}}
}
