// Package contextbuild derives the provider-facing prompt from the event
// log. Section order is a design invariant, not a formatting choice: the
// stable prefix must be byte-identical turn to turn, and knowledge is
// replayed in append order and never reordered or removed, so the
// provider's prompt cache keeps hitting on previously seen tokens.
package contextbuild

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"coachd/internal/event"
	"coachd/internal/logging"
)

// EventSource is the slice of the store the builder reads.
type EventSource interface {
	Read(ctx context.Context, segmentID string, afterSeq int64) ([]event.Event, error)
}

// Prompt is the assembled provider input, split into its cacheable
// sections.
type Prompt struct {
	StablePrefix string
	Knowledge    string
	Transcript   string

	// KnowledgeEvents are the raw knowledge/knowledge_update events in
	// append order; the checkpoint manager carries these forward verbatim.
	KnowledgeEvents []event.Event

	// TranscriptEvents are the user_message/action/result events since
	// the last checkpoint_summary (which itself heads the transcript).
	TranscriptEvents []event.Event

	counter *TokenCounter
}

// Render concatenates the sections in their fixed order.
func (p *Prompt) Render() string {
	var b strings.Builder
	b.WriteString(p.StablePrefix)
	if p.Knowledge != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Knowledge)
	}
	if p.Transcript != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Transcript)
	}
	return b.String()
}

// EstimatedTokens estimates the full prompt size.
func (p *Prompt) EstimatedTokens() int {
	return p.counter.CountString(p.Render())
}

// TranscriptTokens estimates only the transcript portion, which is what
// the checkpoint budget is measured against.
func (p *Prompt) TranscriptTokens() int {
	return p.counter.CountEvents(p.TranscriptEvents)
}

// Builder assembles prompts for a session.
type Builder struct {
	src          EventSource
	instructions string
	profile      map[string]string
	counter      *TokenCounter
}

// DefaultInstructions is the identity block of the stable prefix.
const DefaultInstructions = `You are a personal fitness coach. You guide the user through their ` +
	`workout session, adjust it on request, and keep answers short and ` +
	`practical. On every turn you must choose exactly one of the declared ` +
	`actions. Choose the idle action when there is nothing left to do.`

// NewBuilder creates a builder. Profile holds slow-changing facts about
// the user; it is rendered deterministically so the prefix only changes
// when a fact changes.
func NewBuilder(src EventSource, profile map[string]string) *Builder {
	return &Builder{
		src:          src,
		instructions: DefaultInstructions,
		profile:      profile,
		counter:      NewTokenCounter(),
	}
}

// SetInstructions overrides the identity block. Intended for tests and
// experimentation; changing it invalidates the provider's prompt cache.
func (b *Builder) SetInstructions(s string) { b.instructions = s }

// Build assembles the prompt for the session's active segment.
func (b *Builder) Build(ctx context.Context, sess *event.Session) (*Prompt, error) {
	events, err := b.src.Read(ctx, sess.CurrentSegmentID, 0)
	if err != nil {
		return nil, fmt.Errorf("context build: %w", err)
	}

	p := &Prompt{
		StablePrefix: b.stablePrefix(),
		counter:      b.counter,
	}

	var know, trans strings.Builder
	for _, ev := range events {
		switch {
		case ev.IsKnowledge():
			p.KnowledgeEvents = append(p.KnowledgeEvents, ev)
			writeKnowledge(&know, ev)
		case ev.Kind == event.KindCheckpointSummary:
			// The summary heads the transcript of the fresh segment.
			fmt.Fprintf(&trans, "[summary of earlier conversation]\n%s\n", ev.CheckpointSummary.Text)
		default:
			p.TranscriptEvents = append(p.TranscriptEvents, ev)
			writeTranscript(&trans, ev)
		}
	}

	p.Knowledge = strings.TrimRight(know.String(), "\n")
	p.Transcript = strings.TrimRight(trans.String(), "\n")

	logging.Context("built prompt for session %s: %d knowledge, %d transcript events, ~%d tokens",
		sess.ID, len(p.KnowledgeEvents), len(p.TranscriptEvents), p.EstimatedTokens())
	return p, nil
}

// stablePrefix renders instructions plus profile facts with sorted keys
// and fixed formatting, so the output is byte-identical across turns.
func (b *Builder) stablePrefix() string {
	var sb strings.Builder
	sb.WriteString(b.instructions)

	if len(b.profile) > 0 {
		sb.WriteString("\n\nUser profile:\n")
		keys := make([]string, 0, len(b.profile))
		for k := range b.profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, b.profile[k])
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeKnowledge(sb *strings.Builder, ev event.Event) {
	k := ev.Knowledge
	label := "knowledge"
	if ev.Kind == event.KindKnowledgeUpdate {
		label = "knowledge update"
	}
	fmt.Fprintf(sb, "[%s: %s%s]\n%s\n", label, k.Source, renderParams(k.Params), k.Body)
}

// renderParams renders params with sorted keys so a knowledge event
// always serializes identically.
func renderParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return " " + strings.Join(parts, " ")
}

func writeTranscript(sb *strings.Builder, ev event.Event) {
	switch ev.Kind {
	case event.KindUserMessage:
		fmt.Fprintf(sb, "user: %s\n", ev.UserMessage.Text)
	case event.KindAction:
		fmt.Fprintf(sb, "action: %s %s\n", ev.Action.Name, string(ev.Action.Args))
	case event.KindResult:
		if ev.Result.OK {
			fmt.Fprintf(sb, "result: ok %s\n", ev.Result.Output)
		} else {
			fmt.Fprintf(sb, "result: failed %s\n", ev.Result.Error)
		}
	}
}
