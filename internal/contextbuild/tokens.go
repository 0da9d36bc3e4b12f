package contextbuild

import (
	"unicode/utf8"

	"coachd/internal/event"
)

// TokenCounter estimates prompt size for budget decisions. The heuristic
// is calibrated for current provider tokenizers at ~4 characters per
// token; exact counts are not required, only a stable trigger signal.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter returns a counter with default calibration.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{charsPerToken: 4.0}
}

// CountString estimates tokens in a string.
func (tc *TokenCounter) CountString(s string) int {
	if s == "" {
		return 0
	}
	return int(float64(utf8.RuneCountInString(s)) / tc.charsPerToken)
}

// CountEvent estimates tokens a single event contributes to a prompt.
func (tc *TokenCounter) CountEvent(ev event.Event) int {
	tokens := 6 // role label, framing
	switch {
	case ev.UserMessage != nil:
		tokens += tc.CountString(ev.UserMessage.Text)
	case ev.Knowledge != nil:
		tokens += tc.CountString(ev.Knowledge.Body) + tc.CountString(ev.Knowledge.Source) + 4*len(ev.Knowledge.Params)
	case ev.Action != nil:
		tokens += tc.CountString(ev.Action.Name) + tc.CountString(string(ev.Action.Args))
	case ev.Result != nil:
		tokens += tc.CountString(ev.Result.Output) + tc.CountString(ev.Result.Error) + 2
	case ev.CheckpointSummary != nil:
		tokens += tc.CountString(ev.CheckpointSummary.Text)
	}
	return tokens
}

// CountEvents estimates tokens for a slice of events.
func (tc *TokenCounter) CountEvents(events []event.Event) int {
	total := 0
	for _, ev := range events {
		total += tc.CountEvent(ev)
	}
	return total
}
