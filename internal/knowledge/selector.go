// Package knowledge decides which external data to pull into a session's
// context and fetches it. Knowledge is append-only by construction: the
// selector may widen a parameter (a larger date range), but the widening
// is appended as a new event, never an in-place edit. The selector is an
// optimization, not a correctness gate; when it errs toward fetching
// nothing the control loop still proceeds.
package knowledge

import (
	"context"
	"strconv"
	"strings"

	"coachd/internal/logging"
)

// Source names.
const (
	SourceWorkoutHistory  = "workout_history"
	SourceUserProfile     = "user_profile"
	SourceExerciseLibrary = "exercise_library"
)

// Ref identifies knowledge already present in the context.
type Ref struct {
	Source string
	Params map[string]string
}

// Pick is one fetch the selector decided on.
type Pick struct {
	Source string
	Params map[string]string
	Reason string

	// Widens marks a pick that supersedes an existing ref with narrower
	// params; the caller appends it as a knowledge_update.
	Widens bool
}

// Decision is the selector output.
type Decision struct {
	Append []Pick
	Reuse  []string
}

// Selector is a cheap, rule-based decision step. It never calls the
// completion provider.
type Selector struct{}

// NewSelector creates a selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Select inspects the user message and the already-present refs and
// decides what to fetch. A (source, params) request satisfied by an
// existing ref with equal-or-wider params lands in Reuse, not Append.
func (s *Selector) Select(ctx context.Context, userMessage string, present []Ref) (Decision, error) {
	msg := strings.ToLower(userMessage)
	var wants []Pick

	// Profile is always useful and tiny; fetch it once per session.
	wants = append(wants, Pick{
		Source: SourceUserProfile,
		Reason: "profile facts anchor coaching advice",
	})

	if mentionsAny(msg, "history", "last time", "last week", "progress", "before", "previous") {
		days := 7
		if mentionsAny(msg, "month", "30 days", "weeks") {
			days = 30
		}
		wants = append(wants, Pick{
			Source: SourceWorkoutHistory,
			Params: map[string]string{"days_back": strconv.Itoa(days)},
			Reason: "user referenced past workouts",
		})
	}

	if group := muscleGroupIn(msg); group != "" && mentionsAny(msg, "swap", "replace", "instead", "alternative", "different", "add") {
		wants = append(wants, Pick{
			Source: SourceExerciseLibrary,
			Params: map[string]string{"muscle_group": group},
			Reason: "user wants exercise alternatives for " + group,
		})
	}

	var d Decision
	for _, w := range wants {
		covered, narrower := coverage(w, present)
		switch {
		case covered:
			d.Reuse = append(d.Reuse, w.Source)
		case narrower:
			w.Widens = true
			d.Append = append(d.Append, w)
		default:
			d.Append = append(d.Append, w)
		}
	}

	logging.Knowledge("selector: %d append, %d reuse for message of %d chars", len(d.Append), len(d.Reuse), len(userMessage))
	return d, nil
}

// coverage reports whether an existing ref satisfies the pick
// (equal-or-wider params) and, if not, whether one exists with narrower
// params for the same source.
func coverage(w Pick, present []Ref) (covered, narrower bool) {
	for _, ref := range present {
		if ref.Source != w.Source {
			continue
		}
		if satisfies(ref.Params, w.Params) {
			return true, false
		}
		narrower = true
	}
	return false, narrower
}

// satisfies reports whether have covers want. days_back compares
// numerically (a wider range covers a narrower one); other params must
// match exactly.
func satisfies(have, want map[string]string) bool {
	for k, wv := range want {
		hv, ok := have[k]
		if !ok {
			return false
		}
		if k == "days_back" {
			hn, herr := strconv.Atoi(hv)
			wn, werr := strconv.Atoi(wv)
			if herr != nil || werr != nil {
				if hv != wv {
					return false
				}
				continue
			}
			if hn < wn {
				return false
			}
			continue
		}
		if hv != wv {
			return false
		}
	}
	return true
}

func mentionsAny(msg string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

var muscleGroups = []string{"chest", "back", "legs", "shoulders", "arms", "core", "glutes"}

func muscleGroupIn(msg string) string {
	for _, g := range muscleGroups {
		if strings.Contains(msg, g) {
			return g
		}
	}
	return ""
}
