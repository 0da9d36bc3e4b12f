package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsConstructorOutput(t *testing.T) {
	cases := []Event{
		NewUserMessage("hello"),
		NewKnowledge("user_profile", nil, "goal: strength", "anchor"),
		NewKnowledgeUpdate("workout_history", map[string]string{"days_back": "30"}, "9 workouts", "workout_history"),
		NewAction("send_message", []byte(`{"text":"hi"}`)),
		NewResult(Result{Action: "send_message", OK: true, Output: "hi"}),
		NewCheckpointSummary("warmup done", "seg-0"),
	}
	for _, ev := range cases {
		assert.NoError(t, ev.Validate(), "kind %s", ev.Kind)
	}
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	ev := Event{Kind: KindUserMessage, Result: &Result{Action: "x"}}
	assert.Error(t, ev.Validate())

	ev = Event{Kind: KindAction}
	assert.Error(t, ev.Validate())

	ev = Event{Kind: Kind("telemetry"), UserMessage: &UserMessage{Text: "x"}}
	assert.Error(t, ev.Validate())

	// Two payloads set at once.
	ev = NewUserMessage("hi")
	ev.Result = &Result{Action: "x"}
	assert.Error(t, ev.Validate())
}

func TestIsKnowledgeCoversBothKinds(t *testing.T) {
	k := NewKnowledge("s", nil, "b", "")
	ku := NewKnowledgeUpdate("s", nil, "b", "s")
	um := NewUserMessage("hi")
	assert.True(t, k.IsKnowledge())
	assert.True(t, ku.IsKnowledge())
	assert.False(t, um.IsKnowledge())
}
