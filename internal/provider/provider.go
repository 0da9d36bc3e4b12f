// Package provider defines the boundary to the external text-completion
// service. The service is treated as a pure function: prompt plus
// declared action schemas in, exactly one chosen action out. No state is
// retained between calls.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Property describes one parameter of an action schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ActionSchema declares one action the provider may choose.
type ActionSchema struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Required    []string            `json:"required,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// Choice is the provider's single chosen action.
type Choice struct {
	Action string
	Args   json.RawMessage
}

// ProtocolError reports an unparseable or multi-action provider response.
// The control loop retries it once locally, then surfaces it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "provider protocol error: " + e.Reason
}

// Provider is the completion boundary used by the control loop and the
// checkpoint manager.
type Provider interface {
	// Choose asks for exactly one action from the declared schemas.
	Choose(ctx context.Context, prompt string, actions []ActionSchema) (*Choice, error)

	// Summarize produces a terse summary of a transcript for checkpoints.
	Summarize(ctx context.Context, transcript string) (string, error)
}

// parseChoice validates the one-action contract shared by implementations.
func parseChoice(names []string, args []json.RawMessage) (*Choice, error) {
	switch len(names) {
	case 0:
		return nil, &ProtocolError{Reason: "response contained no action"}
	case 1:
		raw := args[0]
		if len(raw) == 0 {
			raw = json.RawMessage(`{}`)
		}
		if !json.Valid(raw) {
			return nil, &ProtocolError{Reason: "action arguments are not valid JSON"}
		}
		return &Choice{Action: names[0], Args: raw}, nil
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("response contained %d actions, want 1", len(names))}
	}
}
