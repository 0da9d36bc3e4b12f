// Package loop declares the action vocabulary and runs the bounded
// tool-calling control loop. Each iteration asks the completion provider
// for exactly one action, executes it, and appends the action/result
// pair to the event log. The loop halts on the terminal action or when
// the iteration budget is exhausted, never silently.
package loop

import (
	"context"
	"fmt"
	"math"

	"coachd/internal/provider"
)

// Property describes a single argument for schema validation and for the
// declaration sent to the provider.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema defines a tool's expected arguments.
type Schema struct {
	Required   []string            `json:"required,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// Validate checks required keys and property types. Unknown argument
// shapes are rejected before the executor ever sees them.
func (s Schema) Validate(args map[string]any) error {
	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, req)
		}
	}
	for name, val := range args {
		prop, ok := s.Properties[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownArg, name)
		}
		if !typeMatches(prop.Type, val) {
			return fmt.Errorf("%w: %s should be %s", ErrInvalidArgType, name, prop.Type)
		}
	}
	return nil
}

func typeMatches(want string, val any) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		_, ok := val.(float64)
		return ok
	case "integer":
		f, ok := val.(float64)
		return ok && f == math.Trunc(f)
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}

// ExecResult is what a tool execution produces.
type ExecResult struct {
	// Output is the payload recorded in the result event. For
	// user-communication tools it is the user-visible text.
	Output string

	// ResourceVersion is the workout resource version after a mutating
	// tool, or the conflicting current version on rejection.
	ResourceVersion int64
}

// ExecuteFunc is the signature for tool execution. Side effects happen
// exclusively here and must be idempotent under at-least-once delivery
// of the surrounding request.
type ExecuteFunc func(ctx context.Context, args map[string]any) (*ExecResult, error)

// Tool is one declared action the provider may choose.
type Tool struct {
	// Name is the unique action identifier.
	Name string

	// Description is sent to the provider with the schema.
	Description string

	// Schema declares and validates the arguments.
	Schema Schema

	// Execute runs the action.
	Execute ExecuteFunc

	// StatusMessage is the human-readable label streamed when the
	// action starts (e.g. "Swapping exercise").
	StatusMessage string

	// Terminal marks the single action that ends the loop.
	Terminal bool
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ActionSchema converts the tool declaration for the provider boundary.
func (t *Tool) ActionSchema() provider.ActionSchema {
	props := make(map[string]provider.Property, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		props[name] = provider.Property{Type: p.Type, Description: p.Description}
	}
	return provider.ActionSchema{
		Name:        t.Name,
		Description: t.Description,
		Required:    t.Schema.Required,
		Properties:  props,
	}
}
