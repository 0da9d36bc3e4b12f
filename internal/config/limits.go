package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits bounds the control loop and context growth. These are tunable
// operational parameters, not invariants.
type Limits struct {
	// MaxIterations caps provider calls per turn.
	MaxIterations int `yaml:"max_iterations"`

	// CheckpointBudgetTokens is the transcript size that triggers a
	// checkpoint.
	CheckpointBudgetTokens int `yaml:"checkpoint_budget_tokens"`

	// ToolTimeout bounds one tool execution.
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// DefaultLimits returns the standard bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations:          10,
		CheckpointBudgetTokens: 24576,
		ToolTimeout:            30 * time.Second,
	}
}

// UnmarshalYAML decodes durations from strings like "30s" while leaving
// absent fields at their prior (default) values.
func (l *Limits) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxIterations          *int    `yaml:"max_iterations"`
		CheckpointBudgetTokens *int    `yaml:"checkpoint_budget_tokens"`
		ToolTimeout            *string `yaml:"tool_timeout"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxIterations != nil {
		l.MaxIterations = *raw.MaxIterations
	}
	if raw.CheckpointBudgetTokens != nil {
		l.CheckpointBudgetTokens = *raw.CheckpointBudgetTokens
	}
	if raw.ToolTimeout != nil {
		d, err := time.ParseDuration(*raw.ToolTimeout)
		if err != nil {
			return fmt.Errorf("limits.tool_timeout: %w", err)
		}
		l.ToolTimeout = d
	}
	return nil
}

// Validate checks the limits are usable.
func (l Limits) Validate() error {
	if l.MaxIterations < 1 {
		return fmt.Errorf("limits.max_iterations must be >= 1")
	}
	if l.CheckpointBudgetTokens < 1024 {
		return fmt.Errorf("limits.checkpoint_budget_tokens must be >= 1024")
	}
	if l.ToolTimeout <= 0 {
		return fmt.Errorf("limits.tool_timeout must be positive")
	}
	return nil
}
