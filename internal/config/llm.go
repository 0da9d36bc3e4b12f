package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider string        `yaml:"provider"` // gemini
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// UnmarshalYAML decodes the timeout from strings like "60s" while
// leaving absent fields at their prior (default) values.
func (c *LLMConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Provider *string `yaml:"provider"`
		APIKey   *string `yaml:"api_key"`
		Model    *string `yaml:"model"`
		Timeout  *string `yaml:"timeout"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Provider != nil {
		c.Provider = *raw.Provider
	}
	if raw.APIKey != nil {
		c.APIKey = *raw.APIKey
	}
	if raw.Model != nil {
		c.Model = *raw.Model
	}
	if raw.Timeout != nil {
		d, err := time.ParseDuration(*raw.Timeout)
		if err != nil {
			return fmt.Errorf("llm.timeout: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// DefaultLLMConfig returns provider defaults. The API key falls back to
// the environment at wiring time, not here.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider: "gemini",
		Model:    "gemini-2.5-flash",
		Timeout:  60 * time.Second,
	}
}
