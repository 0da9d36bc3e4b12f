package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"coachd/internal/logging"
)

// GeminiProvider implements Provider on the Gemini API via the genai SDK.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiProvider{client: client, model: model, timeout: timeout}, nil
}

// Choose sends the prompt with the action declarations and requires the
// model to call exactly one function. The per-call timeout is hard: a
// timeout surfaces as an error the loop records as a failed attempt, not
// as an invisible retry.
func (p *GeminiProvider) Choose(ctx context.Context, prompt string, actions []ActionSchema) (*Choice, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	decls := make([]*genai.FunctionDeclaration, 0, len(actions))
	for _, a := range actions {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        a.Name,
			Description: a.Description,
			Parameters:  schemaFor(a),
		})
	}

	cfg := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{FunctionDeclarations: decls}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(callCtx, p.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	logging.Provider("gemini choose took %v (%d declared actions)", time.Since(start), len(actions))

	calls := resp.FunctionCalls()
	names := make([]string, 0, len(calls))
	args := make([]json.RawMessage, 0, len(calls))
	for _, fc := range calls {
		raw, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, &ProtocolError{Reason: "unmarshalable function call arguments"}
		}
		names = append(names, fc.Name)
		args = append(args, raw)
	}
	return parseChoice(names, args)
}

// Summarize asks for a terse summary of the transcript. Knowledge is
// never included here; it is carried into the new segment verbatim.
func (p *GeminiProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := "Summarize this coaching conversation in a few terse sentences. " +
		"Keep decisions, open requests, and the state of the workout. Drop pleasantries.\n\n" + transcript

	resp, err := p.client.Models.GenerateContent(callCtx, p.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("gemini summarize: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &ProtocolError{Reason: "empty summary response"}
	}
	return text, nil
}

func schemaFor(a ActionSchema) *genai.Schema {
	if len(a.Properties) == 0 {
		return nil
	}
	props := make(map[string]*genai.Schema, len(a.Properties))
	for name, prop := range a.Properties {
		props[name] = &genai.Schema{
			Type:        genaiType(prop.Type),
			Description: prop.Description,
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   a.Required,
	}
}

func genaiType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
