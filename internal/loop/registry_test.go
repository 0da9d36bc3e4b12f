package loop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopExecute(ctx context.Context, args map[string]any) (*ExecResult, error) {
	return &ExecResult{}, nil
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{Name: "send_message", Execute: noopExecute}))

	err := r.Register(&Tool{Name: "send_message", Execute: noopExecute})
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
}

func TestRegistryAllowsSingleTerminal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{Name: "idle", Terminal: true, Execute: noopExecute}))

	err := r.Register(&Tool{Name: "finish", Terminal: true, Execute: noopExecute})
	assert.ErrorIs(t, err, ErrSecondTerminal)
}

func TestRegistryValidatesDefinitions(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(&Tool{Execute: noopExecute}), ErrToolNameEmpty)
	assert.ErrorIs(t, r.Register(&Tool{Name: "ghost"}), ErrToolExecuteNil)
}

func TestRegistrySchemasSortedByName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(&Tool{Name: name, Execute: noopExecute}))
	}

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "mid", schemas[1].Name)
	assert.Equal(t, "zeta", schemas[2].Name)
}

func TestSchemaValidate(t *testing.T) {
	s := Schema{
		Required: []string{"text"},
		Properties: map[string]Property{
			"text":  {Type: "string"},
			"count": {Type: "integer"},
			"load":  {Type: "number"},
		},
	}

	assert.NoError(t, s.Validate(map[string]any{"text": "hi"}))
	assert.NoError(t, s.Validate(map[string]any{"text": "hi", "count": float64(3), "load": 72.5}))
	assert.ErrorIs(t, s.Validate(map[string]any{}), ErrMissingRequiredArg)
	assert.ErrorIs(t, s.Validate(map[string]any{"text": "hi", "bogus": 1}), ErrUnknownArg)
	assert.ErrorIs(t, s.Validate(map[string]any{"text": 7}), ErrInvalidArgType)
	assert.ErrorIs(t, s.Validate(map[string]any{"text": "hi", "count": 2.5}), ErrInvalidArgType)
}
