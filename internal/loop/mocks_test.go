package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"coachd/internal/contextbuild"
	"coachd/internal/event"
	"coachd/internal/provider"
	"coachd/internal/store"
)

// step is one scripted provider response.
type step struct {
	choice *provider.Choice
	err    error
}

// scriptedProvider replays a fixed sequence of responses. When the
// script runs out it repeats the last step.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int

	summary      string
	summarizeErr error
}

func (p *scriptedProvider) Choose(ctx context.Context, prompt string, actions []provider.ActionSchema) (*provider.Choice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.steps) == 0 {
		return nil, fmt.Errorf("scripted provider has no steps")
	}
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	return p.steps[i].choice, p.steps[i].err
}

func (p *scriptedProvider) Summarize(ctx context.Context, transcript string) (string, error) {
	if p.summarizeErr != nil {
		return "", p.summarizeErr
	}
	if p.summary != "" {
		return p.summary, nil
	}
	return "summary", nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func choose(action, args string) step {
	return step{choice: &provider.Choice{Action: action, Args: json.RawMessage(args)}}
}

// recordingSink collects stream events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []StreamEvent
}

func (s *recordingSink) Emit(ev StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StreamEvent(nil), s.events...)
}

func (s *recordingSink) count(t StreamEventType) int {
	n := 0
	for _, ev := range s.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// testHarness wires a loop over a real in-memory store.
type testHarness struct {
	store *store.Store
	sess  *event.Session
	prov  *scriptedProvider
}

func newHarness(t *testing.T, prov *scriptedProvider, cfg Config) (*testHarness, *Loop) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sess, err := st.CreateSession(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	registry := NewRegistry()
	registry.MustRegister(&Tool{
		Name:        "send_message",
		Description: "Reply to the user",
		Schema: Schema{
			Required:   []string{"text"},
			Properties: map[string]Property{"text": {Type: "string"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			return &ExecResult{Output: args["text"].(string)}, nil
		},
	})
	registry.MustRegister(&Tool{
		Name:     "idle",
		Terminal: true,
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			return &ExecResult{Output: "idle"}, nil
		},
	})
	registry.MustRegister(&Tool{
		Name: "broken",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			return nil, fmt.Errorf("executor blew up")
		},
	})
	registry.MustRegister(&Tool{
		Name: "flaky_store",
		Execute: func(ctx context.Context, args map[string]any) (*ExecResult, error) {
			return nil, fmt.Errorf("apply command: %w",
				&store.PersistenceError{Op: "CommitApply", Err: fmt.Errorf("database is locked")})
		},
	})

	builder := contextbuild.NewBuilder(st, nil)
	l := New(registry, builder, prov, st, cfg)
	return &testHarness{store: st, sess: sess, prov: prov}, l
}

// countEvents tallies log events of one kind in the current segment.
func (h *testHarness) countEvents(t *testing.T, kind event.Kind) int {
	t.Helper()
	events, err := h.store.Read(context.Background(), h.sess.CurrentSegmentID, 0)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
