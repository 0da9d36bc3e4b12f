package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coachd/internal/contextbuild"
	"coachd/internal/event"
	"coachd/internal/logging"
	"coachd/internal/provider"
	"coachd/internal/store"
)

// State is the loop's position in its state machine.
type State string

const (
	StateRunning          State = "running"
	StateAwaitingProvider State = "awaiting_provider"
	StateExecutingAction  State = "executing_action"
	StateTerminal         State = "terminal"
)

// Status is the loop's terminal status.
type Status string

const (
	// StatusTerminal means the provider chose the terminal action.
	StatusTerminal Status = "terminal"

	// StatusMaxIterations means the iteration budget ran out before a
	// terminal action. A deliberate, observable stop, not an error.
	StatusMaxIterations Status = "max_iterations_exceeded"
)

// Outcome reports how a loop run ended.
type Outcome struct {
	Status     Status
	Iterations int
	Duration   time.Duration
}

// Config bounds a loop run.
type Config struct {
	// MaxIterations is the hard cap on provider calls per run.
	MaxIterations int

	// ToolTimeout bounds a single executor call.
	ToolTimeout time.Duration
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 10,
		ToolTimeout:   30 * time.Second,
	}
}

// Log is the slice of the store the loop appends to.
type Log interface {
	Append(ctx context.Context, segmentID string, ev event.Event) (int64, error)
}

// Loop runs the bounded control loop for one session turn.
type Loop struct {
	registry *Registry
	builder  *contextbuild.Builder
	provider provider.Provider
	log      Log
	cfg      Config
}

// New creates a loop.
func New(registry *Registry, builder *contextbuild.Builder, prov provider.Provider, log Log, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultConfig().ToolTimeout
	}
	return &Loop{registry: registry, builder: builder, provider: prov, log: log, cfg: cfg}
}

// Run executes iterations until the terminal action is chosen or the cap
// is reached. Executor failures are appended as failing results and the
// loop continues, so the provider sees the failure and can choose
// differently. Only a PersistenceError aborts: once the audit trail
// cannot be trusted there is nothing safe left to do.
func (l *Loop) Run(ctx context.Context, sess *event.Session, sink EventSink) (*Outcome, error) {
	if sink == nil {
		sink = NopSink{}
	}
	start := time.Now()
	state := StateRunning

	for i := 1; i <= l.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prompt, err := l.builder.Build(ctx, sess)
		if err != nil {
			return nil, err
		}

		state = StateAwaitingProvider
		choice, err := l.choose(ctx, prompt.Render())
		if err != nil {
			// Timeouts and protocol failures are failed attempts on the
			// record, not invisible retries.
			if aerr := l.appendFailure(ctx, sess, "", err); aerr != nil {
				return nil, aerr
			}
			sink.Emit(StreamEvent{Type: StreamActionResult, OK: boolPtr(false), Message: err.Error()})
			continue
		}

		tool := l.registry.Get(choice.Action)
		if tool == nil {
			err := fmt.Errorf("%w: %s", ErrToolNotFound, choice.Action)
			if aerr := l.appendFailure(ctx, sess, choice.Action, err); aerr != nil {
				return nil, aerr
			}
			sink.Emit(StreamEvent{Type: StreamActionResult, Action: choice.Action, OK: boolPtr(false), Message: err.Error()})
			continue
		}

		args, err := decodeArgs(choice.Args)
		if err == nil {
			err = tool.Schema.Validate(args)
		}
		if err != nil {
			if aerr := l.appendFailure(ctx, sess, tool.Name, err); aerr != nil {
				return nil, aerr
			}
			sink.Emit(StreamEvent{Type: StreamActionResult, Action: tool.Name, OK: boolPtr(false), Message: err.Error()})
			continue
		}

		if _, err := l.log.Append(ctx, sess.CurrentSegmentID, event.NewAction(tool.Name, choice.Args)); err != nil {
			return nil, err
		}
		if tool.StatusMessage != "" {
			sink.Emit(StreamEvent{Type: StreamStatus, Action: tool.Name, Message: tool.StatusMessage})
		}
		sink.Emit(StreamEvent{Type: StreamActionStart, Action: tool.Name})

		state = StateExecutingAction
		res, fatal := l.execute(ctx, tool, args)
		if fatal != nil {
			return nil, fatal
		}
		if _, err := l.log.Append(ctx, sess.CurrentSegmentID, event.NewResult(res)); err != nil {
			return nil, err
		}
		sink.Emit(StreamEvent{
			Type:        StreamActionResult,
			Action:      tool.Name,
			OK:          boolPtr(res.OK),
			Message:     resultMessage(res),
			UserVisible: res.OK && tool.Name == ActionSendMessage,
		})

		logging.Loop("iteration %d/%d: %s ok=%v", i, l.cfg.MaxIterations, tool.Name, res.OK)

		if tool.Terminal && res.OK {
			state = StateTerminal
			return &Outcome{Status: StatusTerminal, Iterations: i, Duration: time.Since(start)}, nil
		}
	}

	logging.Loop("iteration budget exhausted in state %s", state)
	return &Outcome{
		Status:     StatusMaxIterations,
		Iterations: l.cfg.MaxIterations,
		Duration:   time.Since(start),
	}, nil
}

// choose calls the provider, retrying a protocol error once locally.
func (l *Loop) choose(ctx context.Context, prompt string) (*provider.Choice, error) {
	schemas := l.registry.Schemas()
	choice, err := l.provider.Choose(ctx, prompt, schemas)
	if err == nil {
		return choice, nil
	}

	var perr *provider.ProtocolError
	if errors.As(err, &perr) {
		logging.Loop("protocol error, retrying once: %v", err)
		return l.provider.Choose(ctx, prompt, schemas)
	}
	return nil, err
}

// execute runs the tool under its timeout and converts the outcome into
// a result event payload. A PersistenceError surfacing from the tool's
// store access is fatal: the audit trail can no longer be trusted, so it
// propagates instead of becoming a failed result the loop would keep
// iterating past.
func (l *Loop) execute(ctx context.Context, tool *Tool, args map[string]any) (event.Result, error) {
	toolCtx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()

	res, err := tool.Execute(toolCtx, args)
	if err != nil {
		var perr *store.PersistenceError
		if errors.As(err, &perr) {
			return event.Result{}, err
		}
		out := event.Result{Action: tool.Name, OK: false, Error: err.Error()}
		if res != nil {
			out.ResourceVersion = res.ResourceVersion
		}
		return out, nil
	}
	out := event.Result{Action: tool.Name, OK: true}
	if res != nil {
		out.Output = res.Output
		out.ResourceVersion = res.ResourceVersion
	}
	return out, nil
}

// appendFailure records a failed attempt that never reached execution.
// A PersistenceError from the append propagates and aborts the loop.
func (l *Loop) appendFailure(ctx context.Context, sess *event.Session, action string, cause error) error {
	_, err := l.log.Append(ctx, sess.CurrentSegmentID, event.NewResult(event.Result{
		Action: action,
		OK:     false,
		Error:  cause.Error(),
	}))
	return err
}

func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not an object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func resultMessage(res event.Result) string {
	if res.OK {
		return res.Output
	}
	return res.Error
}
