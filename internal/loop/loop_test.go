package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"coachd/internal/event"
	"coachd/internal/provider"
	"coachd/internal/store"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts a background worker in init(); it is not a
	// goroutine owned by the loop under test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestRunTerminalActionEndsLoop(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		choose("send_message", `{"text":"Nice work on the bench today."}`),
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	sink := &recordingSink{}
	out, err := l.Run(context.Background(), h.sess, sink)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminal, out.Status)
	assert.Equal(t, 2, out.Iterations)

	assert.Equal(t, 2, h.countEvents(t, event.KindAction))
	assert.Equal(t, 2, h.countEvents(t, event.KindResult))

	var visible []StreamEvent
	for _, ev := range sink.all() {
		if ev.UserVisible {
			visible = append(visible, ev)
		}
	}
	require.Len(t, visible, 1)
	assert.Equal(t, "Nice work on the bench today.", visible[0].Message)
}

func TestRunStopsAtIterationCap(t *testing.T) {
	// The provider never chooses the terminal action.
	prov := &scriptedProvider{steps: []step{
		choose("send_message", `{"text":"still going"}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	out, err := l.Run(context.Background(), h.sess, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusMaxIterations, out.Status)
	assert.Equal(t, 10, out.Iterations)
	assert.Equal(t, 10, prov.callCount())

	// Exactly one action/result pair per iteration, nothing beyond the cap.
	assert.Equal(t, 10, h.countEvents(t, event.KindAction))
	assert.Equal(t, 10, h.countEvents(t, event.KindResult))
}

func TestRunProtocolErrorRetriedOnce(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		{err: &provider.ProtocolError{Reason: "two actions in one response"}},
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	out, err := l.Run(context.Background(), h.sess, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminal, out.Status)
	assert.Equal(t, 1, out.Iterations, "the retry happens inside one iteration")
	assert.Equal(t, 2, prov.callCount())
}

func TestRunPersistentProtocolErrorBurnsIteration(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		{err: &provider.ProtocolError{Reason: "still unparseable"}},
		{err: &provider.ProtocolError{Reason: "still unparseable"}},
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	sink := &recordingSink{}
	out, err := l.Run(context.Background(), h.sess, sink)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminal, out.Status)
	assert.Equal(t, 2, out.Iterations)

	// The doubled failure went on the record as a failed result.
	require.GreaterOrEqual(t, h.countEvents(t, event.KindResult), 2)
}

func TestRunExecutorFailureContinues(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		choose("broken", `{}`),
		choose("send_message", `{"text":"recovered"}`),
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	sink := &recordingSink{}
	out, err := l.Run(context.Background(), h.sess, sink)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminal, out.Status)
	assert.Equal(t, 3, out.Iterations)

	events, err := h.store.Read(context.Background(), h.sess.CurrentSegmentID, 0)
	require.NoError(t, err)
	var failed, ok int
	for _, ev := range events {
		if ev.Kind != event.KindResult {
			continue
		}
		if ev.Result.OK {
			ok++
		} else {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, ok)
}

func TestRunAbortsWhenToolHitsPersistenceFailure(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		choose("flaky_store", `{}`),
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	_, err := l.Run(context.Background(), h.sess, nil)
	var perr *store.PersistenceError
	require.ErrorAs(t, err, &perr, "a store failure inside a tool must abort the run")
	assert.Equal(t, 1, prov.callCount(), "no further iterations after the abort")

	// The action went on the record before execution; no result follows it.
	assert.Equal(t, 1, h.countEvents(t, event.KindAction))
	assert.Equal(t, 0, h.countEvents(t, event.KindResult))
}

func TestRunUnknownActionRecordedAndContinues(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		choose("levitate", `{}`),
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	out, err := l.Run(context.Background(), h.sess, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminal, out.Status)

	// Unknown action leaves a failed result, no action event.
	assert.Equal(t, 1, h.countEvents(t, event.KindAction))
	assert.Equal(t, 2, h.countEvents(t, event.KindResult))
}

func TestRunRejectsBadArgumentsBeforeExecution(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		choose("send_message", `{"text":42}`),
		choose("idle", `{}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	out, err := l.Run(context.Background(), h.sess, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminal, out.Status)
	assert.Equal(t, 1, h.countEvents(t, event.KindAction), "invalid args never become an action event")
}

func TestRunCancelledContextStops(t *testing.T) {
	prov := &scriptedProvider{steps: []step{
		choose("send_message", `{"text":"never delivered"}`),
	}}
	h, l := newHarness(t, prov, Config{MaxIterations: 10, ToolTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Run(ctx, h.sess, nil)
	require.ErrorIs(t, err, context.Canceled)
}
