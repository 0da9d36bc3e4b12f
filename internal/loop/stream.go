package loop

// StreamEventType tags events delivered to the client channel.
type StreamEventType string

const (
	StreamStatus       StreamEventType = "status"
	StreamActionStart  StreamEventType = "action_start"
	StreamActionResult StreamEventType = "action_result"
	StreamKnowledge    StreamEventType = "knowledge"
	StreamDone         StreamEventType = "done"
	StreamError        StreamEventType = "error"
)

// StreamEvent is one entry on the client-facing channel. Events are
// delivered in the order they were appended to the log; done is always
// last and sent exactly once per request.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Action  string          `json:"action,omitempty"`
	Message string          `json:"message,omitempty"`
	OK      *bool           `json:"ok,omitempty"`

	// UserVisible marks output the client should render as coach text
	// rather than progress detail.
	UserVisible bool `json:"user_visible,omitempty"`
}

// EventSink receives stream events. Emit must not block for long; slow
// consumers should buffer.
type EventSink interface {
	Emit(ev StreamEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(StreamEvent) {}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev StreamEvent)

func (f SinkFunc) Emit(ev StreamEvent) { f(ev) }

func boolPtr(b bool) *bool { return &b }
