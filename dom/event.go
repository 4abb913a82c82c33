package dom

import "context"

// Target is the serializable part of an event target.
type Target struct {
	Value   string
	Name    string
	Type    string
	ID      string
	Checked bool
}

// Modifiers are the modifier keys held during an event.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool
}

// Keyboard carries the fields of keyboard events.
type Keyboard struct {
	Key     string
	KeyCode int
	Modifiers
}

// Mouse carries the fields of mouse events.
type Mouse struct {
	ClientX float64
	ClientY float64
	Button  int
}

// Event is a native event delivered to a listener. Raw holds whatever the
// host attached and never crosses into the interpreter.
type Event struct {
	Raw      any
	Target   *Target
	Keyboard *Keyboard
	Mouse    *Mouse
	Type     string
	Sequence int64
	// HasSequence marks events emitted by optimistic inputs.
	HasSequence bool
}

// Listener handles native events.
type Listener interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// ListenerFunc adapts a function into a Listener.
type ListenerFunc func(ctx context.Context, evt Event) error

func (f ListenerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
