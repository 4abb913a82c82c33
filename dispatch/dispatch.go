// Package dispatch turns callback references into native event listeners.
//
// When a wrapped listener fires it extracts a bounded set of serializable
// fields from the event, invokes the interpreter through the Invoker and,
// if the result is the state-changed marker, asks for a re-render.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/vdom"
)

// Invoker calls a registered callback with a native event payload and
// returns the native result.
type Invoker interface {
	Invoke(ctx context.Context, id string, event map[string]any) (any, error)
}

// Rerenderer receives re-render requests. RequestRerender must not block.
type Rerenderer interface {
	RequestRerender()
}

// Dispatcher creates listeners for callback references.
type Dispatcher struct {
	invoker  Invoker
	rerender Rerenderer
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher.
func New(inv Invoker, rr Rerenderer, opts ...Option) *Dispatcher {
	d := &Dispatcher{invoker: inv, rerender: rr, logger: Logger()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wrap returns a listener invoking ref.
func (d *Dispatcher) Wrap(ref vdom.CallbackRef) *Handler {
	return &Handler{d: d, ref: ref}
}

// Handler is the native listener of one callback reference.
type Handler struct {
	d   *Dispatcher
	ref vdom.CallbackRef
}

var _ dom.Listener = (*Handler)(nil)

// CallbackID returns the wrapped callback id.
func (h *Handler) CallbackID() string { return h.ref.ID }

// HandleEvent invokes the callback. Failures are returned to the caller.
func (h *Handler) HandleEvent(ctx context.Context, evt dom.Event) error {
	_, err := h.Call(ctx, evt)
	return err
}

// Call invokes the callback and returns its native result with the
// state-changed marker removed.
func (h *Handler) Call(ctx context.Context, evt dom.Event) (any, error) {
	d := h.d
	payload := Extract(evt)

	result, err := d.invoker.Invoke(ctx, h.ref.ID, payload)
	if err != nil {
		if errors.KindOf(err) == errors.KindCallbackNotFound {
			d.logger.Warn("event targeted unknown callback",
				zap.String("callback_id", h.ref.ID),
				zap.String("event", evt.Type))
		} else {
			d.logger.Error("event handler failed",
				zap.String("callback_id", h.ref.ID),
				zap.String("event", evt.Type),
				zap.Error(err))
		}
		return nil, err
	}

	if session.IsStateChanged(result) {
		d.logger.Debug("state changed",
			zap.String("callback_id", h.ref.ID),
			zap.String("event", evt.Type))
		d.rerender.RequestRerender()
		return result.(map[string]any)[session.ResultKey], nil
	}
	return result, nil
}

// Extract keeps the serializable fields of evt: target fields, keyboard
// key and modifiers, mouse coordinates and button, and the sequence marker.
func Extract(evt dom.Event) map[string]any {
	out := map[string]any{"type": evt.Type}

	if t := evt.Target; t != nil {
		out["target"] = map[string]any{
			"value":   t.Value,
			"checked": t.Checked,
			"name":    t.Name,
			"type":    t.Type,
			"id":      t.ID,
		}
	}
	if k := evt.Keyboard; k != nil {
		out["key"] = k.Key
		out["keyCode"] = float64(k.KeyCode)
		out["shiftKey"] = k.Shift
		out["ctrlKey"] = k.Ctrl
		out["altKey"] = k.Alt
		out["metaKey"] = k.Meta
	}
	if m := evt.Mouse; m != nil {
		out["clientX"] = m.ClientX
		out["clientY"] = m.ClientY
		out["button"] = float64(m.Button)
	}
	if evt.HasSequence {
		out[session.SequenceKey] = float64(evt.Sequence)
	}
	return out
}
