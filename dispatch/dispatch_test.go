package dispatch

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/marshal"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/value"
	"github.com/wippyai/uibridge/vdom"
)

// sessionInvoker runs callbacks directly against a session.
type sessionInvoker struct {
	s      *session.Session
	events []map[string]any
}

func (i *sessionInvoker) Invoke(_ context.Context, id string, event map[string]any) (any, error) {
	i.events = append(i.events, event)
	res, err := i.s.Invoke(id, []value.Value{marshal.ToInterpreter(event)})
	if err != nil {
		return nil, err
	}
	return marshal.ToNative(res), nil
}

type countingRerenderer struct{ n int }

func (r *countingRerenderer) RequestRerender() { r.n++ }

func TestHandlerStateChange(t *testing.T) {
	s := session.New()
	s.BeginRender()
	count := s.UseState(value.Int(0))
	_ = s.EndRender()

	var received value.Value
	id := s.Register(value.Handler("inc", func(evt value.Value) (value.Value, error) {
		received = evt
		return value.Str("ok"), count.Update(func(old value.Value) (value.Value, error) {
			n, _ := value.AsInt(old)
			return value.Int(n + 1), nil
		})
	}))
	log := s.Register(value.Thunk("log", func() (value.Value, error) { return value.Str("logged"), nil }))

	inv := &sessionInvoker{s: s}
	rr := &countingRerenderer{}
	d := New(inv, rr)

	res, err := d.Wrap(vdom.CallbackRef{ID: id}).Call(context.Background(), dom.Event{
		Type:   "click",
		Target: &dom.Target{ID: "btn"},
		Mouse:  &dom.Mouse{ClientX: 3, ClientY: 4},
		Raw:    make(chan int),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res != "ok" {
		t.Errorf("result = %#v", res)
	}
	if rr.n != 1 {
		t.Fatalf("rerender requests = %d, want 1", rr.n)
	}
	if n, _ := value.AsInt(count.Get()); n != 1 {
		t.Fatalf("count = %d", n)
	}
	evt := received.(*value.List)
	if typ, _ := evt.Get("type"); marshal.ToNative(typ) != "click" {
		t.Errorf("event type = %v", typ)
	}

	if err := d.Wrap(vdom.CallbackRef{ID: log}).HandleEvent(context.Background(), dom.Event{Type: "click"}); err != nil {
		t.Fatal(err)
	}
	if rr.n != 1 {
		t.Fatalf("side-effect-only dispatch requested a rerender")
	}
}

func TestHandlerCallbackNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rr := &countingRerenderer{}
	d := New(&sessionInvoker{s: session.New()}, rr, WithLogger(zap.New(core)))

	err := d.Wrap(vdom.CallbackRef{ID: "cb_9_stale"}).HandleEvent(context.Background(), dom.Event{Type: "click"})
	if !errors.Is(err, errors.ErrCallbackNotFound) {
		t.Fatalf("expected CallbackNotFound, got %v", err)
	}
	if rr.n != 0 {
		t.Fatal("failed dispatch requested a rerender")
	}
	if logs.FilterMessage("event targeted unknown callback").Len() != 1 {
		t.Fatalf("missing warning, got %v", logs.All())
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		evt  dom.Event
		want map[string]any
	}{
		{
			name: "bare",
			evt:  dom.Event{Type: "submit", Raw: struct{ secret string }{"x"}},
			want: map[string]any{"type": "submit"},
		},
		{
			name: "input with sequence",
			evt: dom.Event{
				Type:        "change",
				Target:      &dom.Target{Value: "hello", Name: "q", Type: "text", ID: "q"},
				Sequence:    4,
				HasSequence: true,
			},
			want: map[string]any{
				"type":       "change",
				"target":     map[string]any{"value": "hello", "checked": false, "name": "q", "type": "text", "id": "q"},
				"__sequence": float64(4),
			},
		},
		{
			name: "keyboard",
			evt:  dom.Event{Type: "keydown", Keyboard: &dom.Keyboard{Key: "Enter", KeyCode: 13, Modifiers: dom.Modifiers{Shift: true}}},
			want: map[string]any{
				"type": "keydown", "key": "Enter", "keyCode": float64(13),
				"shiftKey": true, "ctrlKey": false, "altKey": false, "metaKey": false,
			},
		},
		{
			name: "mouse",
			evt:  dom.Event{Type: "click", Mouse: &dom.Mouse{ClientX: 10, ClientY: 20, Button: 0}},
			want: map[string]any{"type": "click", "clientX": 10.0, "clientY": 20.0, "button": 0.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.evt); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v\nwant %#v", got, tt.want)
			}
		})
	}
}
