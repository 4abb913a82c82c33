package element

import (
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/marshal"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/value"
)

func noop() value.Func {
	return value.Thunk("noop", func() (value.Value, error) { return value.Null{}, nil })
}

func TestElementShape(t *testing.T) {
	f := New(session.New())

	el, err := f.Element("div",
		Prop("class_name", value.Str("x")),
		Text("hi"),
		Child(value.Int(3)),
		Child(nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	if !value.IsElement(el) {
		t.Fatalf("not an element: %s", el)
	}

	want := map[string]any{
		"tag":      "div",
		"props":    map[string]any{"class_name": "x"},
		"children": []any{"hi", float64(3), nil},
	}
	if got := marshal.ToNative(el); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v\nwant %#v", got, want)
	}
}

func TestElementRegistersClosures(t *testing.T) {
	s := session.New()
	f := New(s)

	el, err := f.Element("button", Prop("on_click", noop()), Text("go"))
	if err != nil {
		t.Fatal(err)
	}

	props := marshal.ToNative(el).(map[string]any)["props"].(map[string]any)
	ref, ok := props["on_click"].(map[string]any)
	if !ok {
		t.Fatalf("on_click = %#v", props["on_click"])
	}
	id, _ := ref[session.CallbackIDKey].(string)
	if !strings.HasPrefix(id, "cb_") {
		t.Fatalf("callback id = %q", id)
	}
	if _, err := s.Invoke(id, nil); err != nil {
		t.Fatalf("registered closure not invocable: %v", err)
	}
}

func TestElementStampsControlledInputs(t *testing.T) {
	s := session.New()
	f := New(s)

	id := s.Register(value.Handler("h", func(value.Value) (value.Value, error) { return value.Null{}, nil }))
	evt := marshal.ToInterpreter(map[string]any{"type": "input", session.SequenceKey: float64(5)})
	if _, err := s.Invoke(id, []value.Value{evt}); err != nil {
		t.Fatal(err)
	}

	s.BeginRender()
	controlled, _ := f.Element("input", Prop("value", value.Str("abc")), Prop("on_change", noop()))
	plain, _ := f.Element("input", Prop("value", value.Str("abc")))
	_ = s.EndRender()

	cp, _ := controlled.Get(value.FieldProps)
	seq, ok := cp.(*value.List).Get(session.SequenceKey)
	if !ok {
		t.Fatal("controlled input not stamped")
	}
	if n, _ := value.AsInt(seq); n != 5 {
		t.Fatalf("stamp = %s", seq)
	}

	pp, _ := plain.Get(value.FieldProps)
	if _, ok := pp.(*value.List).Get(session.SequenceKey); ok {
		t.Fatal("uncontrolled input stamped")
	}

	s.BeginRender()
	again, _ := f.Element("input", Prop("value", value.Str("abc")), Prop("on_change", noop()))
	_ = s.EndRender()
	ap, _ := again.Get(value.FieldProps)
	if _, ok := ap.(*value.List).Get(session.SequenceKey); ok {
		t.Fatal("stamp leaked into a later render")
	}
}

func TestElementInvalidChildren(t *testing.T) {
	f := New(session.New())

	tests := []struct {
		name  string
		child value.Value
	}{
		{"closure", noop()},
		{"record", value.NewNamedList([]string{"a"}, []value.Value{value.Int(1)})},
		{"opaque", value.Opaque{TypeName: "environment", Repr: "<environment>"}},
		{"nested record", value.NewList(value.Str("ok"), value.Record())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Element("div", Child(tt.child))
			if errors.KindOf(err) != errors.KindInvalidInput {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	if _, err := f.Element(""); err == nil {
		t.Fatal("empty tag accepted")
	}
}

func TestFragment(t *testing.T) {
	f := New(session.New())
	li, _ := f.Element("li", Text("a"))
	frag, err := f.Fragment(li, value.Str("b"))
	if err != nil {
		t.Fatal(err)
	}
	if frag.IsNamed() || frag.Len() != 2 {
		t.Fatalf("fragment = %s", frag)
	}
}
