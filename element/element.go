// Package element builds virtual elements on the interpreter side.
//
// An element is the named list {tag, props, children}. Named arguments
// become props and unnamed arguments become children, in order. Closures
// passed as props are registered with the session and replaced by a
// callback reference {callback_id = "cb_..."}.
package element

import (
	"strconv"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/value"
)

// Arg is one argument of an element call. An empty Name marks a child.
type Arg struct {
	Value value.Value
	Name  string
}

// Prop creates a named argument.
func Prop(name string, v value.Value) Arg { return Arg{Name: name, Value: v} }

// Child creates an unnamed argument.
func Child(v value.Value) Arg { return Arg{Value: v} }

// Text creates a string child.
func Text(s string) Arg { return Arg{Value: value.Str(s)} }

// Factory creates elements bound to one render session.
type Factory struct {
	session *session.Session
}

// New creates a Factory registering closures in s.
func New(s *session.Session) *Factory {
	return &Factory{session: s}
}

// Element builds an element with the given tag.
func (f *Factory) Element(tag string, args ...Arg) (*value.List, error) {
	if tag == "" {
		return nil, errors.InvalidInput(errors.PhaseElement, "element tag is empty")
	}

	props := value.Record()
	children := value.NewList()

	for i, arg := range args {
		if arg.Name == "" {
			if err := checkChild(arg.Value, []string{tag, strconv.Itoa(i)}); err != nil {
				return nil, err
			}
			children.Append(orNull(arg.Value))
			continue
		}
		props.Set(arg.Name, f.propValue(arg.Value))
	}

	f.stampSequence(props)

	return value.NewNamedList(
		[]string{value.FieldTag, value.FieldProps, value.FieldChildren},
		[]value.Value{value.Str(tag), props, children},
	), nil
}

// Fragment groups children without a wrapping element. The renderer
// flattens it into its parent.
func (f *Factory) Fragment(children ...value.Value) (*value.List, error) {
	out := value.NewList()
	for i, c := range children {
		if err := checkChild(c, []string{"fragment", strconv.Itoa(i)}); err != nil {
			return nil, err
		}
		out.Append(orNull(c))
	}
	return out, nil
}

// CallbackRef registers fn and returns its reference value.
func (f *Factory) CallbackRef(fn value.Func) *value.List {
	id := f.session.Register(fn)
	return value.NewNamedList([]string{session.CallbackIDKey}, []value.Value{value.Str(id)})
}

func (f *Factory) propValue(v value.Value) value.Value {
	if fn, ok := v.(value.Func); ok {
		return f.CallbackRef(fn)
	}
	return orNull(v)
}

// stampSequence marks controlled inputs with the sequence of the edit that
// triggered this render, so the input can tell stale confirmations apart.
func (f *Factory) stampSequence(props *value.List) {
	seq, ok := f.session.PendingSequence()
	if !ok || !IsControlled(props) {
		return
	}
	props.Set(session.SequenceKey, value.Int(seq))
}

var changeHandlers = []string{"on_change", "on_input", "onChange", "onInput"}

// IsControlled reports whether props carry both a value and a change handler.
func IsControlled(props *value.List) bool {
	if _, ok := props.Get("value"); !ok {
		return false
	}
	for _, name := range changeHandlers {
		if _, ok := props.Get(name); ok {
			return true
		}
	}
	return false
}

func checkChild(v value.Value, path []string) error {
	switch c := v.(type) {
	case nil, value.Null, value.Logical, value.Integer, value.Double, value.Character:
		return nil
	case *value.List:
		if value.IsElement(c) {
			return nil
		}
		if c.IsNamed() {
			return errors.New(errors.PhaseElement, errors.KindInvalidInput).
				Path(path...).
				ScriptType("named list").
				Detail("children must be elements, scalars or unnamed lists").
				Build()
		}
		for i, elem := range c.Values {
			if err := checkChild(elem, subPath(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.New(errors.PhaseElement, errors.KindInvalidInput).
		Path(path...).
		ScriptType(v.Type().String()).
		Detail("cannot use %s as a child", v).
		Build()
}

func subPath(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}
