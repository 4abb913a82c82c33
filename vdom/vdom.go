package vdom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/wippyai/uibridge/errors"
)

// Node is one entry of an element's children.
type Node interface {
	node()
}

// Element is a decoded virtual element.
type Element struct {
	Props    map[string]PropValue
	Tag      string
	Children []Node
}

// Text is a string child.
type Text string

// Number is a numeric child.
type Number float64

// Bool is a boolean child.
type Bool bool

// Null renders as nothing.
type Null struct{}

// Fragment is a nested array of children, flattened by the renderer.
type Fragment []Node

func (*Element) node() {}
func (Text) node()     {}
func (Number) node()   {}
func (Bool) node()     {}
func (Null) node()     {}
func (Fragment) node() {}

// PropValue is one of Attribute, EventHandler or NestedElement.
type PropValue interface {
	propValue()
}

// Attribute is plain data: a scalar, a list of scalars or a map of scalars.
type Attribute struct {
	Value any
}

// CallbackRef stands in for an interpreter closure.
type CallbackRef struct {
	ID string
}

// EventHandler is an event prop. Ref is set for callback references;
// otherwise Native holds the value unchanged.
type EventHandler struct {
	Native any
	Ref    *CallbackRef
	Event  string
}

// NestedElement is an element passed as a prop.
type NestedElement struct {
	Element *Element
}

func (Attribute) propValue()     {}
func (EventHandler) propValue()  {}
func (NestedElement) propValue() {}

const callbackIDKey = "callback_id"

// Decode converts a native element tree into typed nodes.
func Decode(native any) (Node, error) {
	return decodeNode(native, nil)
}

// DecodeElement decodes a value that must be an element.
func DecodeElement(native any) (*Element, error) {
	n, err := Decode(native)
	if err != nil {
		return nil, err
	}
	el, ok := n.(*Element)
	if !ok {
		return nil, errors.InvalidData(errors.PhaseRender, nil, fmt.Sprintf("root is %T, not an element", n))
	}
	return el, nil
}

func decodeNode(v any, path []string) (Node, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return Text(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case []any:
		out := make(Fragment, 0, len(x))
		for i, c := range x {
			n, err := decodeNode(c, subPath(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case map[string]any:
		if !IsElement(x) {
			return nil, errors.InvalidData(errors.PhaseRender, path, "object child is not an element")
		}
		return decodeElement(x, path)
	}
	return nil, errors.New(errors.PhaseRender, errors.KindInvalidData).
		Path(path...).
		GoType(fmt.Sprintf("%T", v)).
		Detail("unsupported child").
		Build()
}

// IsElement reports whether m has the element wire shape.
func IsElement(m map[string]any) bool {
	if len(m) != 3 {
		return false
	}
	if _, ok := m["tag"].(string); !ok {
		return false
	}
	if _, ok := m["props"].(map[string]any); !ok {
		return false
	}
	_, ok := m["children"].([]any)
	return ok
}

func decodeElement(m map[string]any, path []string) (*Element, error) {
	tag := m["tag"].(string)
	path = subPath(path, tag)

	rawProps := m["props"].(map[string]any)
	el := &Element{
		Tag:   tag,
		Props: make(map[string]PropValue, len(rawProps)),
	}

	keys := make([]string, 0, len(rawProps))
	for k := range rawProps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pv, err := decodeProp(k, rawProps[k], subPath(path, k))
		if err != nil {
			return nil, err
		}
		el.Props[k] = pv
	}

	rawChildren := m["children"].([]any)
	el.Children = make([]Node, 0, len(rawChildren))
	for i, c := range rawChildren {
		n, err := decodeNode(c, subPath(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		el.Children = append(el.Children, n)
	}
	return el, nil
}

func decodeProp(key string, v any, path []string) (PropValue, error) {
	if IsEventKey(key) {
		h := EventHandler{Event: EventName(key)}
		if ref, ok := AsCallbackRef(v); ok {
			h.Ref = &ref
		} else {
			h.Native = v
		}
		return h, nil
	}
	if m, ok := v.(map[string]any); ok && IsElement(m) {
		el, err := decodeElement(m, path)
		if err != nil {
			return nil, err
		}
		return NestedElement{Element: el}, nil
	}
	return Attribute{Value: v}, nil
}

// AsCallbackRef reports whether v is a callback reference.
func AsCallbackRef(v any) (CallbackRef, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return CallbackRef{}, false
	}
	id, ok := m[callbackIDKey].(string)
	if !ok || id == "" {
		return CallbackRef{}, false
	}
	return CallbackRef{ID: id}, true
}

// IsEventKey reports whether a prop key follows the event convention:
// on_<event> or on<Event>.
func IsEventKey(key string) bool {
	if strings.HasPrefix(key, "on_") {
		return len(key) > 3
	}
	if len(key) > 2 && strings.HasPrefix(key, "on") {
		return unicode.IsUpper(rune(key[2]))
	}
	return false
}

// EventName returns the native event type of an event prop key:
// on_click -> click, onKeyDown -> keydown, on_key_down -> keydown.
func EventName(key string) string {
	name := strings.TrimPrefix(key, "on")
	name = strings.ReplaceAll(name, "_", "")
	return strings.ToLower(name)
}

func subPath(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}
