// Package factory converts native element trees into retained dom nodes.
//
// Props are split into plain attributes and event handlers. Attribute and
// style keys are rewritten by package props; callback references become
// dispatch listeners. Controlled text inputs are backed by an
// optimistic.Field that survives re-renders as long as the input stays at
// the same position in the tree.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/dispatch"
	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/optimistic"
	"github.com/wippyai/uibridge/props"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/vdom"
)

// RootKey is the key of the root node.
const RootKey = "0"

// textTypes are the input types routed through an optimistic field. An
// absent type counts as text.
var textTypes = map[string]bool{
	"":         true,
	"text":     true,
	"email":    true,
	"url":      true,
	"tel":      true,
	"search":   true,
	"password": true,
}

// Factory builds dom trees for one mount. It owns the optimistic fields of
// the mount's controlled inputs.
type Factory struct {
	dispatcher *dispatch.Dispatcher
	seq        *optimistic.Sequencer
	clock      optimistic.Clock
	logger     *zap.Logger
	ctx        context.Context
	onError    func(error)
	fields     map[string]*optimistic.Field

	debounce time.Duration

	mu sync.Mutex
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock sets the clock of optimistic fields.
func WithClock(c optimistic.Clock) Option {
	return func(f *Factory) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithDebounce sets the debounce delay of optimistic fields.
func WithDebounce(d time.Duration) Option {
	return func(f *Factory) { f.debounce = d }
}

// WithLogger sets the factory logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithContext sets the context confirmation requests are sent with.
func WithContext(ctx context.Context) Option {
	return func(f *Factory) {
		if ctx != nil {
			f.ctx = ctx
		}
	}
}

// WithErrorFunc sets a callback for failed confirmation requests.
func WithErrorFunc(fn func(error)) Option {
	return func(f *Factory) { f.onError = fn }
}

// New creates a Factory wrapping callback references with d.
func New(d *dispatch.Dispatcher, opts ...Option) *Factory {
	f := &Factory{
		dispatcher: d,
		seq:        &optimistic.Sequencer{},
		clock:      optimistic.RealClock{},
		logger:     Logger(),
		ctx:        context.Background(),
		fields:     make(map[string]*optimistic.Field),
		debounce:   optimistic.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Sequencer returns the edit sequence source shared by the mount's fields.
func (f *Factory) Sequencer() *optimistic.Sequencer { return f.seq }

// Build converts a native tree. A root that is not an element is wrapped
// in a div. Fields of controlled inputs that are no longer in the tree are
// closed.
func (f *Factory) Build(native any) (*dom.Node, error) {
	n, err := vdom.Decode(native)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	b := &build{f: f, seen: make(map[string]bool)}
	var root *dom.Node
	if el, ok := n.(*vdom.Element); ok {
		root = b.element(el, RootKey)
	} else {
		root = dom.NewElement("div")
		root.Key = RootKey
		b.children(root, []vdom.Node{n}, RootKey)
	}

	for key, field := range f.fields {
		if !b.seen[key] {
			field.Close()
			delete(f.fields, key)
			f.logger.Debug("closed field", zap.String("key", key))
		}
	}
	return root, nil
}

// Field returns the field of the controlled input at key.
func (f *Factory) Field(key string) (*optimistic.Field, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, ok := f.fields[key]
	return field, ok
}

// Fields returns the keys of all live fields in order.
func (f *Factory) Fields() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush sends every pending edit immediately.
func (f *Factory) Flush() {
	f.mu.Lock()
	fields := make([]*optimistic.Field, 0, len(f.fields))
	for _, field := range f.fields {
		fields = append(fields, field)
	}
	f.mu.Unlock()

	for _, field := range fields {
		field.Flush()
	}
}

// Close closes every field. Pending debounce timers never fire afterwards.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, field := range f.fields {
		field.Close()
		delete(f.fields, key)
	}
}

type build struct {
	f    *Factory
	seen map[string]bool
}

func (b *build) element(el *vdom.Element, key string) *dom.Node {
	n := dom.NewElement(el.Tag)
	n.Key = key

	attrs := make(map[string]any)
	var handlers []vdom.EventHandler
	for name, pv := range el.Props {
		switch p := pv.(type) {
		case vdom.Attribute:
			attrs[name] = p.Value
		case vdom.EventHandler:
			handlers = append(handlers, p)
		case vdom.NestedElement:
			if n.Slots == nil {
				n.Slots = make(map[string]*dom.Node)
			}
			n.Slots[props.AttributeName(name)] = b.element(p.Element, key+"."+name)
		}
	}
	sort.Slice(handlers, func(i, j int) bool { return handlers[i].Event < handlers[j].Event })

	seq, marked := sequence(attrs[session.SequenceKey])
	delete(attrs, session.SequenceKey)

	n.Attrs = props.Attributes(attrs)
	if style, ok := n.Attrs["style"].(map[string]any); ok {
		n.Style = style
		delete(n.Attrs, "style")
	}

	for _, h := range handlers {
		if l := b.listener(h); l != nil {
			n.Listeners[h.Event] = l
		}
	}

	if isTextInput(n) {
		b.control(n, key, seq, marked)
	}

	b.children(n, el.Children, key)
	return n
}

// children appends converted children to parent. Nested arrays are
// flattened; every node is keyed by its position.
func (b *build) children(parent *dom.Node, children []vdom.Node, key string) {
	for i, c := range children {
		childKey := key + "." + strconv.Itoa(i)
		switch x := c.(type) {
		case *vdom.Element:
			parent.Children = append(parent.Children, b.element(x, childKey))
		case vdom.Text:
			parent.Children = append(parent.Children, text(string(x), childKey))
		case vdom.Number:
			parent.Children = append(parent.Children, text(strconv.FormatFloat(float64(x), 'f', -1, 64), childKey))
		case vdom.Bool:
			parent.Children = append(parent.Children, text(strconv.FormatBool(bool(x)), childKey))
		case vdom.Fragment:
			b.children(parent, x, childKey)
		case vdom.Null:
		}
	}
}

func text(s, key string) *dom.Node {
	n := dom.NewText(s)
	n.Key = key
	return n
}

// listener returns the native listener of an event prop. Values that are
// already listeners pass through unwrapped.
func (b *build) listener(h vdom.EventHandler) dom.Listener {
	if h.Ref != nil {
		return b.f.dispatcher.Wrap(*h.Ref)
	}
	switch v := h.Native.(type) {
	case nil:
		return nil
	case dom.Listener:
		return v
	case func(context.Context, dom.Event) error:
		return dom.ListenerFunc(v)
	}
	b.f.logger.Debug("ignoring event prop",
		zap.String("event", h.Event),
		zap.String("type", fmt.Sprintf("%T", h.Native)))
	return nil
}

func isTextInput(n *dom.Node) bool {
	if _, ok := n.Attrs["value"]; !ok {
		return false
	}
	if n.Listeners["change"] == nil && n.Listeners["input"] == nil {
		return false
	}
	switch n.Tag {
	case "textarea":
		return true
	case "input":
		typ, _ := n.Attrs["type"].(string)
		return textTypes[typ]
	}
	return false
}

// control attaches the field for key to n, creating it on first sight and
// offering the rendered value to it afterwards.
func (b *build) control(n *dom.Node, key string, seq int64, marked bool) {
	f := b.f
	b.seen[key] = true

	eventType := "change"
	if n.Listeners["change"] == nil {
		eventType = "input"
	}
	handler := n.Listeners[eventType]
	delete(n.Listeners, "change")
	delete(n.Listeners, "input")

	v := valueString(n.Attrs["value"])
	delete(n.Attrs, "value")

	field, ok := f.fields[key]
	if !ok {
		field = optimistic.NewField(v,
			optimistic.WithClock(f.clock),
			optimistic.WithDebounce(f.debounce),
			optimistic.WithSequencer(f.seq),
			optimistic.WithLogger(f.logger),
			optimistic.WithContext(f.ctx),
			optimistic.WithErrorFunc(f.onError))
		f.fields[key] = field
	} else {
		field.Confirm(v, seq, marked)
	}

	field.SetHandler(handler, eventType)
	t := dom.Target{ID: n.ID()}
	t.Name, _ = n.Attrs["name"].(string)
	t.Type, _ = n.Attrs["type"].(string)
	field.SetTarget(t)
	n.Control = field
}

func sequence(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	}
	return 0, false
}

func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
