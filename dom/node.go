package dom

import (
	"context"
	"strings"
)

// Kind distinguishes element and text nodes.
type Kind uint8

const (
	KindElement Kind = iota
	KindText
)

// Control owns the displayed value of a controlled input.
type Control interface {
	Value() string
	Input(v string)
}

// Node is a node of the retained tree.
type Node struct {
	Attrs     map[string]any
	Style     map[string]any
	Listeners map[string]Listener
	// Slots holds elements passed as props, keyed by attribute name.
	Slots     map[string]*Node
	Control   Control
	Tag       string
	Key       string
	Text      string
	Children  []*Node
	Kind      Kind
}

// NewElement creates an element node with empty maps.
func NewElement(tag string) *Node {
	return &Node{
		Kind:      KindElement,
		Tag:       tag,
		Attrs:     make(map[string]any),
		Listeners: make(map[string]Listener),
	}
}

// NewText creates a text node.
func NewText(text string) *Node {
	return &Node{Kind: KindText, Text: text}
}

// ID returns the id attribute, if any.
func (n *Node) ID() string {
	id, _ := n.Attrs["id"].(string)
	return id
}

// Value returns the displayed value of an input: the control's value when
// the node is controlled, the value attribute otherwise.
func (n *Node) Value() string {
	if n.Control != nil {
		return n.Control.Value()
	}
	v, _ := n.Attrs["value"].(string)
	return v
}

// TextContent concatenates the text of n and its descendants.
func (n *Node) TextContent() string {
	if n.Kind == KindText {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// Dispatch delivers evt to n. Input and change events on a controlled node
// go to its Control; everything else goes to the listener registered for
// the event type. Events without a listener are ignored.
func (n *Node) Dispatch(ctx context.Context, evt Event) error {
	if n.Control != nil && (evt.Type == "input" || evt.Type == "change") {
		if evt.Target != nil {
			n.Control.Input(evt.Target.Value)
		}
		return nil
	}
	l, ok := n.Listeners[evt.Type]
	if !ok || l == nil {
		return nil
	}
	if evt.Target == nil {
		evt.Target = n.target()
	}
	return l.HandleEvent(ctx, evt)
}

func (n *Node) target() *Target {
	t := &Target{Value: n.Value(), ID: n.ID()}
	t.Name, _ = n.Attrs["name"].(string)
	t.Type, _ = n.Attrs["type"].(string)
	t.Checked, _ = n.Attrs["checked"].(bool)
	return t
}

// Walk visits n and its descendants depth first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Find returns the first node, depth first, matching pred.
func (n *Node) Find(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// FindByID returns the element whose id attribute equals id.
func (n *Node) FindByID(id string) *Node {
	return n.Find(func(c *Node) bool { return c.Kind == KindElement && c.ID() == id })
}

// FindAll returns every node matching pred in document order.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if pred(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}
