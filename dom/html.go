package dom

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wippyai/uibridge/props"
)

// RenderHTML writes n as HTML. Listeners are not serialized; controlled
// inputs are written with their displayed value.
func RenderHTML(w io.Writer, n *Node) error {
	if n == nil {
		return nil
	}
	return html.Render(w, toHTML(n))
}

// RenderMountHTML writes the mount's displayed tree inside a container
// carrying the mount id.
func RenderMountHTML(w io.Writer, m *Mount) error {
	container := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: m.ID()}},
	}
	if root := m.Root(); root != nil {
		container.AppendChild(toHTML(root))
	}
	return html.Render(w, container)
}

// HTML returns n rendered as an HTML string.
func HTML(n *Node) (string, error) {
	var b strings.Builder
	if err := RenderHTML(&b, n); err != nil {
		return "", err
	}
	return b.String(), nil
}

func toHTML(n *Node) *html.Node {
	if n.Kind == KindText {
		return &html.Node{Type: html.TextNode, Data: n.Text}
	}

	out := &html.Node{
		Type:     html.ElementNode,
		Data:     n.Tag,
		DataAtom: atom.Lookup([]byte(n.Tag)),
	}

	attrs := n.Attrs
	if n.Control != nil {
		attrs = make(map[string]any, len(n.Attrs)+1)
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		attrs["value"] = n.Control.Value()
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val, ok := attrString(attrs[k])
		if !ok {
			continue
		}
		out.Attr = append(out.Attr, html.Attribute{Key: props.HTMLName(k), Val: val})
	}
	if len(n.Style) > 0 {
		out.Attr = append(out.Attr, html.Attribute{Key: "style", Val: styleString(n.Style)})
	}

	for _, c := range n.Children {
		out.AppendChild(toHTML(c))
	}
	return out
}

// attrString formats an attribute value. False booleans and nil are omitted.
func attrString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return "", x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := attrString(e); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), true
	}
	return fmt.Sprint(v), true
}

func styleString(style map[string]any) string {
	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		val, ok := attrString(style[k])
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(props.CSSName(k))
		b.WriteString(": ")
		b.WriteString(val)
		b.WriteByte(';')
	}
	return b.String()
}
