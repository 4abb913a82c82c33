package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/uibridge/dom"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	controlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	focusedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	fieldStyle = lipgloss.NewStyle().
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var blockTags = map[string]bool{
	"div": true, "form": true, "section": true, "p": true, "ul": true, "ol": true,
	"li": true, "h1": true, "h2": true, "h3": true, "pre": true, "textarea": true,
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString(fmt.Sprintf(" #%s gen %d\n\n", m.host.Mount().ID(), m.snap.Generation))

	switch {
	case m.snap.Root == nil:
		b.WriteString("Waiting for the first render...")
	case m.snap.Err != nil:
		b.WriteString(errorStyle.Render(m.render(m.snap.Root)))
	default:
		b.WriteString(m.render(m.snap.Root))
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(helpStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("tab focus • enter click • space toggle • esc quit"))
	return b.String()
}

// render draws n. Block elements start on their own line; inline content is
// joined on one line.
func (m *Model) render(n *dom.Node) string {
	if n.Kind == dom.KindText {
		return n.Text
	}

	switch {
	case isTextInput(n):
		return m.renderField(n)
	case isCheckbox(n):
		box := "[ ]"
		if checked, _ := n.Attrs["checked"].(bool); checked {
			box = "[x]"
		}
		return m.decorate(n, box)
	case n.Tag == "button":
		return m.decorate(n, "[ "+n.TextContent()+" ]")
	case n.Tag == "img":
		return "[img " + attr(n, "alt") + "]"
	}

	var lines []string
	var inline strings.Builder
	flush := func() {
		if inline.Len() > 0 {
			lines = append(lines, inline.String())
			inline.Reset()
		}
	}
	for _, c := range n.Children {
		out := m.render(c)
		if c.Kind == dom.KindElement && blockTags[c.Tag] {
			flush()
			lines = append(lines, out)
			continue
		}
		inline.WriteString(out)
	}
	flush()
	out := strings.Join(lines, "\n")

	switch n.Tag {
	case "h1", "h2", "h3":
		out = headingStyle.Render(out)
	case "li":
		out = "• " + out
	case "a":
		out = m.decorate(n, out)
	}
	return styled(n, out)
}

func (m *Model) renderField(n *dom.Node) string {
	if n.Key == m.focusKey {
		return "> " + m.input.View()
	}
	v := n.Value()
	if attr(n, "type") == "password" {
		v = strings.Repeat("*", len([]rune(v)))
	}
	if v == "" {
		v = helpStyle.Render(attr(n, "placeholder"))
	}
	return "  " + fieldStyle.Render(v)
}

func (m *Model) decorate(n *dom.Node, s string) string {
	if n.Key == m.focusKey {
		return focusedStyle.Render(s)
	}
	return controlStyle.Render(s)
}

// styled applies the color and weight parts of an element's style.
func styled(n *dom.Node, s string) string {
	if len(n.Style) == 0 {
		return s
	}
	st := lipgloss.NewStyle()
	if c, ok := n.Style["color"].(string); ok {
		st = st.Foreground(lipgloss.Color(c))
	}
	if c, ok := n.Style["backgroundColor"].(string); ok {
		st = st.Background(lipgloss.Color(c))
	}
	if w, _ := n.Style["fontWeight"].(string); w == "bold" {
		st = st.Bold(true)
	}
	if d, _ := n.Style["fontStyle"].(string); d == "italic" {
		st = st.Italic(true)
	}
	return st.Render(s)
}
