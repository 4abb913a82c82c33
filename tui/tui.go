// Package tui hosts a mounted bridge in the terminal.
//
// The committed tree is drawn with lipgloss. Buttons, checkboxes and text
// inputs are focusable: tab and shift+tab move focus, enter clicks, space
// toggles, and typing into a focused text input feeds its optimistic
// field through input events exactly like a browser would.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/wippyai/uibridge/dom"
)

// Host is the bridge the model displays.
type Host interface {
	Mount() *dom.Mount
	Flush()
}

// Model is a bubbletea model for one mount.
type Model struct {
	host   Host
	ctx    context.Context
	logger *zap.Logger
	title  string

	updates     chan struct{}
	unsubscribe func()

	snap      dom.Snapshot
	focusable []*dom.Node
	focusKey  string
	input     textinput.Model
	status    string
	err       error
}

// Option configures a Model.
type Option func(*Model)

// WithTitle sets the header line.
func WithTitle(title string) Option {
	return func(m *Model) { m.title = title }
}

// WithLogger sets the logger dispatch failures are written to.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithContext sets the context events are dispatched with.
func WithContext(ctx context.Context) Option {
	return func(m *Model) {
		if ctx != nil {
			m.ctx = ctx
		}
	}
}

// New creates a model subscribed to the host's mount. Call Close once the
// program has exited.
func New(h Host, opts ...Option) *Model {
	m := &Model{
		host:    h,
		ctx:     context.Background(),
		logger:  zap.NewNop(),
		title:   "uibridge",
		updates: make(chan struct{}, 1),
		input:   textinput.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.input.Prompt = ""
	m.unsubscribe = h.Mount().Subscribe(func(dom.Snapshot) {
		select {
		case m.updates <- struct{}{}:
		default:
		}
	})
	m.refresh(h.Mount().Snapshot())
	return m
}

// Close stops listening to the mount.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Run runs the model full screen until the user quits.
func Run(ctx context.Context, h Host, opts ...Option) error {
	m := New(h, append([]Option{WithContext(ctx)}, opts...)...)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

type snapshotMsg dom.Snapshot

type dispatchedMsg struct {
	err  error
	what string
}

func (m *Model) Init() tea.Cmd {
	return m.waitForCommit
}

func (m *Model) waitForCommit() tea.Msg {
	select {
	case <-m.updates:
		return snapshotMsg(m.host.Mount().Snapshot())
	case <-m.ctx.Done():
		return nil
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.refresh(dom.Snapshot(msg))
		return m, m.waitForCommit

	case dispatchedMsg:
		m.err = msg.err
		m.status = msg.what
		return m, nil

	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m *Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	focused := m.Focused()
	editing := focused != nil && isTextInput(focused)

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "q":
		if !editing {
			return m, tea.Quit
		}
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "enter":
		if focused == nil {
			return m, nil
		}
		if editing {
			m.host.Flush()
			return m, nil
		}
		return m, m.dispatch(focused, dom.Event{Type: "click"})
	case " ":
		if focused != nil && isCheckbox(focused) {
			checked, _ := focused.Attrs["checked"].(bool)
			evt := dom.Event{Type: "change", Target: &dom.Target{
				ID:      focused.ID(),
				Name:    attr(focused, "name"),
				Type:    "checkbox",
				Value:   focused.Value(),
				Checked: !checked,
			}}
			return m, m.dispatch(focused, evt)
		}
	}

	if !editing {
		return m, nil
	}
	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		if err := focused.Dispatch(m.ctx, dom.Event{Type: "input", Target: &dom.Target{Value: v, ID: focused.ID()}}); err != nil {
			m.err = err
		}
	}
	return m, cmd
}

// dispatch delivers evt off the update loop; listeners may wait for the
// interpreter.
func (m *Model) dispatch(n *dom.Node, evt dom.Event) tea.Cmd {
	what := evt.Type + " " + describe(n)
	return func() tea.Msg {
		err := n.Dispatch(m.ctx, evt)
		if err != nil {
			m.logger.Warn("event failed", zap.String("event", evt.Type), zap.String("target", describe(n)), zap.Error(err))
		}
		return dispatchedMsg{err: err, what: what}
	}
}

// refresh adopts a new snapshot, keeping focus on the element with the same
// key when it still exists.
func (m *Model) refresh(s dom.Snapshot) {
	m.snap = s
	m.focusable = m.focusable[:0]
	if s.Root != nil {
		s.Root.Walk(func(n *dom.Node) bool {
			if isFocusable(n) {
				m.focusable = append(m.focusable, n)
			}
			return true
		})
	}

	if m.Focused() == nil {
		m.focusKey = ""
		if len(m.focusable) > 0 {
			m.focusKey = m.focusable[0].Key
		}
	}
	m.syncInput()
}

func (m *Model) moveFocus(delta int) {
	n := len(m.focusable)
	if n == 0 {
		return
	}
	i := m.focusIndex()
	if i < 0 {
		i = 0
	} else {
		i = (i + delta + n) % n
	}
	m.focusKey = m.focusable[i].Key
	m.syncInput()
}

// syncInput points the line editor at the focused text input. The field's
// value wins over whatever the editor holds.
func (m *Model) syncInput() {
	f := m.Focused()
	if f == nil || !isTextInput(f) {
		m.input.Blur()
		return
	}
	if v := f.Value(); v != m.input.Value() {
		m.input.SetValue(v)
	}
	if attr(f, "type") == "password" {
		m.input.EchoMode = textinput.EchoPassword
	} else {
		m.input.EchoMode = textinput.EchoNormal
	}
	m.input.Placeholder = attr(f, "placeholder")
	m.input.Focus()
}

func (m *Model) focusIndex() int {
	for i, n := range m.focusable {
		if n.Key == m.focusKey {
			return i
		}
	}
	return -1
}

// Focused returns the focused element, nil when nothing can take focus.
func (m *Model) Focused() *dom.Node {
	if i := m.focusIndex(); i >= 0 {
		return m.focusable[i]
	}
	return nil
}

// Err returns the last dispatch failure.
func (m *Model) Err() error { return m.err }

func isFocusable(n *dom.Node) bool {
	if n.Kind != dom.KindElement {
		return false
	}
	if _, disabled := n.Attrs["disabled"]; disabled {
		return false
	}
	switch n.Tag {
	case "button", "a":
		return true
	case "input", "textarea":
		return isTextInput(n) || isCheckbox(n)
	}
	return n.Listeners["click"] != nil
}

func isTextInput(n *dom.Node) bool {
	switch n.Tag {
	case "textarea":
		return true
	case "input":
		switch attr(n, "type") {
		case "", "text", "email", "url", "tel", "search", "password":
			return true
		}
	}
	return false
}

func isCheckbox(n *dom.Node) bool {
	if n.Tag != "input" {
		return false
	}
	t := attr(n, "type")
	return t == "checkbox" || t == "radio"
}

func attr(n *dom.Node, name string) string {
	s, _ := n.Attrs[name].(string)
	return s
}

func describe(n *dom.Node) string {
	if id := n.ID(); id != "" {
		return n.Tag + "#" + id
	}
	return n.Tag
}
