package optimistic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/errors"
)

// DefaultDebounce is the delay between the last keystroke and the
// confirmation request.
const DefaultDebounce = 40 * time.Millisecond

// Sequencer hands out increasing edit sequence numbers. All fields of one
// mount share a Sequencer so that a confirmation stamped with another
// field's sequence still compares correctly.
type Sequencer struct {
	n atomic.Int64
}

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() int64 { return s.n.Add(1) }

// Current returns the last sequence number handed out.
func (s *Sequencer) Current() int64 { return s.n.Load() }

// Field is the optimistic state of one mounted text input. The displayed
// value changes on every keystroke; the interpreter sees the value only
// after the debounce delay, tagged with the sequence of the edit.
type Field struct {
	clock     Clock
	seq       *Sequencer
	logger    *zap.Logger
	ctx       context.Context
	onError   func(error)
	timer     Timer
	handler   dom.Listener
	target    dom.Target
	local     string
	confirmed string
	eventType string

	delay      time.Duration
	latestEdit int64
	lastSent   int64
	armed      uint64
	stale      int

	mu     sync.Mutex
	closed bool
}

var _ dom.Control = (*Field)(nil)

// Option configures a Field.
type Option func(*Field)

// WithClock sets the clock used for debounce timers.
func WithClock(c Clock) Option {
	return func(f *Field) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(f *Field) { f.delay = d }
}

// WithSequencer shares a sequence source between fields.
func WithSequencer(s *Sequencer) Option {
	return func(f *Field) {
		if s != nil {
			f.seq = s
		}
	}
}

// WithLogger sets the field logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Field) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithContext sets the context passed to the handler when a confirmation
// request is sent.
func WithContext(ctx context.Context) Option {
	return func(f *Field) {
		if ctx != nil {
			f.ctx = ctx
		}
	}
}

// WithErrorFunc sets a callback for handler failures.
func WithErrorFunc(fn func(error)) Option {
	return func(f *Field) { f.onError = fn }
}

// NewField creates a field displaying initial.
func NewField(initial string, opts ...Option) *Field {
	f := &Field{
		clock:     RealClock{},
		seq:       &Sequencer{},
		logger:    Logger(),
		ctx:       context.Background(),
		delay:     DefaultDebounce,
		local:     initial,
		confirmed: initial,
		eventType: "change",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetHandler sets the listener receiving confirmation requests and the
// event type they are sent as. Renders call it with the newest handler.
func (f *Field) SetHandler(l dom.Listener, eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = l
	if eventType != "" {
		f.eventType = eventType
	}
}

// SetTarget sets the target fields sent along with confirmation requests.
func (f *Field) SetTarget(t dom.Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = t
}

// Value returns the displayed value.
func (f *Field) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

// Confirmed returns the last value acknowledged by a render.
func (f *Field) Confirmed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmed
}

// LatestEdit returns the sequence of the newest local edit, 0 if none.
func (f *Field) LatestEdit() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestEdit
}

// LastSent returns the sequence of the newest confirmation request.
func (f *Field) LastSent() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSent
}

// Stale returns the number of discarded confirmations.
func (f *Field) Stale() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale
}

// Input records a keystroke: the displayed value changes now and the
// debounce timer is re-armed.
func (f *Field) Input(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	seq := f.seq.Next()
	f.latestEdit = seq
	f.local = v

	if f.timer != nil {
		f.timer.Stop()
	}
	f.armed++
	token := f.armed
	f.timer = f.clock.AfterFunc(f.delay, func() { f.fire(token, seq, v) })
}

// Flush sends the pending edit immediately, if there is one.
func (f *Field) Flush() {
	f.mu.Lock()
	if f.closed || f.timer == nil || f.latestEdit <= f.lastSent {
		f.mu.Unlock()
		return
	}
	f.timer.Stop()
	f.armed++
	token, seq, v := f.armed, f.latestEdit, f.local
	f.mu.Unlock()

	f.fire(token, seq, v)
}

func (f *Field) fire(token uint64, seq int64, v string) {
	f.mu.Lock()
	if f.closed || token != f.armed {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	f.lastSent = seq
	handler := f.handler
	target := f.target
	target.Value = v
	evt := dom.Event{
		Type:        f.eventType,
		Target:      &target,
		Sequence:    seq,
		HasSequence: true,
	}
	ctx := f.ctx
	f.mu.Unlock()

	if handler == nil {
		f.logger.Debug("no handler for confirmation", zap.Int64("sequence", seq))
		return
	}
	if err := handler.HandleEvent(ctx, evt); err != nil {
		f.logger.Error("confirmation request failed", zap.Int64("sequence", seq), zap.Error(err))
		if f.onError != nil {
			f.onError(err)
		}
	}
}

// Confirm offers a value from a render. marked reports whether the render
// carried an edit sequence. It returns true when the displayed value was
// replaced.
//
// A marked value older than the newest local edit is stale and dropped.
// An unchanged value does not override local edits the interpreter has not
// seen yet.
func (f *Field) Confirm(v string, seq int64, marked bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}

	if marked && seq < f.latestEdit {
		f.stale++
		f.logger.Debug("discarding confirmation",
			zap.Error(errors.StaleConfirmation(seq, f.latestEdit)))
		return false
	}
	if v == f.confirmed && (!marked || f.latestEdit > f.lastSent) {
		return false
	}

	f.confirmed = v
	f.local = v
	return true
}

// Close cancels the pending debounce timer. No request is sent afterwards.
func (f *Field) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.armed++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Closed reports whether Close was called.
func (f *Field) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
