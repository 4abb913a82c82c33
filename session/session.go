package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/value"
)

// Wire keys shared with the dispatcher and the element factory.
const (
	SequenceKey     = "__sequence"
	StateChangedKey = "__state_changed"
	ResultKey       = "value"
	CallbackIDKey   = "callback_id"
)

// DefaultRetainGenerations keeps closures of the committed render and the
// one before it, so events fired at the outgoing tree still resolve.
const DefaultRetainGenerations = 2

// HookKind records which hook created a slot.
type HookKind uint8

const (
	HookState HookKind = iota + 1
	HookRef
)

func (k HookKind) String() string {
	switch k {
	case HookState:
		return "use_state"
	case HookRef:
		return "use_ref"
	}
	return "unknown"
}

type slot struct {
	value value.Value
	kind  HookKind
}

// Session is the render session of one mounted root component.
type Session struct {
	logger   *zap.Logger
	registry *Registry
	onChange func()
	hookErr  error

	slots []*slot

	hookIndex      int
	hooksPerRender int
	generation     uint64
	retain         uint64
	pendingSeq     int64

	strict     bool
	hasPending bool
	rendering  bool
	invoking   bool
	changed    bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStrictHooks enables or disables hook order checking. It is on by default.
func WithStrictHooks(strict bool) Option {
	return func(s *Session) { s.strict = strict }
}

// WithRetainGenerations sets how many committed render generations keep
// their closures registered. Zero disables pruning.
func WithRetainGenerations(n uint64) Option {
	return func(s *Session) { s.retain = n }
}

// WithChangeFunc sets a callback invoked when state is written outside of
// a render and outside of Invoke.
func WithChangeFunc(fn func()) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithRegistry replaces the callback registry.
func WithRegistry(r *Registry) Option {
	return func(s *Session) {
		if r != nil {
			s.registry = r
		}
	}
}

// New creates a fresh render session.
func New(opts ...Option) *Session {
	s := &Session{
		logger:         Logger(),
		registry:       NewRegistry(),
		strict:         true,
		retain:         DefaultRetainGenerations,
		hooksPerRender: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the session's callback registry.
func (s *Session) Registry() *Registry { return s.registry }

// Generation returns the generation of the most recently started render.
func (s *Session) Generation() uint64 { return s.generation }

// HookIndex returns the next hook index of the current render.
func (s *Session) HookIndex() int { return s.hookIndex }

// Slots returns the number of initialized hook slots.
func (s *Session) Slots() int { return len(s.slots) }

// Rendering reports whether a render is in progress.
func (s *Session) Rendering() bool { return s.rendering }

// BeginRender resets the hook index and starts a new render generation.
// State slots are preserved.
func (s *Session) BeginRender() uint64 {
	s.hookIndex = 0
	s.hookErr = nil
	s.rendering = true
	s.generation++
	return s.generation
}

// EndRender finishes the current render. In strict mode it fails when the
// render called a different number of hooks than the first completed render.
func (s *Session) EndRender() error {
	s.rendering = false
	s.hasPending = false

	if s.hookErr != nil {
		return s.hookErr
	}
	if !s.strict {
		return nil
	}
	if s.hooksPerRender < 0 {
		s.hooksPerRender = s.hookIndex
		return nil
	}
	if s.hookIndex != s.hooksPerRender {
		return errors.HookOrderViolation(s.hookIndex,
			fmt.Sprintf("render called %d hooks, previous renders called %d", s.hookIndex, s.hooksPerRender))
	}
	return nil
}

// AbortRender ends a render that failed before EndRender.
func (s *Session) AbortRender() {
	s.rendering = false
	s.hasPending = false
}

// Commit marks generation as displayed and prunes closures registered more
// than the retained number of generations before it.
func (s *Session) Commit(generation uint64) int {
	if s.retain == 0 || generation < s.retain {
		return 0
	}
	n := s.registry.Prune(generation - s.retain + 1)
	if n > 0 {
		s.logger.Debug("pruned callbacks",
			zap.Uint64("generation", generation),
			zap.Int("count", n),
			zap.Int("remaining", s.registry.Len()))
	}
	return n
}

// next claims the slot at the current hook index.
func (s *Session) next(kind HookKind, initial value.Value) (int, *slot) {
	idx := s.hookIndex
	s.hookIndex++

	if idx < len(s.slots) {
		sl := s.slots[idx]
		if sl.kind != kind {
			if s.strict {
				if s.hookErr == nil {
					s.hookErr = errors.HookOrderViolation(idx,
						fmt.Sprintf("%s called where %s was called before", kind, sl.kind))
				}
				return idx, &slot{value: initial, kind: kind}
			}
			s.logger.Debug("hook kind changed", zap.Int("index", idx), zap.Stringer("was", sl.kind), zap.Stringer("now", kind))
		}
		return idx, sl
	}

	if s.strict && s.hooksPerRender >= 0 && idx >= s.hooksPerRender {
		if s.hookErr == nil {
			s.hookErr = errors.HookOrderViolation(idx,
				fmt.Sprintf("hook %d called, previous renders called %d hooks", idx+1, s.hooksPerRender))
		}
		return idx, &slot{value: initial, kind: kind}
	}

	if initial == nil {
		initial = value.Null{}
	}
	sl := &slot{value: initial, kind: kind}
	s.slots = append(s.slots, sl)
	return idx, sl
}

// UseState returns the state hook at the current index, seeding it with
// initial the first time the index is reached.
func (s *Session) UseState(initial value.Value) *State {
	idx, sl := s.next(HookState, initial)
	return &State{s: s, slot: sl, index: idx}
}

// UseRef returns a mutable cell at the current index. Writing it does not
// request a re-render.
func (s *Session) UseRef(initial value.Value) *Ref {
	_, sl := s.next(HookRef, initial)
	return &Ref{slot: sl}
}

func (s *Session) markChanged() {
	s.changed = true
	if !s.rendering && !s.invoking && s.onChange != nil {
		s.onChange()
	}
}

// PendingSequence returns the sequence marker captured from the event of
// the last invocation, if it carried one.
func (s *Session) PendingSequence() (int64, bool) {
	return s.pendingSeq, s.hasPending
}

// Register stores fn in the registry under the current render generation.
func (s *Session) Register(fn value.Func) string {
	return s.registry.Register(fn, s.generation)
}

// Invoke calls the closure registered under id. args holds at most the
// event payload; it is adapted to the closure's arity. When the closure
// wrote state the result is wrapped in the state-changed marker.
func (s *Session) Invoke(id string, args []value.Value) (value.Value, error) {
	fn, ok := s.registry.Lookup(id)
	if !ok {
		return nil, errors.CallbackNotFound(id)
	}

	s.captureSequence(args)
	s.changed = false
	s.invoking = true
	defer func() { s.invoking = false }()

	s.registry.notify(Event{Type: EventInvoked, ID: id, Generation: s.generation})

	result, err := fn.Call(adaptArity(fn.NumParams(), args))
	if err != nil {
		s.hasPending = false
		return nil, errors.EvaluationFailure(errors.PhaseDispatch, fmt.Sprintf("callback %s", id), err)
	}
	if result == nil {
		result = value.Null{}
	}

	if s.changed {
		s.changed = false
		return StateChanged(result), nil
	}
	// No render follows this event, so its sequence must not stamp one.
	s.hasPending = false
	s.pendingSeq = 0
	return result, nil
}

func (s *Session) captureSequence(args []value.Value) {
	s.hasPending = false
	s.pendingSeq = 0
	if len(args) == 0 {
		return
	}
	evt, ok := args[0].(*value.List)
	if !ok {
		return
	}
	v, ok := evt.Get(SequenceKey)
	if !ok {
		return
	}
	if seq, ok := value.AsInt(v); ok {
		s.pendingSeq = seq
		s.hasPending = true
	}
}

func adaptArity(params int, args []value.Value) []value.Value {
	switch params {
	case 0:
		return nil
	case 1:
		if len(args) == 0 {
			return []value.Value{value.Null{}}
		}
		return args[:1]
	}
	return args
}

// StateChanged wraps result in the state-changed marker.
func StateChanged(result value.Value) *value.List {
	return value.NewNamedList(
		[]string{StateChangedKey, ResultKey},
		[]value.Value{value.Bool(true), result},
	)
}

// IsStateChanged reports whether a native result is the state-changed marker.
func IsStateChanged(native any) bool {
	m, ok := native.(map[string]any)
	if !ok {
		return false
	}
	flag, ok := m[StateChangedKey].(bool)
	return ok && flag
}

// Reset clears every hook slot and registered closure.
func (s *Session) Reset() {
	s.slots = nil
	s.hookIndex = 0
	s.hooksPerRender = -1
	s.hookErr = nil
	s.hasPending = false
	s.changed = false
	s.registry.Reset()
}
