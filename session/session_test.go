package session

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/marshal"
	"github.com/wippyai/uibridge/value"
)

func incr(v value.Value) (value.Value, error) {
	n, ok := value.AsInt(v)
	if !ok {
		return nil, fmt.Errorf("not a number: %s", v)
	}
	return value.Int(n + 1), nil
}

func TestInvokeZeroArity(t *testing.T) {
	s := New()
	id := s.Register(value.Thunk("answer", func() (value.Value, error) {
		return value.Num(41 + 1), nil
	}))

	got, err := s.Invoke(id, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if native := marshal.ToNative(got); native != float64(42) {
		t.Fatalf("expected 42, got %#v", native)
	}
}

func TestInvokeArityAdaptation(t *testing.T) {
	s := New()
	var seen []value.Value
	one := s.Register(value.Handler("one", func(evt value.Value) (value.Value, error) {
		seen = append(seen, evt)
		return value.Null{}, nil
	}))
	zero := s.Register(value.Thunk("zero", func() (value.Value, error) { return value.Str("ok"), nil }))

	evt := value.NewNamedList([]string{"type"}, []value.Value{value.Str("click")})

	if _, err := s.Invoke(one, nil); err != nil {
		t.Fatalf("one-param closure without args: %v", err)
	}
	if _, err := s.Invoke(one, []value.Value{evt}); err != nil {
		t.Fatalf("one-param closure with event: %v", err)
	}
	if got, err := s.Invoke(zero, []value.Value{evt}); err != nil || marshal.ToNative(got) != "ok" {
		t.Fatalf("zero-param closure with event: %v, %v", got, err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(seen))
	}
	if !value.IsNull(seen[0]) {
		t.Errorf("missing event should arrive as NULL, got %s", seen[0])
	}
	if seen[1] != evt {
		t.Errorf("event not passed through")
	}
}

func TestInvokeCallbackNotFound(t *testing.T) {
	s := New()

	_, err := s.Invoke("cb_404_deadbeef", nil)
	if !errors.Is(err, errors.ErrCallbackNotFound) {
		t.Fatalf("expected CallbackNotFound, got %v", err)
	}

	id := s.Register(value.Thunk("f", func() (value.Value, error) { return value.Null{}, nil }))
	s.Registry().Reset()
	_, err = s.Invoke(id, nil)
	if errors.KindOf(err) != errors.KindCallbackNotFound {
		t.Fatalf("expected CallbackNotFound after reset, got %v", err)
	}
}

func TestInvokeEvaluationFailure(t *testing.T) {
	s := New()
	boom := fmt.Errorf("boom")
	id := s.Register(value.Thunk("f", func() (value.Value, error) { return nil, boom }))

	_, err := s.Invoke(id, nil)
	if !errors.Is(err, errors.ErrEvaluationFailure) {
		t.Fatalf("expected evaluation failure, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestCallbackIDsUnique(t *testing.T) {
	s := New()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := s.Register(value.Thunk("f", func() (value.Value, error) { return value.Null{}, nil }))
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}

	other := New()
	id := other.Register(value.Thunk("f", func() (value.Value, error) { return value.Null{}, nil }))
	if seen[id] {
		t.Fatalf("id %s collides across sessions", id)
	}
}

func TestCounterScenario(t *testing.T) {
	s := New()
	var setter value.Func

	render := func() value.Value {
		s.BeginRender()
		count := s.UseState(value.Int(0))
		setter = count.Setter()
		v := count.Get()
		if err := s.EndRender(); err != nil {
			t.Fatalf("EndRender: %v", err)
		}
		return v
	}

	if got := render(); marshal.ToNative(got) != float64(0) {
		t.Fatalf("initial = %v", got)
	}

	inc := value.Handler("inc", incr)
	for i := 0; i < 3; i++ {
		if _, err := setter.Call([]value.Value{inc}); err != nil {
			t.Fatalf("set: %v", err)
		}
		render()
	}

	if got := render(); marshal.ToNative(got) != float64(3) {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestInvokeStateChangedMarker(t *testing.T) {
	s := New()
	s.BeginRender()
	count := s.UseState(value.Int(0))
	_ = s.EndRender()

	bump := s.Register(value.Thunk("bump", func() (value.Value, error) {
		return value.Str("done"), count.Update(incr)
	}))
	noop := s.Register(value.Thunk("noop", func() (value.Value, error) { return value.Str("idle"), nil }))

	got, err := s.Invoke(bump, nil)
	if err != nil {
		t.Fatal(err)
	}
	native := marshal.ToNative(got)
	if !IsStateChanged(native) {
		t.Fatalf("expected marker, got %#v", native)
	}
	if native.(map[string]any)[ResultKey] != "done" {
		t.Errorf("marker value = %#v", native)
	}

	got, err = s.Invoke(noop, nil)
	if err != nil {
		t.Fatal(err)
	}
	if IsStateChanged(marshal.ToNative(got)) {
		t.Fatalf("side-effect-only call returned marker")
	}
}

func TestChangeFuncOutsideInvoke(t *testing.T) {
	calls := 0
	s := New(WithChangeFunc(func() { calls++ }))
	s.BeginRender()
	st := s.UseState(value.Int(0))
	_ = st.Set(value.Int(1))
	_ = s.EndRender()
	if calls != 0 {
		t.Fatalf("write during render notified %d times", calls)
	}

	_ = st.Set(value.Int(2))
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}

	id := s.Register(value.Thunk("f", func() (value.Value, error) { return nil, st.Set(value.Int(3)) }))
	_, _ = s.Invoke(id, nil)
	if calls != 1 {
		t.Fatalf("write inside Invoke should use the marker, got %d notifications", calls)
	}
}

func TestSequenceCapture(t *testing.T) {
	s := New()
	s.BeginRender()
	text := s.UseState(value.Str(""))
	_ = s.EndRender()

	write := s.Register(value.Handler("write", func(value.Value) (value.Value, error) {
		return value.Null{}, text.Set(value.Str("x"))
	}))
	read := s.Register(value.Handler("read", func(value.Value) (value.Value, error) { return value.Null{}, nil }))

	withSeq := marshal.ToInterpreter(map[string]any{"type": "input", SequenceKey: float64(7)})
	if _, err := s.Invoke(write, []value.Value{withSeq}); err != nil {
		t.Fatal(err)
	}
	if seq, ok := s.PendingSequence(); !ok || seq != 7 {
		t.Fatalf("pending = %d, %v", seq, ok)
	}

	without := marshal.ToInterpreter(map[string]any{"type": "click"})
	if _, err := s.Invoke(write, []value.Value{without}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.PendingSequence(); ok {
		t.Fatal("pending sequence should be cleared by an unmarked event")
	}

	// A marked event that writes nothing triggers no render, so a later
	// render caused by another write must not carry its sequence.
	if _, err := s.Invoke(read, []value.Value{withSeq}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.PendingSequence(); ok {
		t.Fatal("sequence of an event without state change is still pending")
	}
}

func TestHookOrderStrict(t *testing.T) {
	tests := []struct {
		name   string
		second func(s *Session)
	}{
		{"fewer hooks", func(s *Session) { s.UseState(value.Int(0)) }},
		{"more hooks", func(s *Session) {
			s.UseState(value.Int(0))
			s.UseState(value.Int(0))
			s.UseState(value.Int(0))
		}},
		{"kind swapped", func(s *Session) {
			s.UseRef(value.Null{})
			s.UseState(value.Int(0))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.BeginRender()
			s.UseState(value.Int(0))
			s.UseRef(value.Null{})
			if err := s.EndRender(); err != nil {
				t.Fatalf("first render: %v", err)
			}

			s.BeginRender()
			tt.second(s)
			err := s.EndRender()
			if !errors.Is(err, errors.ErrHookOrder) {
				t.Fatalf("expected hook order violation, got %v", err)
			}
		})
	}
}

func TestHookOrderLenient(t *testing.T) {
	s := New(WithStrictHooks(false))
	s.BeginRender()
	s.UseState(value.Int(0))
	if err := s.EndRender(); err != nil {
		t.Fatal(err)
	}
	s.BeginRender()
	if err := s.EndRender(); err != nil {
		t.Fatalf("lenient session rejected a conditional hook: %v", err)
	}
}

func TestCommitPrunesOldGenerations(t *testing.T) {
	s := New(WithRetainGenerations(2))
	var pruned []string
	unsubscribe := s.Registry().Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventPruned {
			pruned = append(pruned, e.ID)
		}
	}))
	defer unsubscribe()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		gen := s.BeginRender()
		ids = append(ids, s.Register(value.Thunk("f", func() (value.Value, error) { return value.Null{}, nil })))
		_ = s.EndRender()
		s.Commit(gen)
	}

	if len(pruned) != 1 || pruned[0] != ids[0] {
		t.Fatalf("pruned = %v, want [%s]", pruned, ids[0])
	}
	if _, err := s.Invoke(ids[0], nil); errors.KindOf(err) != errors.KindCallbackNotFound {
		t.Fatalf("stale id should be gone, got %v", err)
	}
	for _, id := range ids[1:] {
		if _, ok := s.Registry().Lookup(id); !ok {
			t.Errorf("%s pruned too early", id)
		}
	}
}

func TestCommitRetainZeroKeepsEverything(t *testing.T) {
	s := New(WithRetainGenerations(0))
	for i := 0; i < 5; i++ {
		gen := s.BeginRender()
		s.Register(value.Thunk("f", func() (value.Value, error) { return value.Null{}, nil }))
		_ = s.EndRender()
		s.Commit(gen)
	}
	if s.Registry().Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", s.Registry().Len())
	}
}

func TestHookIndexStabilityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	const hooks = 3

	properties.Property("slots hold the ordered application of every set", prop.ForAll(
		func(ops []int, renders int) bool {
			s := New()
			want := make([]int64, hooks)
			var states []*State

			render := func() bool {
				s.BeginRender()
				states = states[:0]
				for i := 0; i < hooks; i++ {
					states = append(states, s.UseState(value.Int(0)))
				}
				return s.EndRender() == nil
			}

			if !render() {
				return false
			}
			for r := 0; r < renders; r++ {
				for i, op := range ops {
					if i%renders != r {
						continue
					}
					idx, delta := op%hooks, int64(op/hooks)
					want[idx] += delta
					err := states[idx].Update(func(old value.Value) (value.Value, error) {
						n, _ := value.AsInt(old)
						return value.Int(n + delta), nil
					})
					if err != nil {
						return false
					}
				}
				if !render() {
					return false
				}
			}

			for i, st := range states {
				n, ok := value.AsInt(st.Get())
				if !ok || n != want[i] {
					return false
				}
			}
			return s.Slots() == hooks
		},
		gen.SliceOf(gen.IntRange(0, 29)),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
