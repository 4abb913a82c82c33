package session

import (
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/value"
)

// State is a handle to one state slot. Handles stay valid across renders.
type State struct {
	s     *Session
	slot  *slot
	index int
}

// Index returns the hook index of the slot.
func (st *State) Index() int { return st.index }

// Get returns the current slot value.
func (st *State) Get() value.Value { return st.slot.value }

// Set replaces the slot value. A closure argument is treated as a
// functional update and called with the current value.
func (st *State) Set(v value.Value) error {
	if fn, ok := v.(value.Func); ok {
		return st.Update(func(old value.Value) (value.Value, error) {
			return fn.Call(adaptArity(fn.NumParams(), []value.Value{old}))
		})
	}
	if v == nil {
		v = value.Null{}
	}
	st.slot.value = v
	st.s.markChanged()
	return nil
}

// Update applies fn to the current value and stores the result.
func (st *State) Update(fn func(old value.Value) (value.Value, error)) error {
	next, err := fn(st.slot.value)
	if err != nil {
		return errors.EvaluationFailure(errors.PhaseHooks, "state update", err)
	}
	if next == nil {
		next = value.Null{}
	}
	st.slot.value = next
	st.s.markChanged()
	return nil
}

// Setter exposes Set as an interpreter closure taking one argument.
func (st *State) Setter() value.Func {
	return value.Handler("set_state", func(v value.Value) (value.Value, error) {
		if err := st.Set(v); err != nil {
			return nil, err
		}
		return value.Null{}, nil
	})
}

// Ref is a mutable cell that survives renders without triggering them.
type Ref struct {
	slot *slot
}

// Get returns the current value.
func (r *Ref) Get() value.Value { return r.slot.value }

// Set stores v.
func (r *Ref) Set(v value.Value) {
	if v == nil {
		v = value.Null{}
	}
	r.slot.value = v
}
