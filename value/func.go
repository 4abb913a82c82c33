package value

import "fmt"

// Variadic is the NumParams result of closures accepting any number of arguments.
const Variadic = -1

// Func is an interpreter closure. Calls must happen on the interpreter's
// owning goroutine; the bridge serializes them.
type Func interface {
	Value
	NumParams() int
	Call(args []Value) (Value, error)
}

// GoFunc adapts a Go function into a Func.
type GoFunc struct {
	Name   string
	Params int
	Fn     func(args []Value) (Value, error)
}

var _ Func = (*GoFunc)(nil)

func (f *GoFunc) Type() Type { return TypeFunc }
func (f *GoFunc) Len() int   { return 1 }

func (f *GoFunc) String() string {
	if f.Name == "" {
		return "<closure>"
	}
	return fmt.Sprintf("<closure %s>", f.Name)
}

func (f *GoFunc) NumParams() int { return f.Params }

func (f *GoFunc) Call(args []Value) (Value, error) {
	return f.Fn(args)
}

// Thunk creates a zero-parameter Func.
func Thunk(name string, fn func() (Value, error)) *GoFunc {
	return &GoFunc{Name: name, Params: 0, Fn: func([]Value) (Value, error) { return fn() }}
}

// Handler creates a one-parameter Func receiving the event payload.
func Handler(name string, fn func(event Value) (Value, error)) *GoFunc {
	return &GoFunc{Name: name, Params: 1, Fn: func(args []Value) (Value, error) {
		if len(args) == 0 {
			return fn(Null{})
		}
		return fn(args[0])
	}}
}
