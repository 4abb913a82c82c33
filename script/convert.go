package script

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/wippyai/uibridge/value"
)

// Element is the Starlark value of a built element.
type Element struct {
	list *value.List
}

var (
	_ starlark.Value    = (*Element)(nil)
	_ starlark.HasAttrs = (*Element)(nil)
)

func (e *Element) String() string        { return e.list.String() }
func (e *Element) Type() string          { return "element" }
func (e *Element) Freeze()               {}
func (e *Element) Truth() starlark.Bool  { return starlark.True }
func (e *Element) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: element") }

func (e *Element) Attr(name string) (starlark.Value, error) {
	v, ok := e.list.Get(name)
	if !ok {
		return nil, nil
	}
	return toStarlark(nil, v), nil
}

func (e *Element) AttrNames() []string {
	return []string{value.FieldChildren, value.FieldProps, value.FieldTag}
}

// Value returns the element as an interpreter value.
func (e *Element) Value() *value.List { return e.list }

// callable wraps a Starlark callable as a closure.
type callable struct {
	thread *starlark.Thread
	fn     starlark.Callable
}

var _ value.Func = (*callable)(nil)

func (c *callable) Type() value.Type { return value.TypeFunc }
func (c *callable) Len() int         { return 1 }
func (c *callable) String() string   { return fmt.Sprintf("<closure %s>", c.fn.Name()) }

func (c *callable) NumParams() int {
	fn, ok := c.fn.(*starlark.Function)
	if !ok || fn.HasVarargs() {
		return value.Variadic
	}
	return fn.NumParams() - fn.NumKwonlyParams()
}

func (c *callable) Call(args []value.Value) (value.Value, error) {
	sargs := make(starlark.Tuple, len(args))
	for i, a := range args {
		sargs[i] = toStarlark(c.thread, a)
	}
	refill(c.thread)
	res, err := starlark.Call(c.thread, c.fn, sargs, nil)
	if err != nil {
		return nil, err
	}
	return fromStarlark(c.thread, res), nil
}

func fromStarlark(thread *starlark.Thread, v starlark.Value) value.Value {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return value.Null{}
	case starlark.Bool:
		return value.Bool(bool(x))
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return value.Int(n)
		}
		return value.Num(float64(x.Float()))
	case starlark.Float:
		return value.Num(float64(x))
	case starlark.String:
		return value.Str(string(x))
	case *Element:
		return x.list
	case *starlark.List:
		out := make([]value.Value, x.Len())
		for i := range out {
			out[i] = fromStarlark(thread, x.Index(i))
		}
		return value.NewList(out...)
	case starlark.Tuple:
		out := make([]value.Value, len(x))
		for i, e := range x {
			out[i] = fromStarlark(thread, e)
		}
		return value.NewList(out...)
	case *starlark.Dict:
		return dictValue(thread, x)
	case *funcValue:
		return x.fn
	case starlark.Callable:
		return &callable{thread: thread, fn: x}
	}
	return value.Opaque{TypeName: v.Type(), Repr: v.String()}
}

func dictValue(thread *starlark.Thread, d *starlark.Dict) value.Value {
	items := d.Items()
	names := make([]string, 0, len(items))
	vals := make([]value.Value, 0, len(items))
	for _, kv := range items {
		k, ok := kv[0].(starlark.String)
		if !ok {
			return value.Opaque{TypeName: "dict", Repr: d.String()}
		}
		names = append(names, string(k))
		vals = append(vals, fromStarlark(thread, kv[1]))
	}
	return value.NewNamedList(names, vals)
}

func toStarlark(thread *starlark.Thread, v value.Value) starlark.Value {
	switch x := v.(type) {
	case nil, value.Null:
		return starlark.None
	case value.Logical:
		return vector(len(x), func(i int) starlark.Value { return starlark.Bool(x[i]) })
	case value.Integer:
		return vector(len(x), func(i int) starlark.Value { return starlark.MakeInt64(x[i]) })
	case value.Double:
		return vector(len(x), func(i int) starlark.Value {
			if f := x[i]; f == float64(int64(f)) {
				return starlark.MakeInt64(int64(f))
			}
			return starlark.Float(x[i])
		})
	case value.Character:
		return vector(len(x), func(i int) starlark.Value { return starlark.String(x[i]) })
	case *value.List:
		if value.IsElement(x) {
			return &Element{list: x}
		}
		if x.IsNamed() {
			d := starlark.NewDict(len(x.Values))
			for i, name := range x.Names {
				_ = d.SetKey(starlark.String(name), toStarlark(thread, x.Values[i]))
			}
			return d
		}
		elems := make([]starlark.Value, len(x.Values))
		for i, e := range x.Values {
			elems[i] = toStarlark(thread, e)
		}
		return starlark.NewList(elems)
	case *callable:
		return x.fn
	case value.Func:
		return wrapFunc(x)
	}
	return starlark.String(v.String())
}

// funcValue exposes a closure to Starlark.
type funcValue struct {
	fn value.Func
}

var _ starlark.Callable = (*funcValue)(nil)

func wrapFunc(fn value.Func) *funcValue { return &funcValue{fn: fn} }

func (f *funcValue) Name() string {
	if g, ok := f.fn.(*value.GoFunc); ok && g.Name != "" {
		return g.Name
	}
	return "closure"
}

func (f *funcValue) String() string        { return fmt.Sprintf("<built-in function %s>", f.Name()) }
func (f *funcValue) Type() string          { return "builtin_function_or_method" }
func (f *funcValue) Freeze()               {}
func (f *funcValue) Truth() starlark.Bool  { return starlark.True }
func (f *funcValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", f.Type()) }

func (f *funcValue) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", f.Name())
	}
	vargs := make([]value.Value, len(args))
	for i, a := range args {
		vargs[i] = fromStarlark(thread, a)
	}
	res, err := f.fn.Call(vargs)
	if err != nil {
		return nil, err
	}
	return toStarlark(thread, res), nil
}

func vector(n int, elem func(int) starlark.Value) starlark.Value {
	if n == 1 {
		return elem(0)
	}
	out := make([]starlark.Value, n)
	for i := range out {
		out[i] = elem(i)
	}
	return starlark.NewList(out)
}
