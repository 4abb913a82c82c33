package value

import "strings"

// List is a generic vector. Names == nil means an unnamed list; a non-nil
// Names slice (possibly empty) means a named list with one name per element.
type List struct {
	Values []Value
	Names  []string
}

// NewList creates an unnamed list.
func NewList(values ...Value) *List {
	return &List{Values: values}
}

// NewNamedList creates a named list from parallel name and value slices.
// It panics if the lengths differ.
func NewNamedList(names []string, values []Value) *List {
	if len(names) != len(values) {
		panic("value: names and values length mismatch")
	}
	if names == nil {
		names = []string{}
	}
	return &List{Values: values, Names: names}
}

// Record creates an empty named list.
func Record() *List {
	return &List{Names: []string{}}
}

func (l *List) Type() Type { return TypeList }
func (l *List) Len() int   { return len(l.Values) }

func (l *List) String() string {
	var b strings.Builder
	b.WriteString("list(")
	for i, v := range l.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		if l.IsNamed() {
			b.WriteString(l.Names[i])
			b.WriteString(" = ")
		}
		if v == nil {
			b.WriteString("NULL")
		} else {
			b.WriteString(v.String())
		}
	}
	b.WriteByte(')')
	return b.String()
}

// IsNamed reports whether the list carries names.
func (l *List) IsNamed() bool {
	return l.Names != nil
}

// Get returns the element stored under name.
func (l *List) Get(name string) (Value, bool) {
	if !l.IsNamed() {
		return nil, false
	}
	for i, n := range l.Names {
		if n == name {
			return l.Values[i], true
		}
	}
	return nil, false
}

// Set replaces the element under name or appends it. The list becomes named.
func (l *List) Set(name string, v Value) *List {
	if l.Names == nil {
		l.Names = make([]string, len(l.Values))
	}
	for i, n := range l.Names {
		if n == name {
			l.Values[i] = v
			return l
		}
	}
	l.Names = append(l.Names, name)
	l.Values = append(l.Values, v)
	return l
}

// Append adds an unnamed element. On a named list the element gets an empty name.
func (l *List) Append(v Value) *List {
	if l.Names != nil {
		l.Names = append(l.Names, "")
	}
	l.Values = append(l.Values, v)
	return l
}

// Element field names of the virtual element wire shape.
const (
	FieldTag      = "tag"
	FieldProps    = "props"
	FieldChildren = "children"
)

// IsElement reports whether v is a named list shaped as a virtual element.
func IsElement(v Value) bool {
	l, ok := v.(*List)
	if !ok || !l.IsNamed() || len(l.Values) != 3 {
		return false
	}
	tag, ok := l.Get(FieldTag)
	if !ok {
		return false
	}
	if _, ok := AsString(tag); !ok {
		return false
	}
	props, ok := l.Get(FieldProps)
	if !ok {
		return false
	}
	if pl, ok := props.(*List); !ok || !pl.IsNamed() {
		return false
	}
	children, ok := l.Get(FieldChildren)
	if !ok {
		return false
	}
	cl, ok := children.(*List)
	return ok && !cl.IsNamed()
}
