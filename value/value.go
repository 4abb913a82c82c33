package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Type identifies the shape of an interpreter value
type Type uint8

const (
	TypeNull Type = iota
	TypeLogical
	TypeInteger
	TypeDouble
	TypeCharacter
	TypeList
	TypeFunc
	TypeOpaque
)

var typeNames = [...]string{
	TypeNull:      "NULL",
	TypeLogical:   "logical",
	TypeInteger:   "integer",
	TypeDouble:    "double",
	TypeCharacter: "character",
	TypeList:      "list",
	TypeFunc:      "closure",
	TypeOpaque:    "opaque",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// Value is an interpreter-side tagged value.
type Value interface {
	Type() Type
	Len() int
	String() string
}

// Null is the interpreter's absent value.
type Null struct{}

func (Null) Type() Type     { return TypeNull }
func (Null) Len() int       { return 0 }
func (Null) String() string { return "NULL" }

// Logical is an atomic vector of booleans.
type Logical []bool

func (v Logical) Type() Type { return TypeLogical }
func (v Logical) Len() int   { return len(v) }
func (v Logical) String() string {
	return vectorString(len(v), func(i int) string {
		if v[i] {
			return "TRUE"
		}
		return "FALSE"
	})
}

// Integer is an atomic vector of integers.
type Integer []int64

func (v Integer) Type() Type { return TypeInteger }
func (v Integer) Len() int   { return len(v) }
func (v Integer) String() string {
	return vectorString(len(v), func(i int) string { return strconv.FormatInt(v[i], 10) + "L" })
}

// Double is an atomic vector of floating point numbers.
type Double []float64

func (v Double) Type() Type { return TypeDouble }
func (v Double) Len() int   { return len(v) }
func (v Double) String() string {
	return vectorString(len(v), func(i int) string { return strconv.FormatFloat(v[i], 'g', -1, 64) })
}

// Character is an atomic vector of strings.
type Character []string

func (v Character) Type() Type { return TypeCharacter }
func (v Character) Len() int   { return len(v) }
func (v Character) String() string {
	return vectorString(len(v), func(i int) string { return strconv.Quote(v[i]) })
}

func vectorString(n int, elem func(int) string) string {
	if n == 1 {
		return elem(0)
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = elem(i)
	}
	return "c(" + strings.Join(parts, ", ") + ")"
}

// Opaque stands in for interpreter values with no bridge representation
// (environments, external pointers, language objects).
type Opaque struct {
	TypeName string
	Repr     string
}

func (o Opaque) Type() Type     { return TypeOpaque }
func (o Opaque) Len() int       { return 1 }
func (o Opaque) String() string { return o.Repr }

// Scalar constructors

func Str(s string) Character { return Character{s} }
func Int(i int64) Integer    { return Integer{i} }
func Num(f float64) Double   { return Double{f} }
func Bool(b bool) Logical    { return Logical{b} }

func Opaquef(typeName, format string, args ...any) Opaque {
	return Opaque{TypeName: typeName, Repr: fmt.Sprintf(format, args...)}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// AsString returns the single string held by a length-1 character vector.
func AsString(v Value) (string, bool) {
	c, ok := v.(Character)
	if !ok || len(c) != 1 {
		return "", false
	}
	return c[0], true
}

// AsInt returns a length-1 integer or integral double as int64.
func AsInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case Integer:
		if len(x) == 1 {
			return x[0], true
		}
	case Double:
		if len(x) == 1 && x[0] == float64(int64(x[0])) {
			return int64(x[0]), true
		}
	}
	return 0, false
}

// AsBool returns the single boolean held by a length-1 logical vector.
func AsBool(v Value) (bool, bool) {
	l, ok := v.(Logical)
	if !ok || len(l) != 1 {
		return false, false
	}
	return l[0], true
}
