// Package value defines the interpreter's tagged value representation.
//
// The interpreter side of the bridge speaks in vectors and lists:
//
//	Null        absent value
//	Logical     atomic vector of bool
//	Integer     atomic vector of int64
//	Double      atomic vector of float64
//	Character   atomic vector of string
//	*List       generic vector, named (record) or unnamed (sequence)
//	Func        closure, callable only on the interpreter's goroutine
//	Opaque      anything else, kept as its printed representation
//
// A virtual element is a named list with exactly the names tag, props and
// children; IsElement checks that shape.
package value
