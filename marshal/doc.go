// Package marshal converts values across the interpreter/native boundary.
//
// Interpreter values (package value) map onto JSON-shaped native values:
//
//	value.Value ←→ [Marshaler] ←→ nil | string | float64 | bool | []any | map[string]any
//
// # Conversion Rules
//
//	Interpreter                  Native
//	───────────────────────────────────────────────
//	Null                         nil
//	atomic vector, length 1      bare scalar
//	atomic vector, length != 1   []any
//	named list                   map[string]any
//	unnamed list                 []any
//	anything else                string representation (anomaly)
//
// Every native number is a float64, so integer vectors widen on the way out.
// Native maps are converted with sorted keys, which makes ToInterpreter
// deterministic.
//
// Conversion never fails. A value with no recognized shape is replaced by its
// printed form and reported through the AnomalyFunc and a zap warning; it is
// never dropped.
package marshal
