// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Kind values mirror the bridge's failure taxonomy:
//
//	marshaling_anomaly  value fell back to its string form; logged, never fatal
//	callback_not_found  dispatch targeted an unknown callback id; always surfaced
//	evaluation_failure  the interpreter raised; rendered into the mount point
//	stale_confirmation  a discarded input confirmation; never surfaced
//	hook_order          hooks called in a different order or count between renders
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindInvalidData).
//		Path("event", "target").
//		Detail("target is not a record").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.CallbackNotFound(id)
//	err := errors.EvaluationFailure(errors.PhaseRender, "call root component", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// The package-level sentinels match on Kind alone:
//
//	if errors.Is(err, uberrors.ErrCallbackNotFound) { ... }
package errors
