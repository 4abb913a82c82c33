package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseMarshal  Phase = "marshal"  // interpreter <-> native conversion
	PhaseRegistry Phase = "registry" // callback registration and lookup
	PhaseHooks    Phase = "hooks"    // hook-index protocol
	PhaseElement  Phase = "element"  // element construction
	PhaseDispatch Phase = "dispatch" // event dispatch
	PhaseRender   Phase = "render"   // root component evaluation and commit
	PhaseInput    Phase = "input"    // optimistic input fields
	PhaseLoad     Phase = "load"     // interpreter and payload loading
	PhaseConfig   Phase = "config"   // configuration
	PhaseParse    Phase = "parse"    // source and payload parsing
	PhaseGuest    Phase = "guest"    // WASM guest ABI
)

// Kind categorizes the error
type Kind string

const (
	KindMarshalingAnomaly Kind = "marshaling_anomaly"
	KindCallbackNotFound  Kind = "callback_not_found"
	KindEvaluationFailure Kind = "evaluation_failure"
	KindStaleConfirmation Kind = "stale_confirmation"
	KindHookOrder         Kind = "hook_order"
	KindTypeMismatch      Kind = "type_mismatch"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindUnsupported       Kind = "unsupported"
	KindClosed            Kind = "closed"
	KindVersionMismatch   Kind = "version_mismatch"
)

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrMarshalingAnomaly = &Error{Kind: KindMarshalingAnomaly}
	ErrCallbackNotFound  = &Error{Kind: KindCallbackNotFound}
	ErrEvaluationFailure = &Error{Kind: KindEvaluationFailure}
	ErrStaleConfirmation = &Error{Kind: KindStaleConfirmation}
	ErrHookOrder         = &Error{Kind: KindHookOrder}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrClosed            = &Error{Kind: KindClosed}
)

// Error is the structured error type used at every bridge boundary
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	ScriptType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.ScriptType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.ScriptType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", script type ")
			b.WriteString(e.ScriptType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("script type ")
			b.WriteString(e.ScriptType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.ScriptType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Is is errors.Is from the standard library, re-exported so callers need
// only this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As from the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// ScriptType sets the interpreter-side type name
func (b *Builder) ScriptType(t string) *Builder {
	b.err.ScriptType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the bridge taxonomy

// MarshalingAnomaly reports a value that matched no recognized shape and was
// replaced by its string representation.
func MarshalingAnomaly(path []string, scriptType, repr string) *Error {
	return &Error{
		Phase:      PhaseMarshal,
		Kind:       KindMarshalingAnomaly,
		Path:       path,
		ScriptType: scriptType,
		Detail:     fmt.Sprintf("unrecognized shape, using string representation %q", repr),
		Value:      repr,
	}
}

// CallbackNotFound creates an error for a dispatch that targeted an unknown callback id
func CallbackNotFound(id string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindCallbackNotFound,
		Detail: fmt.Sprintf("callback %q not registered", id),
		Value:  id,
	}
}

// EvaluationFailure wraps an error raised by the interpreter while evaluating
func EvaluationFailure(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEvaluationFailure,
		Detail: what,
		Cause:  cause,
	}
}

// StaleConfirmation describes a discarded confirmation. It is not surfaced to users.
func StaleConfirmation(seq, latest int64) *Error {
	return &Error{
		Phase:  PhaseInput,
		Kind:   KindStaleConfirmation,
		Detail: fmt.Sprintf("confirmation %d older than local edit %d", seq, latest),
		Value:  seq,
	}
}

// HookOrderViolation creates an error for hooks called in a different order or count
func HookOrderViolation(index int, detail string) *Error {
	return &Error{
		Phase:  PhaseHooks,
		Kind:   KindHookOrder,
		Path:   []string{fmt.Sprintf("hook[%d]", index)},
		Detail: detail,
		Value:  index,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, scriptType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		ScriptType: scriptType,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Closed creates an error for use after close
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// VersionMismatch creates an error for an unsatisfied package constraint
func VersionMismatch(name, constraint string, available []string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("package %q: no version satisfies %q (available: %s)", name, constraint, strings.Join(available, ", ")),
		Value:  name,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
