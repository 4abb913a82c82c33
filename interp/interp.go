// Package interp defines the boundary between the bridge and the embedded
// interpreter.
//
// An Interpreter evaluates synchronously and is not reentrant: callers
// must serialize Init, RenderRoot, Invoke and Commit. Runtime is the
// in-process implementation; it compiles component source with a Frontend
// and keeps the render session on the Go side.
package interp

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/element"
	"github.com/wippyai/uibridge/marshal"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/value"
)

// Frame is the result of one root component evaluation.
type Frame struct {
	// Tree is the native element tree.
	Tree any
	// Generation identifies the render; pass it to Commit once the tree
	// is displayed.
	Generation uint64
}

// Interpreter is a single-threaded, blocking interpreter session.
type Interpreter interface {
	// Init loads the payload and resolves the root component.
	Init(ctx context.Context, p Payload) error
	// RenderRoot resets the hook index and evaluates the root component.
	RenderRoot(ctx context.Context) (Frame, error)
	// Invoke calls a registered callback with a native event payload.
	Invoke(ctx context.Context, id string, event map[string]any) (any, error)
	// Commit reports that the frame of generation is displayed.
	Commit(generation uint64)
	// Close releases the interpreter.
	Close(ctx context.Context) error
}

// Env is what component code sees while rendering.
type Env struct {
	Session  *session.Session
	Elements *element.Factory
	Marshal  *marshal.Marshaler
	Logger   *zap.Logger
	Packages map[string]*Package
}

// Component renders one component.
type Component interface {
	Render(env *Env) (value.Value, error)
}

// ComponentFunc adapts a Go function into a Component.
type ComponentFunc func(env *Env) (value.Value, error)

func (f ComponentFunc) Render(env *Env) (value.Value, error) { return f(env) }

// Program is compiled component source.
type Program interface {
	Component(name string) (Component, bool)
}

// ProgramFunc is a Program of Go components keyed by name.
type ProgramFunc map[string]ComponentFunc

func (p ProgramFunc) Component(name string) (Component, bool) {
	c, ok := p[name]
	if !ok {
		return nil, false
	}
	return c, true
}

// Frontend compiles component source.
type Frontend interface {
	Name() string
	Compile(ctx context.Context, p Payload, env *Env) (Program, error)
}

// FrontendFunc adapts a function into a Frontend.
type FrontendFunc func(ctx context.Context, p Payload, env *Env) (Program, error)

func (f FrontendFunc) Name() string { return "func" }

func (f FrontendFunc) Compile(ctx context.Context, p Payload, env *Env) (Program, error) {
	return f(ctx, p, env)
}
