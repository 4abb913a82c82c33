package interp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/element"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/marshal"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/value"
)

// Runtime is an in-process Interpreter. Component code runs on the calling
// goroutine; the render session lives in Go.
type Runtime struct {
	frontend  Frontend
	program   Program
	root      Component
	library   *Library
	logger    *zap.Logger
	session   *session.Session
	marshaler *marshal.Marshaler
	env       *Env

	sessionOpts []session.Option
	rootName    string

	initialized bool
	closed      bool
}

var _ Interpreter = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithFrontend sets the frontend compiling payload source.
func WithFrontend(f Frontend) Option {
	return func(r *Runtime) { r.frontend = f }
}

// WithProgram uses p instead of compiling the payload source.
func WithProgram(p Program) Option {
	return func(r *Runtime) { r.program = p }
}

// WithLibrary sets the package registry used to resolve requirements.
func WithLibrary(l *Library) Option {
	return func(r *Runtime) { r.library = l }
}

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSessionOptions configures the render session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(r *Runtime) { r.sessionOpts = append(r.sessionOpts, opts...) }
}

// WithMarshaler sets the value marshaler.
func WithMarshaler(m *marshal.Marshaler) Option {
	return func(r *Runtime) {
		if m != nil {
			r.marshaler = m
		}
	}
}

// NewRuntime creates an uninitialized runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{logger: Logger()}
	for _, opt := range opts {
		opt(r)
	}
	if r.marshaler == nil {
		r.marshaler = marshal.New(marshal.WithLogger(r.logger))
	}
	r.session = session.New(append([]session.Option{session.WithLogger(r.logger)}, r.sessionOpts...)...)
	return r
}

// Session returns the render session.
func (r *Runtime) Session() *session.Session { return r.session }

// Env returns the component environment, nil before Init.
func (r *Runtime) Env() *Env { return r.env }

// Init resolves packages, compiles the source and finds the root component.
func (r *Runtime) Init(ctx context.Context, p Payload) error {
	if r.closed {
		return errors.Closed(errors.PhaseLoad, "interpreter")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	packages := map[string]*Package{}
	if len(p.Packages) > 0 {
		if r.library == nil {
			name, _ := ParseRequirement(p.Packages[0])
			return errors.NotFound(errors.PhaseLoad, "package", name)
		}
		resolved, err := r.library.ResolveAll(p.Packages)
		if err != nil {
			return err
		}
		packages = resolved
	}

	r.env = &Env{
		Session:  r.session,
		Elements: element.New(r.session),
		Marshal:  r.marshaler,
		Logger:   r.logger,
		Packages: packages,
	}

	program := r.program
	if program == nil {
		if r.frontend == nil {
			return errors.NotInitialized(errors.PhaseLoad, "frontend")
		}
		compiled, err := r.frontend.Compile(ctx, p, r.env)
		if err != nil {
			if errors.KindOf(err) != "" {
				return err
			}
			return errors.EvaluationFailure(errors.PhaseLoad, fmt.Sprintf("compile %s", sourceName(p)), err)
		}
		program = compiled
	}

	root, ok := program.Component(p.Root)
	if !ok {
		return errors.NotFound(errors.PhaseLoad, "root component", p.Root)
	}

	r.program = program
	r.root = root
	r.rootName = p.Root
	r.initialized = true

	r.logger.Debug("interpreter initialized",
		zap.String("root", p.Root),
		zap.Int("packages", len(packages)))
	return nil
}

// RenderRoot evaluates the root component.
func (r *Runtime) RenderRoot(ctx context.Context) (Frame, error) {
	if err := r.ready(errors.PhaseRender); err != nil {
		return Frame{}, err
	}

	gen := r.session.BeginRender()
	v, err := r.root.Render(r.env)
	if err != nil {
		r.session.AbortRender()
		if errors.KindOf(err) == errors.KindHookOrder {
			return Frame{}, err
		}
		return Frame{}, errors.EvaluationFailure(errors.PhaseRender, fmt.Sprintf("render %s", r.rootName), err)
	}
	if err := r.session.EndRender(); err != nil {
		return Frame{}, err
	}
	if v == nil {
		v = value.Null{}
	}
	return Frame{Tree: r.marshaler.ToNative(v), Generation: gen}, nil
}

// Invoke calls the callback registered under id.
func (r *Runtime) Invoke(ctx context.Context, id string, event map[string]any) (any, error) {
	if err := r.ready(errors.PhaseDispatch); err != nil {
		return nil, err
	}
	var args []value.Value
	if event != nil {
		args = []value.Value{r.marshaler.ToInterpreter(event)}
	}
	result, err := r.session.Invoke(id, args)
	if err != nil {
		return nil, err
	}
	return r.marshaler.ToNative(result), nil
}

// Commit prunes closures of generations that can no longer fire.
func (r *Runtime) Commit(generation uint64) {
	r.session.Commit(generation)
}

// Close drops the session state.
func (r *Runtime) Close(context.Context) error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.session.Reset()
	if c, ok := r.program.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (r *Runtime) ready(phase errors.Phase) error {
	if r.closed {
		return errors.Closed(phase, "interpreter")
	}
	if !r.initialized {
		return errors.NotInitialized(phase, "interpreter")
	}
	return nil
}

func sourceName(p Payload) string {
	if p.Name != "" {
		return p.Name
	}
	return "source"
}
