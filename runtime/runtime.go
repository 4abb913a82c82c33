package runtime

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/config"
	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/factory"
	"github.com/wippyai/uibridge/interp"
	"github.com/wippyai/uibridge/optimistic"
	"github.com/wippyai/uibridge/scheduler"
	"github.com/wippyai/uibridge/script"
	"github.com/wippyai/uibridge/session"
	"github.com/wippyai/uibridge/telemetry"
	"github.com/wippyai/uibridge/wasmguest"
)

// Runtime is one bridge: an interpreter rendering into a mount point,
// serialized by a scheduler. Its methods are safe for concurrent use.
type Runtime struct {
	cfg         config.Config
	interp      interp.Interpreter
	mount       *dom.Mount
	sched       *scheduler.Scheduler
	library     *interp.Library
	clock       optimistic.Clock
	instruments *telemetry.Instruments
	logger      *zap.Logger

	mu     sync.Mutex
	loaded bool
	closed bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger handed to every component of the bridge.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithInterpreter bypasses backend selection.
func WithInterpreter(in interp.Interpreter) Option {
	return func(r *Runtime) { r.interp = in }
}

// WithLibrary sets the preinstalled packages payloads may require.
func WithLibrary(l *interp.Library) Option {
	return func(r *Runtime) { r.library = l }
}

// WithClock sets the clock driving input debounce timers.
func WithClock(c optimistic.Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(r *Runtime) { r.instruments = i }
}

// New wires an interpreter, a mount and a scheduler from cfg. Nothing is
// rendered until Load and Start.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{cfg: cfg, logger: Logger()}
	for _, opt := range opts {
		opt(r)
	}

	// State writes outside a render or an invocation reach the scheduler
	// through this hook once it exists.
	var sched *scheduler.Scheduler
	onChange := func() {
		if sched != nil {
			sched.RequestRerender()
		}
	}

	if r.interp == nil {
		in, err := r.newInterpreter(ctx, onChange)
		if err != nil {
			return nil, err
		}
		r.interp = in
	}

	fopts := []factory.Option{factory.WithDebounce(cfg.Input.Debounce)}
	if r.clock != nil {
		fopts = append(fopts, factory.WithClock(r.clock))
	}
	sopts := []scheduler.Option{
		scheduler.WithLogger(r.logger),
		scheduler.WithContext(context.WithoutCancel(ctx)),
		scheduler.WithFactoryOptions(fopts...),
	}
	if r.instruments != nil {
		sopts = append(sopts, scheduler.WithInstruments(r.instruments))
	}

	r.mount = dom.NewMount(cfg.Mount)
	sched = scheduler.New(r.interp, r.mount, sopts...)
	r.sched = sched

	r.logger.Debug("bridge created",
		zap.String("mount", cfg.Mount),
		zap.String("backend", cfg.Interp.Backend))
	return r, nil
}

func (r *Runtime) newInterpreter(ctx context.Context, onChange func()) (interp.Interpreter, error) {
	switch r.cfg.Interp.Backend {
	case config.BackendWasm:
		gopts := []wasmguest.Option{wasmguest.WithLogger(r.logger)}
		if r.library != nil {
			gopts = append(gopts, wasmguest.WithLibrary(r.library))
		}
		if r.cfg.Interp.MemoryLimitPages > 0 {
			gopts = append(gopts, wasmguest.WithMemoryLimitPages(r.cfg.Interp.MemoryLimitPages))
		}
		return wasmguest.LoadFile(ctx, r.cfg.Interp.WasmPath, gopts...)

	case config.BackendStarlark, "":
		sopts := []script.Option{script.WithLogger(r.logger)}
		if r.cfg.Interp.MaxSteps > 0 {
			sopts = append(sopts, script.WithMaxSteps(r.cfg.Interp.MaxSteps))
		}
		iopts := []interp.Option{
			interp.WithFrontend(script.New(sopts...)),
			interp.WithLogger(r.logger),
			interp.WithSessionOptions(
				session.WithStrictHooks(r.cfg.Render.StrictHooks),
				session.WithRetainGenerations(r.cfg.Render.RetainGenerations),
				session.WithChangeFunc(onChange),
			),
		}
		if r.library != nil {
			iopts = append(iopts, interp.WithLibrary(r.library))
		}
		return interp.NewRuntime(iopts...), nil
	}
	return nil, errors.Unsupported(errors.PhaseConfig, "backend "+r.cfg.Interp.Backend)
}

// Config returns the configuration the bridge was built from.
func (r *Runtime) Config() config.Config { return r.cfg }

// Mount returns the mount point.
func (r *Runtime) Mount() *dom.Mount { return r.mount }

// Scheduler returns the render scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.sched }

// Interpreter returns the interpreter in use.
func (r *Runtime) Interpreter() interp.Interpreter { return r.interp }

// Load initializes the interpreter with p. A failure is also shown on the
// mount so the page never stays blank.
func (r *Runtime) Load(ctx context.Context, p interp.Payload) error {
	if err := r.check(); err != nil {
		return err
	}
	err := r.sched.Do(ctx, func(in interp.Interpreter) error {
		return in.Init(ctx, p)
	})
	if err != nil {
		r.logger.Error("initialization failed", zap.String("root", p.Root), zap.Error(err))
		r.mount.Fail(err)
		return err
	}

	r.mu.Lock()
	r.loaded = true
	r.mu.Unlock()
	r.logger.Info("payload loaded", zap.String("root", p.Root), zap.Strings("packages", p.Packages))
	return nil
}

// Start runs the first render and waits for it. Render failures are shown
// on the mount and returned.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	r.mu.Lock()
	loaded := r.loaded
	r.mu.Unlock()
	if !loaded {
		return errors.NotInitialized(errors.PhaseRender, "bridge")
	}
	if err := r.sched.Render(ctx); err != nil {
		return err
	}
	return r.mount.Err()
}

// Run is Load followed by Start.
func (r *Runtime) Run(ctx context.Context, p interp.Payload) error {
	if err := r.Load(ctx, p); err != nil {
		return err
	}
	return r.Start(ctx)
}

// Dispatch delivers evt to the displayed element with the given id.
func (r *Runtime) Dispatch(ctx context.Context, id string, evt dom.Event) error {
	if err := r.check(); err != nil {
		return err
	}
	root := r.mount.Root()
	if root == nil {
		return errors.NotInitialized(errors.PhaseDispatch, "mount "+r.mount.ID())
	}
	node := root.FindByID(id)
	if node == nil {
		return errors.NotFound(errors.PhaseDispatch, "element", id)
	}
	return node.Dispatch(ctx, evt)
}

// Flush sends pending input edits without waiting for their debounce.
func (r *Runtime) Flush() { r.sched.Factory().Flush() }

// Wait blocks until no render is running or queued.
func (r *Runtime) Wait(ctx context.Context) error { return r.sched.Wait(ctx) }

// WriteHTML writes the displayed tree as HTML.
func (r *Runtime) WriteHTML(w io.Writer) error { return dom.RenderMountHTML(w, r.mount) }

// Close stops input timers and closes the interpreter. It is safe to call
// more than once.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.sched.Close()
	if err := r.sched.Wait(ctx); err != nil {
		r.logger.Warn("closing with a render in flight", zap.Error(err))
	}
	// Invocations already inside the interpreter finish first.
	return r.sched.Do(ctx, func(in interp.Interpreter) error {
		return in.Close(ctx)
	})
}

func (r *Runtime) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Closed(errors.PhaseLoad, "bridge")
	}
	return nil
}
