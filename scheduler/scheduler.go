// Package scheduler serializes every entry into the interpreter.
//
// A Scheduler owns the mount's dispatcher and factory. Renders and callback
// invocations take the same gate, so the interpreter never runs on two
// goroutines at once. Re-render requests never block: a request while a
// render is running sets the queued flag, and any number of such requests
// fold into one follow-up render.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/uibridge/dispatch"
	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/factory"
	"github.com/wippyai/uibridge/interp"
	"github.com/wippyai/uibridge/telemetry"
)

// State is the render state.
type State int

const (
	Idle State = iota
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Scheduler drives renders of one mount.
type Scheduler struct {
	interp      interp.Interpreter
	mount       *dom.Mount
	dispatcher  *dispatch.Dispatcher
	factory     *factory.Factory
	logger      *zap.Logger
	instruments *telemetry.Instruments
	ctx         context.Context
	gate        chan struct{}
	idle        chan struct{}

	factoryOpts []factory.Option
	evaluations atomic.Int64

	mu     sync.Mutex
	state  State
	queued bool
	closed bool
}

var (
	_ dispatch.Invoker    = (*Scheduler)(nil)
	_ dispatch.Rerenderer = (*Scheduler)(nil)
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger. The dispatcher and the factory
// log through it as well.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(s *Scheduler) { s.instruments = i }
}

// WithContext sets the base context of renders started by RequestRerender.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithFactoryOptions configures the component factory.
func WithFactoryOptions(opts ...factory.Option) Option {
	return func(s *Scheduler) { s.factoryOpts = append(s.factoryOpts, opts...) }
}

// New creates an idle scheduler rendering in into mount.
func New(in interp.Interpreter, mount *dom.Mount, opts ...Option) *Scheduler {
	s := &Scheduler{
		interp: in,
		mount:  mount,
		logger: Logger(),
		ctx:    context.Background(),
		gate:   make(chan struct{}, 1),
		idle:   make(chan struct{}),
	}
	close(s.idle)
	for _, opt := range opts {
		opt(s)
	}
	if s.instruments == nil {
		if ins, err := telemetry.New(); err == nil {
			s.instruments = ins
		} else {
			s.logger.Warn("telemetry disabled", zap.Error(err))
		}
	}

	s.dispatcher = dispatch.New(s, s, dispatch.WithLogger(s.logger))
	fopts := append([]factory.Option{
		factory.WithLogger(s.logger),
		factory.WithContext(s.ctx),
		factory.WithErrorFunc(s.reportInputError),
	}, s.factoryOpts...)
	s.factory = factory.New(s.dispatcher, fopts...)
	return s
}

// Mount returns the mount point.
func (s *Scheduler) Mount() *dom.Mount { return s.mount }

// Factory returns the component factory.
func (s *Scheduler) Factory() *factory.Factory { return s.factory }

// Dispatcher returns the dispatcher wrapping callback references.
func (s *Scheduler) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// State returns the render state and whether a render is queued.
func (s *Scheduler) State() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.queued
}

// Evaluations returns the number of root evaluations started so far.
func (s *Scheduler) Evaluations() int64 { return s.evaluations.Load() }

// RequestRerender starts a render when idle and queues one otherwise.
// It never blocks.
func (s *Scheduler) RequestRerender() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("render dropped after close")
		return
	}
	if s.state == Rendering {
		coalesced := s.queued
		s.queued = true
		s.mu.Unlock()
		if coalesced && s.instruments != nil {
			s.instruments.Coalesced(s.ctx)
		}
		s.logger.Debug("render queued", zap.Bool("coalesced", coalesced))
		return
	}
	s.state = Rendering
	s.idle = make(chan struct{})
	s.mu.Unlock()

	go s.loop()
}

// Render requests a render and waits until the scheduler is idle again.
func (s *Scheduler) Render(ctx context.Context) error {
	s.RequestRerender()
	return s.Wait(ctx)
}

// Wait blocks until no render is running or queued.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	for {
		s.evaluate()

		s.mu.Lock()
		if s.queued {
			s.queued = false
			s.mu.Unlock()
			continue
		}
		s.state = Idle
		close(s.idle)
		s.mu.Unlock()
		return
	}
}

// evaluate runs one render: root evaluation, tree construction and commit.
// Failures are shown on the mount; they never leave the gate held.
func (s *Scheduler) evaluate() {
	if err := s.acquire(s.ctx); err != nil {
		s.logger.Debug("render skipped", zap.Error(err))
		return
	}
	defer s.release()

	n := s.evaluations.Add(1)
	ctx, done := s.track(s.ctx, telemetry.OpRender)

	err := s.render(ctx)
	done(err)
	if err != nil {
		s.logger.Error("render failed", zap.Int64("evaluation", n), zap.Error(err))
		s.mount.Fail(err)
	}
}

func (s *Scheduler) render(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.EvaluationFailure(errors.PhaseRender, "render", fmt.Errorf("panic: %v", r))
		}
	}()

	frame, err := s.interp.RenderRoot(ctx)
	if err != nil {
		return err
	}
	root, err := s.factory.Build(frame.Tree)
	if err != nil {
		return err
	}
	s.mount.Commit(root)
	s.interp.Commit(frame.Generation)
	s.logger.Debug("committed", zap.Uint64("generation", frame.Generation))
	return nil
}

// Invoke calls a callback through the gate.
func (s *Scheduler) Invoke(ctx context.Context, id string, event map[string]any) (any, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	if s.isClosed() {
		return nil, errors.Closed(errors.PhaseDispatch, "scheduler")
	}

	ctx, done := s.track(ctx, telemetry.OpInvoke, telemetry.AttrCallbackID.String(id))
	res, err := s.interp.Invoke(ctx, id, event)
	done(err)
	return res, err
}

// Do runs fn with exclusive access to the interpreter.
func (s *Scheduler) Do(ctx context.Context, fn func(interp.Interpreter) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn(s.interp)
}

func (s *Scheduler) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release() { <-s.gate }

func (s *Scheduler) track(ctx context.Context, op string, attrs ...telemetry.Attr) (context.Context, func(error)) {
	if s.instruments == nil {
		return ctx, func(error) {}
	}
	return s.instruments.Track(ctx, op, attrs...)
}

func (s *Scheduler) reportInputError(err error) {
	s.logger.Warn("input confirmation failed", zap.Error(err))
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting renders and callback invocations and closes the
// factory's fields. A render already running finishes; Do still works so
// the caller can close the interpreter through the gate.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.factory.Close()
}
