package wasmguest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/wippyai/uibridge"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/interp"
)

// Guest is an interpreter running inside a WebAssembly module.
type Guest struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	library *interp.Library
	logger  *zap.Logger
	stdout  *zapio.Writer
	funcs   map[string]api.Function

	memoryLimit uint32

	mu          sync.Mutex
	initialized bool
	closed      bool
}

var _ interp.Interpreter = (*Guest)(nil)

// Option configures a Guest.
type Option func(*Guest)

// WithLogger sets the logger receiving guest output.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guest) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithLibrary sets the package registry used to resolve requirements.
// Resolved sources are handed to the guest on Init.
func WithLibrary(l *interp.Library) Option {
	return func(g *Guest) { g.library = l }
}

// WithMemoryLimitPages caps guest memory in 64KiB pages. 0 keeps the
// wazero default.
func WithMemoryLimitPages(pages uint32) Option {
	return func(g *Guest) { g.memoryLimit = pages }
}

// LoadFile reads a guest binary from disk and instantiates it.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Guest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read guest %s", path), err)
	}
	return New(ctx, data, opts...)
}

// New compiles and instantiates a guest module. It fails with a load error
// when the binary is invalid or lacks a required export.
func New(ctx context.Context, wasm []byte, opts ...Option) (*Guest, error) {
	g := &Guest{logger: Logger(), funcs: make(map[string]api.Function, len(requiredExports))}
	for _, opt := range opts {
		opt(g)
	}

	cfg := wazero.NewRuntimeConfig()
	if g.memoryLimit > 0 {
		cfg = cfg.WithMemoryLimitPages(g.memoryLimit)
	}
	g.runtime = wazero.NewRuntimeWithConfig(ctx, cfg)

	if err := g.instantiate(ctx, wasm); err != nil {
		_ = g.runtime.Close(ctx)
		return nil, err
	}
	return g, nil
}

func (g *Guest) instantiate(ctx context.Context, wasm []byte) error {
	compiled, err := g.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return errors.Load("compile guest", err)
	}

	exports := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := exports[name]; !ok {
			return errors.New(errors.PhaseLoad, errors.KindNotFound).
				Detail("guest does not export %s", name).
				Build()
		}
	}
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		return errors.New(errors.PhaseLoad, errors.KindNotFound).
			Detail("guest does not export %s", ExportMemory).
			Build()
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, g.runtime); err != nil {
		return errors.Load("instantiate WASI", err)
	}
	if _, err := g.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithFunc(g.hostLog).
		Export("log").
		Instantiate(ctx); err != nil {
		return errors.Load("instantiate host module", err)
	}

	g.stdout = &zapio.Writer{Log: g.logger.Named("guest"), Level: zapcore.InfoLevel}
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(g.stdout).
		WithStderr(g.stdout).
		WithStartFunctions("_initialize")

	mod, err := g.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Load("instantiate guest", err)
	}
	g.module = mod
	g.memory = mod.Memory()
	for _, name := range requiredExports {
		g.funcs[name] = mod.ExportedFunction(name)
	}

	g.logger.Debug("guest instantiated",
		zap.Int("exports", len(exports)),
		zap.Uint32("memory_bytes", g.memory.Size()))
	return nil
}

func (g *Guest) hostLog(_ context.Context, m api.Module, level, ptr, size uint32) {
	data, ok := m.Memory().Read(ptr, size)
	if !ok {
		g.logger.Warn("guest log out of bounds", zap.Uint32("ptr", ptr), zap.Uint32("len", size))
		return
	}
	msg := string(data)
	switch level {
	case LevelDebug:
		g.logger.Debug(msg, zap.String("source", "guest"))
	case LevelInfo:
		g.logger.Info(msg, zap.String("source", "guest"))
	case LevelWarn:
		g.logger.Warn(msg, zap.String("source", "guest"))
	default:
		g.logger.Error(msg, zap.String("source", "guest"))
	}
}

// Init resolves packages and sends the source to the guest.
func (g *Guest) Init(ctx context.Context, p interp.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	req := initRequest{ABI: uibridge.ABIVersion, Source: p.Source, Root: p.Root, Name: p.Name}
	if len(p.Packages) > 0 {
		if g.library == nil {
			name, _ := interp.ParseRequirement(p.Packages[0])
			return errors.NotFound(errors.PhaseLoad, "package", name)
		}
		resolved, err := g.library.ResolveAll(p.Packages)
		if err != nil {
			return err
		}
		for name, pkg := range resolved {
			ps := packageSource{Name: name, Source: pkg.Source}
			if pkg.Version != nil {
				ps.Version = pkg.Version.String()
			}
			req.Packages = append(req.Packages, ps)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.Closed(errors.PhaseLoad, "guest")
	}
	if _, err := g.call(ctx, ExportInit, req, ""); err != nil {
		return err
	}
	g.initialized = true
	return nil
}

// RenderRoot asks the guest to evaluate the root component.
func (g *Guest) RenderRoot(ctx context.Context) (interp.Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ready(errors.PhaseRender); err != nil {
		return interp.Frame{}, err
	}

	raw, err := g.call(ctx, ExportRender, struct{}{}, "")
	if err != nil {
		return interp.Frame{}, err
	}
	var reply renderReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return interp.Frame{}, errors.ParseFailed("render reply", err)
	}
	return interp.Frame{Tree: reply.Tree, Generation: reply.Generation}, nil
}

// Invoke calls the guest callback registered under id.
func (g *Guest) Invoke(ctx context.Context, id string, event map[string]any) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ready(errors.PhaseDispatch); err != nil {
		return nil, err
	}

	raw, err := g.call(ctx, ExportInvoke, invokeRequest{ID: id, Event: event}, id)
	if err != nil {
		return nil, err
	}
	var result any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, errors.ParseFailed("invoke reply", err)
		}
	}
	return result, nil
}

// Commit forwards the displayed generation to the guest.
func (g *Guest) Commit(generation uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ready(errors.PhaseRender) != nil {
		return
	}
	if _, err := g.call(context.Background(), ExportCommit, commitRequest{Generation: generation}, ""); err != nil {
		g.logger.Warn("guest commit failed", zap.Uint64("generation", generation), zap.Error(err))
	}
}

// Close releases the wazero runtime and everything instantiated in it.
func (g *Guest) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.stdout != nil {
		_ = g.stdout.Close()
	}
	return g.runtime.Close(ctx)
}

func (g *Guest) ready(phase errors.Phase) error {
	if g.closed {
		return errors.Closed(phase, "guest")
	}
	if !g.initialized {
		return errors.NotInitialized(phase, "guest")
	}
	return nil
}

// call writes req into guest memory, calls export and returns the ok part
// of the reply envelope.
func (g *Guest) call(ctx context.Context, export string, req any, id string) (json.RawMessage, error) {
	in, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGuest, errors.KindInvalidInput, err, "encode "+export+" request")
	}

	ptr, err := g.alloc(ctx, uint32(len(in)))
	if err != nil {
		return nil, err
	}
	if !g.memory.Write(ptr, in) {
		g.free(ctx, ptr, uint32(len(in)))
		return nil, errors.New(errors.PhaseGuest, errors.KindInvalidData).
			Detail("write out of bounds: offset=%d, length=%d", ptr, len(in)).
			Build()
	}

	res, err := g.funcs[export].Call(ctx, uint64(ptr), uint64(len(in)))
	g.free(ctx, ptr, uint32(len(in)))
	if err != nil {
		return nil, errors.EvaluationFailure(errors.PhaseGuest, export, err)
	}
	if len(res) != 1 {
		return nil, errors.New(errors.PhaseGuest, errors.KindTypeMismatch).
			Detail("%s returned %d values", export, len(res)).
			Build()
	}

	outPtr, outLen := unpack(res[0])
	view, ok := g.memory.Read(outPtr, outLen)
	if !ok {
		return nil, errors.New(errors.PhaseGuest, errors.KindInvalidData).
			Detail("read out of bounds: offset=%d, length=%d", outPtr, outLen).
			Build()
	}
	out := make([]byte, len(view))
	copy(out, view)
	g.free(ctx, outPtr, outLen)

	var env envelope
	if err := json.Unmarshal(out, &env); err != nil {
		return nil, errors.ParseFailed(export+" reply", err)
	}
	if env.Error != nil {
		return nil, env.Error.toError(export, id)
	}
	return env.OK, nil
}

func (g *Guest) alloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := g.funcs[ExportAlloc].Call(ctx, uint64(size))
	if err != nil {
		return 0, errors.EvaluationFailure(errors.PhaseGuest, ExportAlloc, err)
	}
	if len(res) != 1 {
		return 0, errors.New(errors.PhaseGuest, errors.KindTypeMismatch).
			Detail("%s returned %d values", ExportAlloc, len(res)).
			Build()
	}
	return uint32(res[0]), nil
}

func (g *Guest) free(ctx context.Context, ptr, size uint32) {
	if ptr == 0 {
		return
	}
	if _, err := g.funcs[ExportFree].Call(ctx, uint64(ptr), uint64(size)); err != nil {
		g.logger.Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}
