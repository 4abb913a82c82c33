package script

import (
	"context"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/uibridge/element"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/interp"
	"github.com/wippyai/uibridge/value"
)

// Tags lists the predeclared tag builders.
var Tags = []string{
	"a", "button", "div", "form", "h1", "h2", "h3", "img", "input", "label",
	"li", "ol", "option", "p", "pre", "section", "select", "span", "textarea", "ul",
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Frontend compiles Starlark component source.
type Frontend struct {
	logger   *zap.Logger
	maxSteps uint64
}

var _ interp.Frontend = (*Frontend)(nil)

// Option configures a Frontend.
type Option func(*Frontend)

// WithLogger sets the logger receiving print output and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(f *Frontend) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMaxSteps bounds the number of computation steps of every call.
// Zero means no bound.
func WithMaxSteps(n uint64) Option {
	return func(f *Frontend) { f.maxSteps = n }
}

// New creates a Starlark frontend.
func New(opts ...Option) *Frontend {
	f := &Frontend{logger: Logger()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Frontend) Name() string { return "starlark" }

// Compile executes the source once and returns its top-level functions as
// components.
func (f *Frontend) Compile(ctx context.Context, p interp.Payload, env *interp.Env) (interp.Program, error) {
	name := p.Name
	if name == "" {
		name = "main.star"
	}

	prog := &program{
		env:     env,
		logger:  f.logger,
		loaded:  make(map[string]*loadEntry),
		maxStep: f.maxSteps,
	}
	prog.thread = prog.newThread(name)
	prog.predeclared = prog.builtins()

	globals, err := starlark.ExecFileOptions(fileOptions, prog.thread, name, p.Source, prog.predeclared)
	if err != nil {
		return nil, scriptError(name, err)
	}
	prog.globals = globals
	f.logger.Debug("compiled script",
		zap.String("file", name),
		zap.Int("globals", len(globals)))
	return prog, nil
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

type program struct {
	env         *interp.Env
	logger      *zap.Logger
	thread      *starlark.Thread
	globals     starlark.StringDict
	predeclared starlark.StringDict
	loaded      map[string]*loadEntry
	maxStep     uint64
}

func (p *program) newThread(name string) *starlark.Thread {
	t := &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			p.logger.Info(msg, zap.String("source", t.Name))
		},
		Load: p.load,
	}
	if p.maxStep > 0 {
		t.SetLocal(maxStepsKey, p.maxStep)
		t.SetMaxExecutionSteps(p.maxStep)
	}
	return t
}

const maxStepsKey = "uibridge.max_steps"

// refill grants the thread a fresh step budget before each entry. Steps
// are counted per thread, so the limit is raised from the current count.
func refill(t *starlark.Thread) {
	if t == nil {
		return
	}
	budget, _ := t.Local(maxStepsKey).(uint64)
	if budget == 0 {
		return
	}
	t.Uncancel()
	t.SetMaxExecutionSteps(t.ExecutionSteps() + budget)
}

// load serves load() from the packages resolved for the payload.
func (p *program) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	name := strings.TrimSuffix(module, ".star")
	if e, ok := p.loaded[name]; ok {
		if e == nil {
			return nil, fmt.Errorf("cycle in load graph at %s", module)
		}
		return e.globals, e.err
	}

	pkg, ok := p.env.Packages[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "package", name)
	}

	p.loaded[name] = nil
	thread := p.newThread(module)
	globals, err := starlark.ExecFileOptions(fileOptions, thread, module, pkg.Source, p.predeclared)
	for k, v := range pkg.Exports {
		if globals == nil {
			globals = starlark.StringDict{}
		}
		globals[k] = toStarlark(p.thread, v)
	}
	p.loaded[name] = &loadEntry{globals: globals, err: err}
	return globals, err
}

func (p *program) Component(name string) (interp.Component, bool) {
	v, ok := p.globals[name]
	if !ok {
		return nil, false
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, false
	}
	return &component{prog: p, fn: fn}, true
}

type component struct {
	prog *program
	fn   starlark.Callable
}

func (c *component) Render(*interp.Env) (value.Value, error) {
	refill(c.prog.thread)
	res, err := starlark.Call(c.prog.thread, c.fn, nil, nil)
	if err != nil {
		return nil, scriptError(c.prog.thread.Name, err)
	}
	return fromStarlark(c.prog.thread, res), nil
}

// builtins returns the predeclared environment.
func (p *program) builtins() starlark.StringDict {
	d := starlark.StringDict{
		"use_state": starlark.NewBuiltin("use_state", p.useState),
		"use_ref":   starlark.NewBuiltin("use_ref", p.useRef),
		"h":         starlark.NewBuiltin("h", p.h),
		"fragment":  starlark.NewBuiltin("fragment", p.fragment),
	}
	for _, tag := range Tags {
		d[tag] = starlark.NewBuiltin(tag, p.tagBuilder(tag))
	}
	return d
}

func (p *program) useState(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var initial starlark.Value = starlark.None
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &initial); err != nil {
		return nil, err
	}
	if !p.env.Session.Rendering() {
		return nil, fmt.Errorf("%s: called outside of a component render", b.Name())
	}

	st := p.env.Session.UseState(fromStarlark(thread, initial))
	setter := starlark.NewBuiltin("set_state", func(thread *starlark.Thread, sb *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var next starlark.Value
		if err := starlark.UnpackPositionalArgs(sb.Name(), args, kwargs, 1, &next); err != nil {
			return nil, err
		}
		if err := st.Set(fromStarlark(thread, next)); err != nil {
			return nil, err
		}
		return starlark.None, nil
	})
	return starlark.Tuple{toStarlark(thread, st.Get()), setter}, nil
}

func (p *program) useRef(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var initial starlark.Value = starlark.None
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &initial); err != nil {
		return nil, err
	}
	if !p.env.Session.Rendering() {
		return nil, fmt.Errorf("%s: called outside of a component render", b.Name())
	}

	ref := p.env.Session.UseRef(fromStarlark(thread, initial))
	get := starlark.NewBuiltin("get", func(thread *starlark.Thread, _ *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return toStarlark(thread, ref.Get()), nil
	})
	set := starlark.NewBuiltin("set", func(thread *starlark.Thread, sb *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(sb.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		ref.Set(fromStarlark(thread, v))
		return starlark.None, nil
	})
	return starlark.Tuple{get, set}, nil
}

// h(tag, *children, **props)
func (p *program) h(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing tag", b.Name())
	}
	tag, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: tag must be a string, got %s", b.Name(), args[0].Type())
	}
	return p.build(thread, tag, args[1:], kwargs)
}

func (p *program) tagBuilder(tag string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return p.build(thread, tag, args, kwargs)
	}
}

func (p *program) build(thread *starlark.Thread, tag string, children starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	args := make([]element.Arg, 0, len(children)+len(kwargs))
	for _, kv := range kwargs {
		name := string(kv[0].(starlark.String))
		args = append(args, element.Prop(name, fromStarlark(thread, kv[1])))
	}
	for _, c := range children {
		args = append(args, element.Child(fromStarlark(thread, c)))
	}
	el, err := p.env.Elements.Element(tag, args...)
	if err != nil {
		return nil, err
	}
	return &Element{list: el}, nil
}

func (p *program) fragment(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	children := make([]value.Value, len(args))
	for i, a := range args {
		children[i] = fromStarlark(thread, a)
	}
	frag, err := p.env.Elements.Fragment(children...)
	if err != nil {
		return nil, err
	}
	return toStarlark(thread, frag), nil
}

func scriptError(name string, err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return errors.New(errors.PhaseRender, errors.KindEvaluationFailure).
			Detail("%s: %s", name, evalErr.Msg).
			Value(evalErr.Backtrace()).
			Cause(err).
			Build()
	}
	if _, ok := err.(syntax.Error); ok {
		return errors.ParseFailed(name, err)
	}
	if errors.KindOf(err) != "" {
		return err
	}
	return errors.Wrap(errors.PhaseLoad, errors.KindEvaluationFailure, err, name)
}
