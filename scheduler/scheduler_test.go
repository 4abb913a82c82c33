package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/uibridge/dom"
	"github.com/wippyai/uibridge/errors"
	"github.com/wippyai/uibridge/interp"
)

// stubInterp renders a paragraph showing the render count. When block is
// set, every render waits for a value on it.
type stubInterp struct {
	entered chan struct{}
	block   chan struct{}
	fail    error

	mu      sync.Mutex
	active  int
	overlap bool
	renders int
	commits []uint64
}

func (s *stubInterp) enter() {
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.overlap = true
	}
	s.mu.Unlock()
}

func (s *stubInterp) leave() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

func (s *stubInterp) Init(context.Context, interp.Payload) error { return nil }

func (s *stubInterp) RenderRoot(context.Context) (interp.Frame, error) {
	s.enter()
	defer s.leave()
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	s.renders++
	n := s.renders
	s.mu.Unlock()

	if s.fail != nil {
		return interp.Frame{}, s.fail
	}
	tree := map[string]any{
		"tag":      "p",
		"props":    map[string]any{"id": "out"},
		"children": []any{fmt.Sprintf("render %d", n)},
	}
	return interp.Frame{Tree: tree, Generation: uint64(n)}, nil
}

func (s *stubInterp) Invoke(_ context.Context, id string, _ map[string]any) (any, error) {
	s.enter()
	defer s.leave()
	time.Sleep(time.Millisecond)
	if id == "missing" {
		return nil, errors.CallbackNotFound(id)
	}
	return map[string]any{"__state_changed": true, "value": nil}, nil
}

func (s *stubInterp) Commit(gen uint64) {
	s.mu.Lock()
	s.commits = append(s.commits, gen)
	s.mu.Unlock()
}

func (s *stubInterp) Close(context.Context) error { return nil }

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestRenderCommits(t *testing.T) {
	in := &stubInterp{}
	s := New(in, dom.NewMount("app"))

	if err := s.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	root := s.Mount().Root()
	if root == nil || root.TextContent() != "render 1" {
		t.Fatalf("root = %+v", root)
	}
	if len(in.commits) != 1 || in.commits[0] != 1 {
		t.Errorf("commits = %v", in.commits)
	}
	if st, queued := s.State(); st != Idle || queued {
		t.Errorf("state = %s queued=%v", st, queued)
	}
}

func TestCoalescing(t *testing.T) {
	in := &stubInterp{entered: make(chan struct{}, 8), block: make(chan struct{})}
	s := New(in, dom.NewMount("app"))

	s.RequestRerender()
	<-in.entered

	s.RequestRerender()
	s.RequestRerender()
	if st, queued := s.State(); st != Rendering || !queued {
		t.Fatalf("state = %s queued=%v", st, queued)
	}

	in.block <- struct{}{}
	<-in.entered
	in.block <- struct{}{}
	waitIdle(t, s)

	if got := s.Evaluations(); got != 2 {
		t.Fatalf("evaluations = %d, want 2", got)
	}
	if got := s.Mount().Root().TextContent(); got != "render 2" {
		t.Errorf("displayed %q", got)
	}
}

func TestFailureReturnsToIdle(t *testing.T) {
	boom := errors.EvaluationFailure(errors.PhaseRender, "render App", fmt.Errorf("object 'x' not found"))
	in := &stubInterp{fail: boom}
	m := dom.NewMount("app")
	s := New(in, m)

	if err := s.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(m.Err(), errors.ErrEvaluationFailure) {
		t.Fatalf("mount error = %v", m.Err())
	}
	if st, _ := s.State(); st != Idle {
		t.Fatalf("state = %s", st)
	}
	if root := m.Root(); root == nil || root.Attrs["className"] != dom.ErrorClass {
		t.Errorf("fallback not shown: %+v", root)
	}

	in.fail = nil
	if err := s.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Err() != nil {
		t.Errorf("error kept after successful render: %v", m.Err())
	}
}

type panicInterp struct{ stubInterp }

func (p *panicInterp) RenderRoot(context.Context) (interp.Frame, error) { panic("boom") }

func TestPanicIsContained(t *testing.T) {
	m := dom.NewMount("app")
	s := New(&panicInterp{}, m)
	if err := s.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(m.Err(), errors.ErrEvaluationFailure) {
		t.Fatalf("mount error = %v", m.Err())
	}
	if _, err := s.Invoke(context.Background(), "cb", nil); err != nil {
		t.Fatalf("gate left held: %v", err)
	}
}

func TestSerializedEntry(t *testing.T) {
	in := &stubInterp{}
	s := New(in, dom.NewMount("app"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Invoke(ctx, "cb", nil); err != nil {
				t.Error(err)
			}
			s.RequestRerender()
		}()
	}
	wg.Wait()
	waitIdle(t, s)

	if in.overlap {
		t.Fatal("interpreter entered concurrently")
	}
	if n := s.Evaluations(); n < 1 || n > 8 {
		t.Errorf("evaluations = %d", n)
	}
}

func TestInvokeFailureReleasesGate(t *testing.T) {
	s := New(&stubInterp{}, dom.NewMount("app"))
	ctx := context.Background()

	_, err := s.Invoke(ctx, "missing", nil)
	if !errors.Is(err, errors.ErrCallbackNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Render(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestClosedRejectsWork(t *testing.T) {
	in := &stubInterp{}
	s := New(in, dom.NewMount("app"))
	ctx := context.Background()
	if err := s.Render(ctx); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := s.Invoke(ctx, "cb", nil); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("invoke after close = %v", err)
	}
	if err := s.Render(ctx); err != nil {
		t.Fatal(err)
	}
	if n := s.Evaluations(); n != 1 {
		t.Errorf("evaluations = %d, want 1", n)
	}
	called := false
	if err := s.Do(ctx, func(interp.Interpreter) error { called = true; return nil }); err != nil || !called {
		t.Errorf("Do after close: called=%v err=%v", called, err)
	}
}

func TestInvokeHonorsContext(t *testing.T) {
	in := &stubInterp{entered: make(chan struct{}, 1), block: make(chan struct{})}
	s := New(in, dom.NewMount("app"))
	s.RequestRerender()
	<-in.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Invoke(ctx, "cb", nil); err != context.DeadlineExceeded {
		t.Errorf("err = %v", err)
	}

	in.block <- struct{}{}
	waitIdle(t, s)
}

func TestClickThroughMount(t *testing.T) {
	in := &clickInterp{}
	s := New(in, dom.NewMount("app"))
	ctx := context.Background()
	if err := s.Render(ctx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		btn := s.Mount().Root().FindByID("inc")
		if err := btn.Dispatch(ctx, dom.Event{Type: "click"}); err != nil {
			t.Fatal(err)
		}
		waitIdle(t, s)
	}
	if got := s.Mount().Root().TextContent(); got != "3" {
		t.Errorf("displayed %q", got)
	}
}

// clickInterp is a counter whose button increments the displayed count.
type clickInterp struct {
	count int
	gen   uint64
}

func (c *clickInterp) Init(context.Context, interp.Payload) error { return nil }

func (c *clickInterp) RenderRoot(context.Context) (interp.Frame, error) {
	c.gen++
	return interp.Frame{Generation: c.gen, Tree: map[string]any{
		"tag": "button",
		"props": map[string]any{
			"id":       "inc",
			"on_click": map[string]any{"callback_id": "cb_1_inc"},
		},
		"children": []any{fmt.Sprint(c.count)},
	}}, nil
}

func (c *clickInterp) Invoke(_ context.Context, id string, _ map[string]any) (any, error) {
	if id != "cb_1_inc" {
		return nil, errors.CallbackNotFound(id)
	}
	c.count++
	return map[string]any{"__state_changed": true, "value": nil}, nil
}

func (c *clickInterp) Commit(uint64)               {}
func (c *clickInterp) Close(context.Context) error { return nil }
