package optimistic

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/wippyai/uibridge/dom"
)

type recorder struct {
	events []dom.Event
	err    error
	mu     sync.Mutex
}

func (r *recorder) HandleEvent(_ context.Context, evt dom.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newField(clock *ManualClock, rec *recorder) *Field {
	f := NewField("", WithClock(clock), WithDebounce(40*time.Millisecond))
	f.SetHandler(rec, "change")
	return f
}

func TestFieldDebouncedKeystrokes(t *testing.T) {
	clock := NewManualClock()
	rec := &recorder{}
	f := newField(clock, rec)

	node := dom.NewElement("input")
	node.Control = f

	err := node.Dispatch(context.Background(), dom.Event{Type: "change", Target: &dom.Target{Value: "hello"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.Value() != "hello" {
		t.Fatalf("local value = %q, want hello before debounce", f.Value())
	}
	if rec.count() != 0 {
		t.Fatal("interpreter called before debounce")
	}

	for _, v := range []string{"hello ", "hello w", "hello wo", "hello wor"} {
		clock.Advance(10 * time.Millisecond)
		f.Input(v)
	}
	if rec.count() != 0 {
		t.Fatal("interpreter called while typing")
	}

	clock.Advance(40 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("interpreter calls = %d, want 1", rec.count())
	}
	evt := rec.events[0]
	if evt.Target.Value != "hello wor" || !evt.HasSequence || evt.Sequence != 5 {
		t.Fatalf("sent %#v", evt)
	}
	if f.LastSent() != 5 {
		t.Fatalf("last sent = %d", f.LastSent())
	}
}

func TestFieldSequenceFiltering(t *testing.T) {
	clock := NewManualClock()
	f := newField(clock, &recorder{})

	f.Input("a")
	clock.Advance(time.Second)
	s1 := f.LastSent()

	f.Input("ab")
	s2 := f.LatestEdit()
	if s1 >= s2 {
		t.Fatalf("sequences not increasing: %d %d", s1, s2)
	}

	if f.Confirm("a", s1, true) {
		t.Fatal("stale confirmation accepted")
	}
	if f.Value() != "ab" || f.Stale() != 1 {
		t.Fatalf("value %q stale %d", f.Value(), f.Stale())
	}

	if !f.Confirm("AB", s2, true) {
		t.Fatal("current confirmation rejected")
	}
	if f.Value() != "AB" {
		t.Fatalf("value = %q", f.Value())
	}

	f.Input("ABC")
	if !f.Confirm("reset", f.LatestEdit()+10, true) {
		t.Fatal("newer confirmation rejected")
	}
}

func TestFieldUnmarkedUpdates(t *testing.T) {
	clock := NewManualClock()
	f := newField(clock, &recorder{})

	if !f.Confirm("server", 0, false) {
		t.Fatal("programmatic change rejected")
	}
	if f.Value() != "server" {
		t.Fatalf("value = %q", f.Value())
	}

	f.Input("server!")
	if f.Confirm("server", 0, false) {
		t.Fatal("unchanged value overrode an unsent edit")
	}
	if f.Value() != "server!" {
		t.Fatalf("value = %q", f.Value())
	}

	if !f.Confirm("cleared", 0, false) {
		t.Fatal("new programmatic value rejected")
	}
	if f.Value() != "cleared" {
		t.Fatalf("value = %q", f.Value())
	}
}

func TestFieldRejectedEditReverts(t *testing.T) {
	clock := NewManualClock()
	f := newField(clock, &recorder{})
	f.Confirm("abc", 0, false)

	f.Input("abcd")
	clock.Advance(time.Second)

	if !f.Confirm("abc", f.LastSent(), true) {
		t.Fatal("interpreter decision ignored")
	}
	if f.Value() != "abc" {
		t.Fatalf("value = %q, want the confirmed abc", f.Value())
	}
}

func TestFieldClose(t *testing.T) {
	clock := NewManualClock()
	rec := &recorder{}
	f := newField(clock, rec)

	f.Input("x")
	if clock.Pending() != 1 {
		t.Fatalf("pending timers = %d", clock.Pending())
	}
	f.Close()
	if clock.Pending() != 0 {
		t.Fatal("timer survived Close")
	}
	clock.Advance(time.Second)
	if rec.count() != 0 {
		t.Fatal("request sent after Close")
	}

	f.Input("y")
	if f.Value() != "x" {
		t.Fatal("closed field accepted input")
	}
}

func TestFieldFlushAndErrors(t *testing.T) {
	clock := NewManualClock()
	rec := &recorder{err: fmt.Errorf("callback gone")}
	var got error
	f := NewField("", WithClock(clock), WithErrorFunc(func(err error) { got = err }))
	f.SetHandler(rec, "input")
	f.SetTarget(dom.Target{Name: "q", Type: "search"})

	f.Input("go")
	f.Flush()
	if rec.count() != 1 {
		t.Fatalf("flush sent %d requests", rec.count())
	}
	if e := rec.events[0]; e.Type != "input" || e.Target.Name != "q" || e.Target.Value != "go" {
		t.Fatalf("event = %#v", e)
	}
	if got == nil {
		t.Fatal("handler failure not reported")
	}

	clock.Advance(time.Second)
	if rec.count() != 1 {
		t.Fatal("flushed edit sent twice")
	}
	f.Flush()
	if rec.count() != 1 {
		t.Fatal("flush without pending edit sent a request")
	}
}

func TestSharedSequencer(t *testing.T) {
	clock := NewManualClock()
	seq := &Sequencer{}
	a := NewField("", WithClock(clock), WithSequencer(seq))
	b := NewField("", WithClock(clock), WithSequencer(seq))

	a.Input("1")
	b.Input("2")
	a.Input("3")
	if a.LatestEdit() != 3 || b.LatestEdit() != 2 || seq.Current() != 3 {
		t.Fatalf("a=%d b=%d seq=%d", a.LatestEdit(), b.LatestEdit(), seq.Current())
	}
}

func TestStaleNeverOverwritesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("confirmations older than the latest edit never change the display", prop.ForAll(
		func(edits int, confirms []int) bool {
			clock := NewManualClock()
			f := NewField("", WithClock(clock))
			for i := 0; i < edits; i++ {
				f.Input(fmt.Sprintf("v%d", i))
			}
			latest := f.LatestEdit()
			for _, c := range confirms {
				seq := int64(c) % latest
				before := f.Value()
				f.Confirm(fmt.Sprintf("stale%d", c), seq, true)
				if f.Value() != before {
					return false
				}
			}
			return f.Value() == fmt.Sprintf("v%d", edits-1)
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
