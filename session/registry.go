package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wippyai/uibridge/value"
)

// EventType identifies a registry lifecycle notification.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventPruned
	EventInvoked
	EventReset
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventPruned:
		return "pruned"
	case EventInvoked:
		return "invoked"
	case EventReset:
		return "reset"
	}
	return "unknown"
}

// Event describes a registry lifecycle change.
type Event struct {
	ID         string
	Generation uint64
	Type       EventType
}

// Observer receives registry lifecycle events.
type Observer interface {
	OnRegistryEvent(Event)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnRegistryEvent(e Event) { f(e) }

type subscription struct {
	o  Observer
	id int
}

type entry struct {
	fn         value.Func
	generation uint64
}

// Registry is a flat id -> closure table scoped to one session.
type Registry struct {
	entries   map[string]entry
	salt      func() string
	observers []subscription
	counter   uint64
	nextObs   int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

// NewRegistry creates an empty registry. Ids are salted with a random
// suffix so ids from different sessions never collide.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		salt:    randomSalt,
	}
}

func randomSalt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Register stores fn and returns its callback id.
func (r *Registry) Register(fn value.Func, generation uint64) string {
	r.mu.Lock()
	r.counter++
	id := fmt.Sprintf("cb_%d_%s", r.counter, r.salt())
	r.entries[id] = entry{fn: fn, generation: generation}
	r.mu.Unlock()

	r.notify(Event{Type: EventRegistered, ID: id, Generation: generation})
	return id
}

// Lookup returns the closure registered under id.
func (r *Registry) Lookup(id string) (value.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.fn, ok
}

// Remove drops a single entry.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		r.notify(Event{Type: EventPruned, ID: id, Generation: e.generation})
	}
	return ok
}

// Prune drops every entry registered before the given generation and returns
// the number of entries removed.
func (r *Registry) Prune(before uint64) int {
	var dropped []Event
	r.mu.Lock()
	for id, e := range r.entries {
		if e.generation < before {
			delete(r.entries, id)
			dropped = append(dropped, Event{Type: EventPruned, ID: id, Generation: e.generation})
		}
	}
	r.mu.Unlock()

	sort.Slice(dropped, func(i, j int) bool { return dropped[i].ID < dropped[j].ID })
	for _, e := range dropped {
		r.notify(e)
	}
	return len(dropped)
}

// Reset drops every entry. The id counter keeps running.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.entries = make(map[string]entry)
	r.mu.Unlock()

	r.notify(Event{Type: EventReset})
}

// Len returns the number of registered closures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.nextObs++
	id := r.nextObs
	r.observers = append(r.observers, subscription{id: id, o: o})
	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		for i, sub := range r.observers {
			if sub.id == id {
				r.observers = append(r.observers[:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, sub := range r.observers {
		sub.o.OnRegistryEvent(e)
	}
}
