package dom

import (
	"sync"
)

// FallbackMessage is shown in place of the tree after a failure.
const FallbackMessage = "This component failed to render."

// ErrorClass is the class name of the error fallback container.
const ErrorClass = "uibridge-error"

// Snapshot is what a mount displays after a commit or failure.
type Snapshot struct {
	Root       *Node
	Err        error
	Generation uint64
}

// Mount is the designated mount point of one root component.
type Mount struct {
	root       *Node
	err        error
	observers  []mountObserver
	id         string
	generation uint64
	nextObs    int
	mu         sync.RWMutex
}

type mountObserver struct {
	fn func(Snapshot)
	id int
}

// NewMount creates an empty mount point.
func NewMount(id string) *Mount {
	return &Mount{id: id}
}

// ID returns the mount point id.
func (m *Mount) ID() string { return m.id }

// Commit replaces the displayed tree and clears any previous failure.
func (m *Mount) Commit(root *Node) uint64 {
	m.mu.Lock()
	m.root = root
	m.err = nil
	m.generation++
	snap := Snapshot{Root: root, Generation: m.generation}
	m.mu.Unlock()

	m.notify(snap)
	return snap.Generation
}

// Fail replaces the displayed tree with the error fallback.
func (m *Mount) Fail(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.root = ErrorNode(err)
	m.err = err
	m.generation++
	snap := Snapshot{Root: m.root, Err: err, Generation: m.generation}
	m.mu.Unlock()

	m.notify(snap)
}

// Root returns the displayed tree, nil before the first commit.
func (m *Mount) Root() *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.root
}

// Err returns the failure currently displayed, if any.
func (m *Mount) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Generation counts commits and failures.
func (m *Mount) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Snapshot returns the current display state.
func (m *Mount) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Root: m.root, Err: m.err, Generation: m.generation}
}

// Subscribe registers fn for every commit and failure and returns a
// function that removes it.
func (m *Mount) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextObs++
	id := m.nextObs
	m.observers = append(m.observers, mountObserver{fn: fn, id: id})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

func (m *Mount) notify(s Snapshot) {
	m.mu.RLock()
	observers := make([]mountObserver, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, o := range observers {
		o.fn(s)
	}
}

// ErrorNode builds the fallback tree: the fallback message and the raw
// error detail.
func ErrorNode(err error) *Node {
	root := NewElement("div")
	root.Attrs["className"] = ErrorClass
	root.Attrs["role"] = "alert"

	msg := NewElement("p")
	msg.Children = []*Node{NewText(FallbackMessage)}

	detail := NewElement("pre")
	detail.Children = []*Node{NewText(err.Error())}

	root.Children = []*Node{msg, detail}
	return root
}
