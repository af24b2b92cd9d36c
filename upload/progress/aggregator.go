// Package progress maintains the per-file status of an upload session and
// republishes a consistent snapshot to observers on every state change.
package progress

import (
	"sync"

	"github.com/saaskit/go-uploadkit/upload/transfer"
)

// Observer receives the full snapshot sequence on every recorded change,
// never a delta.
type Observer func(snapshot []transfer.State)

// Aggregator keeps the latest transfer state per filename. Snapshots preserve
// filename insertion order, stable across updates.
type Aggregator struct {
	mu        sync.Mutex
	order     []string
	states    map[string]transfer.State
	observers map[int]Observer
	nextID    int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		states:    map[string]transfer.State{},
		observers: map[int]Observer{},
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (a *Aggregator) Subscribe(observer Observer) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.observers[id] = observer
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.observers, id)
		a.mu.Unlock()
	}
}

// Record stores the state under its filename and publishes the full snapshot
// to every observer.
func (a *Aggregator) Record(state transfer.State) {
	a.mu.Lock()
	if _, ok := a.states[state.Filename]; !ok {
		a.order = append(a.order, state.Filename)
	}
	a.states[state.Filename] = state

	snapshot := a.snapshotLocked()
	observers := make([]Observer, 0, len(a.observers))
	for _, observer := range a.observers {
		observers = append(observers, observer)
	}
	a.mu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
}

// Snapshot returns the current state of every tracked file.
func (a *Aggregator) Snapshot() []transfer.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() []transfer.State {
	snapshot := make([]transfer.State, 0, len(a.order))
	for _, filename := range a.order {
		snapshot = append(snapshot, a.states[filename])
	}
	return snapshot
}
