package stash

import "sync"

// StateListener receives sync state updates. Listeners are invoked
// synchronously on every change and must not block.
type StateListener func(SyncState)

// StateTracker holds the process-wide sync state and broadcasts changes to
// subscribers. Only the orchestrator mutates it.
type StateTracker struct {
	mu        sync.Mutex
	state     SyncState
	listeners map[int]StateListener
	nextID    int
}

// NewStateTracker creates a tracker starting at idle with the given pending
// count (rebuilt from the store at startup; the state itself is never
// persisted).
func NewStateTracker(pendingCount int) *StateTracker {
	return &StateTracker{
		state:     SyncState{Status: StatusIdle, PendingCount: pendingCount},
		listeners: make(map[int]StateListener),
	}
}

// Current returns a copy of the current state.
func (t *StateTracker) Current() SyncState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe registers a listener and returns its unsubscribe function.
func (t *StateTracker) Subscribe(fn StateListener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// update applies a mutation and broadcasts the new state.
func (t *StateTracker) update(mutate func(*SyncState)) {
	t.mu.Lock()
	mutate(&t.state)
	state := t.state
	listeners := make([]StateListener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
