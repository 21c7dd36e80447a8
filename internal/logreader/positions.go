package logreader

import "sync"

// positionTracker records the last-read byte offset per terminal.
type positionTracker struct {
	mu        sync.RWMutex
	positions map[string]int64
}

func newPositionTracker() *positionTracker {
	return &positionTracker{positions: make(map[string]int64)}
}

// Get returns the stored offset for the terminal, zero when unknown.
func (t *positionTracker) Get(id string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[id]
}

// Set stores the offset for the terminal.
func (t *positionTracker) Set(id string, pos int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[id] = pos
}

// Reset removes the terminal's offset.
func (t *positionTracker) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, id)
}

// All returns a copy of every tracked offset.
func (t *positionTracker) All() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int64, len(t.positions))
	for id, pos := range t.positions {
		out[id] = pos
	}
	return out
}

// Clear removes all offsets.
func (t *positionTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = make(map[string]int64)
}
