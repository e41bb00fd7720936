package client

import (
	"sync"
	"time"

	"SharedCanvas/internal/state"
)

const (
	// cursorTTL is how long a remote cursor survives without a fresh sample.
	// Lost packets self-heal through expiry; no acknowledgment exists.
	cursorTTL = 1500 * time.Millisecond
	// sweepInterval is the overlay redraw cadence.
	sweepInterval = 60 * time.Millisecond
)

type cursorEntry struct {
	sample  state.Cursor
	expires time.Time
}

// CursorTracker keeps the latest ephemeral pointer sample per remote author.
// Samples are never persisted and expire on a fixed TTL.
type CursorTracker struct {
	// Now is the expiry clock; replaceable in tests.
	Now func() time.Time

	mu      sync.Mutex
	cursors map[string]cursorEntry
}

func NewCursorTracker() *CursorTracker {
	return &CursorTracker{
		Now:     time.Now,
		cursors: make(map[string]cursorEntry),
	}
}

// Set records the latest sample for its author and restarts its TTL.
func (t *CursorTracker) Set(c state.Cursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursors[c.AuthorID] = cursorEntry{sample: c, expires: t.Now().Add(cursorTTL)}
}

// Snapshot evicts expired samples and returns the live ones.
func (t *CursorTracker) Snapshot() []state.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.Now()
	out := make([]state.Cursor, 0, len(t.cursors))
	for author, entry := range t.cursors {
		if entry.expires.Before(now) {
			delete(t.cursors, author)
			continue
		}
		out = append(out, entry.sample)
	}
	return out
}

// StartSweep redraws the cursor overlay on a fixed cadence by calling
// onChange with the live samples. The returned func stops the sweep.
func (t *CursorTracker) StartSweep(onChange func([]state.Cursor)) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				onChange(t.Snapshot())
			}
		}
	}()
	return func() { close(done) }
}
