package state

import (
	"errors"
	"sync"
)

// ErrNotFound signals a visibility toggle aimed at an id the room has never
// seen. Callers treat it as "nothing changed", not as a failure.
var ErrNotFound = errors.New("operation not found")

// Room is the authoritative state for one session: an append-only operation
// log plus the presence roster. A room is one mutual-exclusion domain; all
// mutation goes through its mutex, and different rooms never contend.
type Room struct {
	mu       sync.Mutex
	ops      []*Operation
	index    map[string]*Operation
	presence []Presence
}

func newRoom() *Room {
	return &Room{index: make(map[string]*Operation)}
}

// Append stamps and appends op to the room log and returns a copy of the
// stored entry. Missing ids are minted (kind-prefixed, collision-checked),
// the author is stamped, and render params defaulted. Empty-points ops are
// dropped silently (ok=false). An op whose id already exists is NOT
// duplicated: the existing entry is returned untouched, which makes
// retransmission and cross-instance relay safe.
//
// Log entries never escape the room mutex as pointers; every return is a
// value copy taken inside the critical section, so callers can read it while
// other connections keep toggling the live entry.
func (r *Room) Append(op *Operation, authorID string) (Operation, bool) {
	if !op.Storable() {
		return Operation{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if op.ID != "" {
		if existing, dup := r.index[op.ID]; dup {
			return *existing, true
		}
	} else {
		op.ID = newOpID(op.Kind, func(id string) bool {
			_, taken := r.index[id]
			return taken
		})
	}
	op.AuthorID = authorID
	op.normalize()
	if op.Kind == KindFinal {
		// A final is always born visible; only a later undo may hide it.
		op.Visible = true
	}

	stored := *op
	r.ops = append(r.ops, &stored)
	r.index[stored.ID] = &stored
	return stored, true
}

// SetVisibility toggles an operation in place and returns a copy of the
// mutated entry. Toggling to the current value is an observable no-op; the
// entry is never removed or reordered.
func (r *Room) SetVisibility(opID string, visible bool) (Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, found := r.index[opID]
	if !found {
		return Operation{}, ErrNotFound
	}
	op.Visible = visible
	return *op, nil
}

// UndoLast hides the most recent visible operation and returns a copy of it;
// ok is false when every entry is already hidden. Backward linear scan;
// per-session logs stay small enough that tracking a live last-visible
// pointer is not worth it yet.
func (r *Room) UndoLast() (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.ops) - 1; i >= 0; i-- {
		if r.ops[i].Visible {
			r.ops[i].Visible = false
			return *r.ops[i], true
		}
	}
	return Operation{}, false
}

// Snapshot returns a copy of the full log in append order. Chunk and final
// entries stay interleaved as authored: a late joiner replays them through the
// same reconstructor path as live traffic, so replay order matters.
func (r *Room) Snapshot() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Operation, len(r.ops))
	for i, op := range r.ops {
		out[i] = *op
	}
	return out
}

// SetPresence records or refreshes a roster entry for connID. Safe to call
// redundantly.
func (r *Room) SetPresence(connID, authorID, color string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.presence {
		if r.presence[i].ConnID == connID {
			r.presence[i].AuthorID = authorID
			r.presence[i].Color = color
			return
		}
	}
	r.presence = append(r.presence, Presence{ConnID: connID, AuthorID: authorID, Color: color})
}

// RemovePresence drops connID's roster entry. Idempotent; the author's
// strokes stay in history.
func (r *Room) RemovePresence(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.presence {
		if r.presence[i].ConnID == connID {
			r.presence = append(r.presence[:i], r.presence[i+1:]...)
			return
		}
	}
}

// Users returns the roster in join order, shaped for broadcast.
func (r *Room) Users() []UserInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]UserInfo, len(r.presence))
	for i, p := range r.presence {
		users[i] = UserInfo{AuthorID: p.AuthorID, Color: p.Color}
	}
	return users
}

// RoomStore owns every room in the process. Rooms are created lazily on first
// access and live for the process lifetime; there is no eviction or
// compaction, so a room's log grows without bound (known scaling gap, left
// open deliberately).
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for roomID, creating it on first access. The
// same instance is returned for the same id thereafter.
func (s *RoomStore) GetOrCreate(roomID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, found := s.rooms[roomID]
	if !found {
		room = newRoom()
		s.rooms[roomID] = room
	}
	return room
}
