package net

import (
	"log"
	"sync"

	"SharedCanvas/internal/state"
)

// Conn is the transport seam the relay speaks through: per-connection unicast
// only. Implementations must deliver messages in the order Send is called.
type Conn interface {
	ID() string
	Send(msg Message) error
}

type session struct {
	room     string
	authorID string
}

// Relay routes connection events into the room store and fans results back
// out to room members. Every recoverable bad input (unjoined connection,
// unknown target id, empty geometry) is dropped silently: this is a
// best-effort collaborative tool and it fails open.
type Relay struct {
	store  *state.RoomStore
	bridge *Bridge // nil unless cross-instance fan-out is configured

	mu       sync.Mutex
	sessions map[string]*session        // connID -> session
	rooms    map[string]map[string]Conn // roomID -> connID -> conn
}

func NewRelay(store *state.RoomStore, bridge *Bridge) *Relay {
	return &Relay{
		store:    store,
		bridge:   bridge,
		sessions: make(map[string]*session),
		rooms:    make(map[string]map[string]Conn),
	}
}

// HandleJoin records presence, unicasts the full room snapshot to the joining
// connection, then broadcasts the updated roster to the whole room, sender
// included.
func (rl *Relay) HandleJoin(c Conn, roomID, authorID, color string) {
	if roomID == "" {
		roomID = "default"
	}
	rl.mu.Lock()
	rl.sessions[c.ID()] = &session{room: roomID, authorID: authorID}
	members, found := rl.rooms[roomID]
	if !found {
		members = make(map[string]Conn)
		rl.rooms[roomID] = members
	}
	members[c.ID()] = c
	rl.mu.Unlock()

	room := rl.store.GetOrCreate(roomID)
	room.SetPresence(c.ID(), authorID, color)

	if err := c.Send(Message{Type: MsgInitState, OpLog: room.Snapshot()}); err != nil {
		log.Printf("[relay] init-state send to %s failed: %v", c.ID(), err)
	}
	rl.multicast(roomID, Message{Type: MsgUsers, Users: room.Users()}, "")

	if rl.bridge != nil {
		rl.bridge.Watch(roomID, rl.applyRemote)
	}
	log.Printf("[relay] %s joined %s", authorID, roomID)
}

// HandleChunk appends an in-progress fragment and multicasts it to every
// OTHER member. The sender already rendered its own stroke locally; echoing
// the chunk back would double-render it.
func (rl *Relay) HandleChunk(c Conn, op *state.Operation) {
	s := rl.lookup(c)
	if s == nil || op == nil {
		return
	}
	op.Kind = state.KindChunk
	stamped, ok := rl.store.GetOrCreate(s.room).Append(op, s.authorID)
	if !ok {
		return
	}
	rl.broadcastOp(s.room, stamped, c.ID())
}

// HandleFinal appends the closing fragment and multicasts it to ALL members,
// sender included. The sender's local copy carries a locally minted id; the
// echo carries the canonical stamped id that later undo must target. This
// asymmetry with HandleChunk is deliberate.
func (rl *Relay) HandleFinal(c Conn, op *state.Operation) {
	s := rl.lookup(c)
	if s == nil || op == nil {
		return
	}
	op.Kind = state.KindFinal
	stamped, ok := rl.store.GetOrCreate(s.room).Append(op, s.authorID)
	if !ok {
		return
	}
	rl.broadcastOp(s.room, stamped, "")
}

// HandleCursor relays a pointer sample to every other member. Nothing is
// stored; lost samples self-heal via the viewers' expiry.
func (rl *Relay) HandleCursor(c Conn, cur *state.Cursor) {
	s := rl.lookup(c)
	if s == nil || cur == nil {
		return
	}
	rl.multicast(s.room, Message{Type: MsgCursor, Cursor: cur}, c.ID())
}

// HandleUndo hides the targeted operation, or the most recent visible one
// when no id is given, and multicasts the mutated op to the whole room. The
// requester receives its own toggle too: one source of truth, no durable
// local-only state.
func (rl *Relay) HandleUndo(c Conn, targetID string) {
	s := rl.lookup(c)
	if s == nil {
		return
	}
	room := rl.store.GetOrCreate(s.room)
	var op state.Operation
	var ok bool
	if targetID == "" {
		op, ok = room.UndoLast()
	} else {
		var err error
		op, err = room.SetVisibility(targetID, false)
		ok = err == nil
	}
	if !ok {
		return
	}
	rl.broadcastOp(s.room, op, "")
}

// HandleRedo re-shows the targeted operation. A redo must name its id; an
// unknown or missing id is a silent no-op.
func (rl *Relay) HandleRedo(c Conn, targetID string) {
	s := rl.lookup(c)
	if s == nil || targetID == "" {
		return
	}
	op, err := rl.store.GetOrCreate(s.room).SetVisibility(targetID, true)
	if err != nil {
		return
	}
	rl.broadcastOp(s.room, op, "")
}

// HandleDisconnect drops the connection from the room and broadcasts the
// shrunken roster. The author's strokes stay in history.
func (rl *Relay) HandleDisconnect(c Conn) {
	rl.mu.Lock()
	s, found := rl.sessions[c.ID()]
	if found {
		delete(rl.sessions, c.ID())
		if members, ok := rl.rooms[s.room]; ok {
			delete(members, c.ID())
		}
	}
	rl.mu.Unlock()
	if !found {
		return
	}
	room := rl.store.GetOrCreate(s.room)
	room.RemovePresence(c.ID())
	rl.multicast(s.room, Message{Type: MsgUsers, Users: room.Users()}, "")
	log.Printf("[relay] %s left %s", s.authorID, s.room)
}

func (rl *Relay) lookup(c Conn) *session {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sessions[c.ID()]
}

// multicast sends msg to every member of roomID except excludeConnID (no
// exclusion when empty). Each member's Send preserves call order, so the
// store's append order survives the egress path per recipient.
func (rl *Relay) multicast(roomID string, msg Message, excludeConnID string) {
	rl.mu.Lock()
	conns := make([]Conn, 0, len(rl.rooms[roomID]))
	for id, c := range rl.rooms[roomID] {
		if id == excludeConnID {
			continue
		}
		conns = append(conns, c)
	}
	rl.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			log.Printf("[relay] send to %s failed: %v", c.ID(), err)
		}
	}
}

// broadcastOp fans one stored operation out to local members and, when
// bridged, to other instances. op is already a private copy taken inside the
// room's critical section; egress never reads the live log entry, which other
// connections may still be toggling.
func (rl *Relay) broadcastOp(roomID string, op state.Operation, excludeConnID string) {
	rl.multicast(roomID, Message{Type: MsgOp, Op: &op}, excludeConnID)
	if rl.bridge != nil {
		rl.bridge.Publish(roomID, op)
	}
}

// applyRemote folds an operation relayed from another relay instance into the
// local room. Append is idempotent on id, so a toggle (known id) lands as a
// visibility reconcile and a fresh op lands as a normal append; either way
// every local member hears about it.
func (rl *Relay) applyRemote(roomID string, op state.Operation) {
	room := rl.store.GetOrCreate(roomID)
	stored, ok := room.Append(&op, op.AuthorID)
	if !ok {
		return
	}
	if stored.Visible != op.Visible {
		if toggled, err := room.SetVisibility(op.ID, op.Visible); err == nil {
			stored = toggled
		}
	}
	rl.multicast(roomID, Message{Type: MsgOp, Op: &stored}, "")
}
