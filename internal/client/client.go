// Package client holds the viewer-side session: the local operation log,
// undo/redo bookkeeping, remote-stroke stitching and cursor tracking. It
// renders through the stitch.Renderer seam; capturing input and rasterizing
// curves belong to the embedding application.
package client

import (
	"log"
	"sync"

	"SharedCanvas/internal/net"
	"SharedCanvas/internal/state"
	"SharedCanvas/internal/stitch"
)

// chunkThreshold and chunkOverlap control local stroke chunking: once the
// pending stroke reaches chunkThreshold points, everything but the last
// chunkOverlap points is shipped as a chunk. The retained overlap keeps the
// local curve smooth while the next chunk accumulates.
const (
	chunkThreshold = 5
	chunkOverlap   = 3
)

// Session is one participant's view of a room. All methods are safe for
// concurrent use; incoming messages and local input may race.
type Session struct {
	AuthorID string
	Color    string

	// OnUsers fires with the roster after every users broadcast.
	OnUsers func([]state.UserInfo)
	// OnRepaint fires when a visibility toggle invalidates the canvas; the
	// embedder should clear and redraw VisibleOps.
	OnRepaint func()

	send     func(net.Message) error
	stitcher *stitch.Reconstructor
	cursors  *CursorTracker

	mu      sync.Mutex
	room    string
	ops     []*state.Operation
	index   map[string]*state.Operation
	undone  []string // ids this client hid itself, newest last
	pending []state.Point
	tool    state.Tool
	width   float64
}

// NewSession wires a session over any ordered message sink. The renderer
// receives remote fragments through the reconstructor.
func NewSession(renderer stitch.Renderer, send func(net.Message) error, authorID, color string) *Session {
	if authorID == "" {
		authorID = state.NewAuthorID()
	}
	return &Session{
		AuthorID: authorID,
		Color:    color,
		send:     send,
		stitcher: stitch.New(renderer),
		cursors:  NewCursorTracker(),
		index:    make(map[string]*state.Operation),
		tool:     state.ToolBrush,
		width:    state.DefaultWidth,
	}
}

// Cursors exposes the session's cursor tracker for overlay rendering.
func (s *Session) Cursors() *CursorTracker { return s.cursors }

// Room returns the room joined last, or "" before Join.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Join announces the session to the relay.
func (s *Session) Join(room string) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
	s.emit(net.Message{Type: net.MsgJoin, Room: room, AuthorID: s.AuthorID, Color: s.Color})
}

// SetTool selects the tool for subsequent strokes.
func (s *Session) SetTool(tool state.Tool) {
	s.mu.Lock()
	s.tool = tool
	s.mu.Unlock()
}

// SetWidth selects the stroke width for subsequent strokes.
func (s *Session) SetWidth(w float64) {
	s.mu.Lock()
	s.width = w
	s.mu.Unlock()
}

// MoveCursor broadcasts the pointer position as an ephemeral cursor sample.
// The embedder calls it on every pointer move, drawing or not; it never
// touches the in-progress stroke.
func (s *Session) MoveCursor(p state.Point) {
	s.emit(net.Message{Type: net.MsgCursor, Cursor: &state.Cursor{
		AuthorID: s.AuthorID, X: p.X, Y: p.Y, Color: s.Color,
	}})
}

// AddPoint extends the in-progress local stroke and ships a chunk once enough
// points accumulate. The embedder draws the local stroke itself and reports
// the pointer through MoveCursor separately; chunks the relay fans out to
// OTHERS are never echoed back here.
func (s *Session) AddPoint(p state.Point) {
	s.mu.Lock()
	s.pending = append(s.pending, p)
	if len(s.pending) < chunkThreshold {
		s.mu.Unlock()
		return
	}
	sendPts := append([]state.Point(nil), s.pending[:len(s.pending)-chunkOverlap]...)
	s.pending = s.pending[len(s.pending)-chunkOverlap:]
	op := s.newOpLocked(state.KindChunk, sendPts)
	s.mu.Unlock()

	s.emit(net.Message{Type: net.MsgStrokeChunk, AuthorID: s.AuthorID, Op: &op})
}

// EndStroke closes the in-progress stroke: the remaining points go out as the
// final fragment, and the op lands in the local log immediately so undo can
// target it before the relay's echo returns.
func (s *Session) EndStroke() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	op := s.newOpLocked(state.KindFinal, s.pending)
	s.pending = nil
	stored := op
	s.ops = append(s.ops, &stored)
	s.index[stored.ID] = &stored
	s.mu.Unlock()

	s.emit(net.Message{Type: net.MsgStrokeFinal, AuthorID: s.AuthorID, Op: &op})
}

// newOpLocked builds a stamped operation from local state. Caller holds mu.
func (s *Session) newOpLocked(kind state.Kind, pts []state.Point) state.Operation {
	return state.Operation{
		ID:       state.NewID(kind),
		AuthorID: s.AuthorID,
		Tool:     s.tool,
		Color:    s.Color,
		Width:    s.width,
		Points:   append([]state.Point(nil), pts...),
		Kind:     kind,
		Visible:  true,
	}
}

// Undo hides the most recent visible operation in the local log and remembers
// its id for redo. Redo targets are discovered locally, never queried from
// the relay, so only the client that performed an undo can meaningfully redo
// it.
func (s *Session) Undo() {
	s.mu.Lock()
	var id string
	for i := len(s.ops) - 1; i >= 0; i-- {
		if s.ops[i].Visible {
			id = s.ops[i].ID
			break
		}
	}
	if id != "" {
		s.undone = append(s.undone, id)
	}
	s.mu.Unlock()
	// No id known locally: the relay falls back to undo-last.
	s.emit(net.Message{Type: net.MsgUndo, TargetID: id})
}

// Redo re-shows the most recently self-hidden operation. No-op when the local
// redo stack is empty.
func (s *Session) Redo() {
	s.mu.Lock()
	if len(s.undone) == 0 {
		s.mu.Unlock()
		return
	}
	id := s.undone[len(s.undone)-1]
	s.undone = s.undone[:len(s.undone)-1]
	s.mu.Unlock()
	s.emit(net.Message{Type: net.MsgRedo, TargetID: id})
}

// HandleMessage folds one relay message into the session.
func (s *Session) HandleMessage(msg net.Message) {
	switch msg.Type {
	case net.MsgInitState:
		s.handleInitState(msg.OpLog)
	case net.MsgOp:
		if msg.Op != nil {
			s.handleOp(*msg.Op)
		}
	case net.MsgCursor:
		if msg.Cursor != nil {
			s.cursors.Set(*msg.Cursor)
		}
	case net.MsgUsers:
		if s.OnUsers != nil {
			s.OnUsers(msg.Users)
		}
	}
}

// handleInitState replaces the local log with the room snapshot and replays
// every visible entry through the same reconstructor path as live traffic, so
// a late joiner reproduces the stitching a live viewer saw.
func (s *Session) handleInitState(oplog []state.Operation) {
	s.mu.Lock()
	s.ops = make([]*state.Operation, 0, len(oplog))
	s.index = make(map[string]*state.Operation, len(oplog))
	for i := range oplog {
		op := oplog[i]
		s.ops = append(s.ops, &op)
		s.index[op.ID] = &op
	}
	replay := append([]state.Operation(nil), oplog...)
	s.mu.Unlock()

	for _, op := range replay {
		switch {
		case op.Visible:
			s.stitcher.Apply(op)
		case op.Kind == state.KindFinal:
			// A hidden final still ends its author's stroke; without this a
			// later live chunk would stitch across the finished stroke.
			s.stitcher.ClearTail(op.AuthorID)
		}
	}
}

// handleOp applies one broadcast operation. A known id means this is either a
// visibility toggle or the echo of our own final: only the flag is
// reconciled, the geometry was already drawn (local echo suppression). An
// unknown id is fresh remote work: append and stitch.
func (s *Session) handleOp(op state.Operation) {
	s.mu.Lock()
	if existing, known := s.index[op.ID]; known {
		changed := existing.Visible != op.Visible
		existing.Visible = op.Visible
		repaint := changed && s.OnRepaint != nil
		s.mu.Unlock()
		if repaint {
			s.OnRepaint()
		}
		return
	}
	stored := op
	s.ops = append(s.ops, &stored)
	s.index[stored.ID] = &stored
	s.mu.Unlock()

	if op.Visible {
		s.stitcher.Apply(op)
	} else if op.Kind == state.KindFinal {
		s.stitcher.ClearTail(op.AuthorID)
	}
}

// VisibleOps returns the visible slice of the local log in order, for a full
// repaint after a visibility toggle.
func (s *Session) VisibleOps() []state.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]state.Operation, 0, len(s.ops))
	for _, op := range s.ops {
		if op.Visible {
			out = append(out, *op)
		}
	}
	return out
}

func (s *Session) emit(msg net.Message) {
	if err := s.send(msg); err != nil {
		log.Printf("[client] send failed: %v", err)
	}
}
