package net

import (
	"SharedCanvas/internal/state"
)

// Event names carried in Message.Type.
const (
	MsgJoin        = "join"
	MsgInitState   = "init-state"
	MsgStrokeChunk = "stroke-chunk"
	MsgStrokeFinal = "stroke-final"
	MsgOp          = "op"
	MsgCursor      = "cursor"
	MsgUndo        = "undo"
	MsgRedo        = "redo"
	MsgUsers       = "users"
)

// Message is the single JSON envelope for every event on the wire, client or
// relay side. Type selects which of the optional fields are meaningful.
type Message struct {
	Type     string            `json:"type"`
	Room     string            `json:"room,omitempty"`
	AuthorID string            `json:"userId,omitempty"`
	Color    string            `json:"color,omitempty"`
	Op       *state.Operation  `json:"op,omitempty"`
	OpLog    []state.Operation `json:"opLog,omitempty"`
	TargetID string            `json:"id,omitempty"`
	Cursor   *state.Cursor     `json:"cursor,omitempty"`
	Users    []state.UserInfo  `json:"users,omitempty"`
}
