package state

import "encoding/json"

// Point is one sampled position along a stroke. T is the capture time in unix
// milliseconds; insertion order is temporal order along the stroke.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t,omitempty"`
}

// Tool selects compositing behavior at render time. The store and the
// reconstructor pass it through untouched; only the renderer interprets it
// (eraser clears rather than paints).
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Kind distinguishes an in-progress fragment from the fragment that closes a
// logical stroke.
type Kind string

const (
	KindChunk Kind = "chunk"
	KindFinal Kind = "final"
)

const (
	DefaultColor = "#000"
	DefaultWidth = 4.0
)

// Operation is one unit of recorded drawing history: a stroke fragment or the
// closing fragment of a stroke. Undo/redo toggles Visible; operations are
// never deleted from a room's log.
//
// Note: every chunk is appended to history individually and is individually
// toggle-able by id. Chunks are NOT merged into their parent stroke when the
// final arrives; changing that would change undo granularity.
type Operation struct {
	ID       string  `json:"id"`
	AuthorID string  `json:"userId"`
	Tool     Tool    `json:"tool"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
	Points   []Point `json:"points,omitempty"`
	Kind     Kind    `json:"kind"`
	Visible  bool    `json:"visible"`
}

// UnmarshalJSON defaults Visible to true when the field is absent on the
// wire. Only an explicit "visible": false hides an operation.
func (op *Operation) UnmarshalJSON(data []byte) error {
	type operation Operation
	aux := struct {
		*operation
		Visible *bool `json:"visible"`
	}{operation: (*operation)(op)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	op.Visible = aux.Visible == nil || *aux.Visible
	return nil
}

// Storable reports whether the operation carries any geometry. Empty-points
// chunk/final ops are treated as a silent no-op by the store.
func (op *Operation) Storable() bool {
	return op != nil && len(op.Points) > 0
}

// normalize fills in system defaults for missing render parameters.
func (op *Operation) normalize() {
	if op.Color == "" {
		op.Color = DefaultColor
	}
	if op.Width <= 0 {
		op.Width = DefaultWidth
	}
	if op.Tool == "" {
		op.Tool = ToolBrush
	}
}

// Presence is one roster entry, keyed by connection rather than author.
type Presence struct {
	ConnID   string
	AuthorID string
	Color    string
}

// UserInfo is the roster shape broadcast to room members.
type UserInfo struct {
	AuthorID string `json:"userId"`
	Color    string `json:"color"`
}

// Cursor is an ephemeral pointer sample. It is never appended to the room log;
// viewers hold the latest sample per author and let it expire locally.
type Cursor struct {
	AuthorID string  `json:"userId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color,omitempty"`
}
