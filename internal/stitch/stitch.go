// Package stitch joins the stroke fragments arriving from one remote author
// into a visually continuous curve. Chunked transmission means a remote
// stroke lands as short point-runs; rendering each run on its own leaves
// gaps, because midpoint-quadratic smoothing needs continuity across chunk
// boundaries. The fix is a per-author tail buffer: keep the last few rendered
// points and start the next fragment from them.
//
// This is viewer-local state, independent of the authoritative room log. It
// works purely on arrival order at one viewer and does not need to produce
// bit-identical pixels across viewers, only a seamless curve on each.
package stitch

import (
	"sync"
	"time"

	"SharedCanvas/internal/state"
)

const (
	// tailLen is how many rendered points anchor the next connector.
	tailLen = 3
	// idleTimeout evicts a tail untouched this long, so a stale connector
	// never joins unrelated strokes after a pause.
	idleTimeout = 3 * time.Second
)

// Renderer is the drawing surface seam. Rendering itself (rasterizing the
// curve, eraser compositing) is an external collaborator; the reconstructor
// only decides WHAT point sequence to draw with the fragment's parameters.
type Renderer interface {
	DrawStroke(op state.Operation)
}

type tail struct {
	points     []state.Point
	lastUpdate time.Time
}

// Reconstructor stitches fragments per author. One instance per viewer.
type Reconstructor struct {
	// Now is the clock used for tail expiry; replaceable in tests.
	Now func() time.Time

	renderer Renderer

	mu    sync.Mutex
	tails map[string]*tail
}

func New(r Renderer) *Reconstructor {
	return &Reconstructor{
		Now:      time.Now,
		renderer: r,
		tails:    make(map[string]*tail),
	}
}

// Apply renders one incoming fragment. If a live tail exists for the author,
// a connector sequence [last tail point] ++ points is rendered instead of the
// raw fragment, so the new segment joins the previous one with no seam. The
// tail is then advanced to the last points just rendered, or cleared when the
// fragment closes the stroke.
func (rc *Reconstructor) Apply(op state.Operation) {
	if len(op.Points) == 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.Now()
	rc.evictStale(now)

	rendered := op.Points
	if t := rc.tails[op.AuthorID]; t != nil && len(t.points) > 0 {
		connector := make([]state.Point, 0, len(op.Points)+1)
		connector = append(connector, t.points[len(t.points)-1])
		connector = append(connector, op.Points...)
		joined := op
		joined.Points = connector
		rc.renderer.DrawStroke(joined)
		rendered = connector
	} else {
		rc.renderer.DrawStroke(op)
	}

	if op.Kind == state.KindFinal {
		// Logical stroke complete; the author's next chunk starts fresh.
		delete(rc.tails, op.AuthorID)
		return
	}

	keep := rendered
	if len(keep) > tailLen {
		keep = keep[len(keep)-tailLen:]
	}
	rc.tails[op.AuthorID] = &tail{
		points:     append([]state.Point(nil), keep...),
		lastUpdate: now,
	}
}

// ClearTail drops the buffered tail for author, if any. Callers use it when a
// stroke completes without being rendered (a hidden final), so the author's
// next fragment is not stitched across the finished stroke.
func (rc *Reconstructor) ClearTail(authorID string) {
	rc.mu.Lock()
	delete(rc.tails, authorID)
	rc.mu.Unlock()
}

// evictStale is the lazy sweep run on every incoming event. Caller holds mu.
func (rc *Reconstructor) evictStale(now time.Time) {
	for author, t := range rc.tails {
		if now.Sub(t.lastUpdate) > idleTimeout {
			delete(rc.tails, author)
		}
	}
}
