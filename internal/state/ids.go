package state

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Id prefixes, one namespace per kind. A final's id is distinguishable from a
// chunk's id by prefix alone.
const (
	chunkIDPrefix = "tmp"
	finalIDPrefix = "s"
)

func idPrefix(kind Kind) string {
	if kind == KindFinal {
		return finalIDPrefix
	}
	return chunkIDPrefix
}

// newOpID mints a kind-prefixed id unique within the room. The timestamp plus
// uuid suffix makes collisions vanishingly rare, but a collision would corrupt
// undo targeting, so exists() is checked and generation retried. A retry is an
// invariant violation worth logging, not a silent event.
func newOpID(kind Kind, exists func(string) bool) string {
	for {
		id := fmt.Sprintf("%s-%d-%s", idPrefix(kind), time.Now().UnixMilli(), uuid.NewString()[:6])
		if !exists(id) {
			return id
		}
		log.Printf("[store] id collision on %s, regenerating", id)
	}
}

// NewID mints a kind-prefixed id with no room to check against. Clients use
// it to stamp locally created operations; the room store keeps a
// client-provided id as long as it is free.
func NewID(kind Kind) string {
	return newOpID(kind, func(string) bool { return false })
}

// NewAuthorID mints an author id for a connection's lifetime.
func NewAuthorID() string {
	return "u-" + uuid.NewString()[:7]
}
