package net_test

import (
	"reflect"
	"sync"
	"testing"

	"SharedCanvas/internal/net"
	"SharedCanvas/internal/state"
)

func eq(t *testing.T, got, want interface{}) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// fakeConn records everything the relay sends it.
type fakeConn struct {
	id string

	mu   sync.Mutex
	msgs []net.Message
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg net.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) ofType(msgType string) []net.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []net.Message
	for _, m := range c.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) lastUsers(t *testing.T) []state.UserInfo {
	t.Helper()
	rosters := c.ofType(net.MsgUsers)
	if len(rosters) == 0 {
		t.Fatal("no users broadcast received")
	}
	return rosters[len(rosters)-1].Users
}

func newRelay() (*net.Relay, *state.RoomStore) {
	store := state.NewRoomStore()
	return net.NewRelay(store, nil), store
}

func chunkOp(pts ...state.Point) *state.Operation {
	return &state.Operation{Kind: state.KindChunk, Points: pts, Visible: true}
}

func finalOp(pts ...state.Point) *state.Operation {
	return &state.Operation{Kind: state.KindFinal, Points: pts, Visible: true}
}

func pt(x, y float64) state.Point { return state.Point{X: x, Y: y} }

func TestJoinUnicastsSnapshotThenBroadcastsRoster(t *testing.T) {
	relay, store := newRelay()
	store.GetOrCreate("r").Append(finalOp(pt(1, 1)), "u-earlier")

	c1 := &fakeConn{id: "c1"}
	relay.HandleJoin(c1, "r", "u-ann", "#f00")

	inits := c1.ofType(net.MsgInitState)
	eq(t, len(inits), 1)
	eq(t, len(inits[0].OpLog), 1)
	eq(t, c1.lastUsers(t), []state.UserInfo{{AuthorID: "u-ann", Color: "#f00"}})

	c2 := &fakeConn{id: "c2"}
	relay.HandleJoin(c2, "r", "u-bob", "#0f0")

	// The snapshot goes to the joiner only; the roster goes to everyone.
	eq(t, len(c1.ofType(net.MsgInitState)), 1)
	eq(t, len(c2.ofType(net.MsgInitState)), 1)
	eq(t, c1.lastUsers(t), []state.UserInfo{
		{AuthorID: "u-ann", Color: "#f00"},
		{AuthorID: "u-bob", Color: "#0f0"},
	})
}

func TestChunkExcludesSenderFinalIncludesSender(t *testing.T) {
	relay, _ := newRelay()
	sender := &fakeConn{id: "c1"}
	other := &fakeConn{id: "c2"}
	relay.HandleJoin(sender, "r", "u-ann", "")
	relay.HandleJoin(other, "r", "u-bob", "")

	relay.HandleChunk(sender, chunkOp(pt(1, 1)))
	eq(t, len(sender.ofType(net.MsgOp)), 0)
	eq(t, len(other.ofType(net.MsgOp)), 1)

	relay.HandleFinal(sender, finalOp(pt(2, 2)))
	// The final echoes back so the sender learns the canonical id.
	eq(t, len(sender.ofType(net.MsgOp)), 1)
	eq(t, len(other.ofType(net.MsgOp)), 2)
}

func TestStampedChunkCarriesAuthorAndID(t *testing.T) {
	relay, store := newRelay()
	sender := &fakeConn{id: "c1"}
	other := &fakeConn{id: "c2"}
	relay.HandleJoin(sender, "r", "u-ann", "")
	relay.HandleJoin(other, "r", "u-bob", "")

	relay.HandleChunk(sender, chunkOp(pt(1, 1)))
	got := other.ofType(net.MsgOp)[0].Op
	eq(t, got.AuthorID, "u-ann")
	if got.ID == "" {
		t.Fatal("relayed op must carry a stamped id")
	}
	eq(t, len(store.GetOrCreate("r").Snapshot()), 1)
}

func TestUnjoinedConnectionDroppedSilently(t *testing.T) {
	relay, store := newRelay()
	joined := &fakeConn{id: "c1"}
	relay.HandleJoin(joined, "r", "u-ann", "")

	stranger := &fakeConn{id: "cx"}
	relay.HandleChunk(stranger, chunkOp(pt(1, 1)))
	relay.HandleFinal(stranger, finalOp(pt(1, 1)))
	relay.HandleCursor(stranger, &state.Cursor{AuthorID: "u-x", X: 1, Y: 1})
	relay.HandleUndo(stranger, "")
	relay.HandleRedo(stranger, "s-1")

	eq(t, len(store.GetOrCreate("r").Snapshot()), 0)
	eq(t, len(joined.ofType(net.MsgOp)), 0)
	eq(t, len(joined.ofType(net.MsgCursor)), 0)
}

func TestEmptyPointsDropped(t *testing.T) {
	relay, store := newRelay()
	sender := &fakeConn{id: "c1"}
	other := &fakeConn{id: "c2"}
	relay.HandleJoin(sender, "r", "u-ann", "")
	relay.HandleJoin(other, "r", "u-bob", "")

	relay.HandleChunk(sender, &state.Operation{Kind: state.KindChunk, Visible: true})
	eq(t, len(store.GetOrCreate("r").Snapshot()), 0)
	eq(t, len(other.ofType(net.MsgOp)), 0)
}

func TestCursorRelayedWithoutPersistence(t *testing.T) {
	relay, store := newRelay()
	sender := &fakeConn{id: "c1"}
	other := &fakeConn{id: "c2"}
	relay.HandleJoin(sender, "r", "u-ann", "")
	relay.HandleJoin(other, "r", "u-bob", "")

	relay.HandleCursor(sender, &state.Cursor{AuthorID: "u-ann", X: 5, Y: 6, Color: "#f00"})
	eq(t, len(sender.ofType(net.MsgCursor)), 0)
	cursors := other.ofType(net.MsgCursor)
	eq(t, len(cursors), 1)
	eq(t, cursors[0].Cursor.X, 5.0)
	eq(t, len(store.GetOrCreate("r").Snapshot()), 0)
}

func TestUndoBroadcastsToEveryoneIncludingRequester(t *testing.T) {
	relay, _ := newRelay()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	relay.HandleJoin(c1, "r", "u-ann", "")
	relay.HandleJoin(c2, "r", "u-bob", "")

	relay.HandleFinal(c1, finalOp(pt(1, 1)))
	id := c1.ofType(net.MsgOp)[0].Op.ID

	relay.HandleUndo(c1, id)
	ops := c1.ofType(net.MsgOp)
	eq(t, len(ops), 2)
	eq(t, ops[1].Op.Visible, false)
	eq(t, c2.ofType(net.MsgOp)[1].Op.Visible, false)
}

func TestUndoWithoutIDHidesMostRecentVisible(t *testing.T) {
	relay, store := newRelay()
	c1 := &fakeConn{id: "c1"}
	relay.HandleJoin(c1, "r", "u-ann", "")

	relay.HandleFinal(c1, finalOp(pt(1, 1)))
	relay.HandleFinal(c1, finalOp(pt(2, 2)))
	relay.HandleUndo(c1, "")

	snap := store.GetOrCreate("r").Snapshot()
	eq(t, snap[0].Visible, true)
	eq(t, snap[1].Visible, false)
}

func TestUndoRedoUnknownIDSilentNoop(t *testing.T) {
	relay, _ := newRelay()
	c1 := &fakeConn{id: "c1"}
	relay.HandleJoin(c1, "r", "u-ann", "")

	relay.HandleUndo(c1, "s-0-missing")
	relay.HandleRedo(c1, "s-0-missing")
	relay.HandleRedo(c1, "")
	eq(t, len(c1.ofType(net.MsgOp)), 0)
}

func TestRedoRestoresVisibility(t *testing.T) {
	relay, _ := newRelay()
	c1 := &fakeConn{id: "c1"}
	relay.HandleJoin(c1, "r", "u-ann", "")

	relay.HandleFinal(c1, finalOp(pt(1, 1)))
	id := c1.ofType(net.MsgOp)[0].Op.ID
	relay.HandleUndo(c1, id)
	relay.HandleRedo(c1, id)

	ops := c1.ofType(net.MsgOp)
	eq(t, len(ops), 3)
	eq(t, ops[2].Op.Visible, true)
}

func TestPresenceConvergenceAfterDisconnect(t *testing.T) {
	relay, _ := newRelay()
	conns := []*fakeConn{{id: "c1"}, {id: "c2"}, {id: "c3"}}
	authors := []string{"u-ann", "u-bob", "u-cat"}
	for i, c := range conns {
		relay.HandleJoin(c, "r", authors[i], "")
	}

	relay.HandleDisconnect(conns[1])

	want := []state.UserInfo{{AuthorID: "u-ann"}, {AuthorID: "u-cat"}}
	eq(t, conns[0].lastUsers(t), want)
	eq(t, conns[2].lastUsers(t), want)
}

func TestDisconnectKeepsHistory(t *testing.T) {
	relay, store := newRelay()
	c1 := &fakeConn{id: "c1"}
	relay.HandleJoin(c1, "r", "u-ann", "")
	relay.HandleFinal(c1, finalOp(pt(1, 1)))

	relay.HandleDisconnect(c1)
	snap := store.GetOrCreate("r").Snapshot()
	eq(t, len(snap), 1)
	eq(t, snap[0].Visible, true)
}

func TestConcurrentTogglesBroadcastPrivateCopies(t *testing.T) {
	relay, _ := newRelay()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	relay.HandleJoin(c1, "r", "u-ann", "")
	relay.HandleJoin(c2, "r", "u-bob", "")

	relay.HandleFinal(c1, finalOp(pt(1, 1)))
	id := c1.ofType(net.MsgOp)[0].Op.ID

	// Two connections fighting over one id: every broadcast must carry a
	// stable copy taken under the room lock, never the live log entry.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			relay.HandleUndo(c1, id)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			relay.HandleRedo(c2, id)
		}
	}()
	wg.Wait()

	for _, m := range c2.ofType(net.MsgOp) {
		eq(t, m.Op.ID, id)
		eq(t, m.Op.Points, []state.Point{pt(1, 1)})
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	relay, _ := newRelay()
	a := &fakeConn{id: "c1"}
	b := &fakeConn{id: "c2"}
	relay.HandleJoin(a, "room-a", "u-ann", "")
	relay.HandleJoin(b, "room-b", "u-bob", "")

	relay.HandleFinal(a, finalOp(pt(1, 1)))
	eq(t, len(b.ofType(net.MsgOp)), 0)
	eq(t, b.lastUsers(t), []state.UserInfo{{AuthorID: "u-bob"}})
}
