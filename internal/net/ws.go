package net

import (
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"SharedCanvas/internal/state"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket to the relay's Conn seam. Sends go through a
// buffered channel drained by a single write pump, so egress order per
// recipient is the order Send was called.
type wsConn struct {
	id   string
	sock *websocket.Conn
	send chan Message

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- msg:
		return nil
	default:
		// Slow consumer; dropping beats blocking the whole room's fan-out.
		return errors.New("send buffer full")
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.sock.Close()
}

func (c *wsConn) writePump() {
	for msg := range c.send {
		if err := c.sock.WriteJSON(msg); err != nil {
			log.Printf("[relay] write to %s failed: %v", c.id, err)
			return
		}
	}
}

// Server exposes the relay over websocket.
type Server struct {
	relay *Relay
}

func NewServer(relay *Relay) *Server {
	return &Server{relay: relay}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	c := &wsConn{id: uuid.NewString(), sock: sock, send: make(chan Message, 64)}
	go c.writePump()
	log.Printf("[relay] connected %s", c.id)

	// FIFO per connection: this loop is the only reader, so events reach the
	// store in the order the connection sent them.
	for {
		var msg Message
		if err := sock.ReadJSON(&msg); err != nil {
			break
		}
		s.dispatch(c, msg)
	}
	s.relay.HandleDisconnect(c)
	c.close()
	log.Printf("[relay] disconnected %s", c.id)
}

func (s *Server) dispatch(c Conn, msg Message) {
	switch msg.Type {
	case MsgJoin:
		authorID := msg.AuthorID
		if authorID == "" {
			authorID = state.NewAuthorID()
		}
		s.relay.HandleJoin(c, msg.Room, authorID, msg.Color)
	case MsgStrokeChunk:
		s.relay.HandleChunk(c, msg.Op)
	case MsgStrokeFinal:
		s.relay.HandleFinal(c, msg.Op)
	case MsgCursor:
		s.relay.HandleCursor(c, msg.Cursor)
	case MsgUndo:
		s.relay.HandleUndo(c, msg.TargetID)
	case MsgRedo:
		s.relay.HandleRedo(c, msg.TargetID)
	default:
		// Unknown event types are dropped, same as any other bad input.
	}
}
