package client

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"SharedCanvas/internal/net"
	"SharedCanvas/internal/stitch"
)

// Client is a Session bound to a live websocket.
type Client struct {
	*Session

	sock    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to a relay at host:port and returns a client ready to Join.
func Dial(addr string, renderer stitch.Renderer, authorID, color string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	sock, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not connect to relay at %s: %w", addr, err)
	}

	c := &Client{sock: sock}
	// One writer lock per socket: Session methods may emit from any goroutine.
	c.Session = NewSession(renderer, func(msg net.Message) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.sock.WriteJSON(msg)
	}, authorID, color)
	return c, nil
}

// Run joins room and pumps relay messages into the session until the
// connection drops.
func (c *Client) Run(room string) error {
	c.Join(room)
	for {
		var msg net.Message
		if err := c.sock.ReadJSON(&msg); err != nil {
			return fmt.Errorf("relay connection lost: %w", err)
		}
		c.HandleMessage(msg)
	}
}

func (c *Client) Close() error {
	return c.sock.Close()
}
