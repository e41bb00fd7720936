package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"SharedCanvas/internal/client"
	"SharedCanvas/internal/net"
	"SharedCanvas/internal/state"
)

const defaultPort = 3000

func main() {
	var (
		connect = flag.String("connect", "", "relay address (host:port) to join as a client; empty runs the relay host, \"auto\" browses the LAN")
		room    = flag.String("room", "default", "room to join")
		name    = flag.String("name", "", "author id (minted when empty)")
		color   = flag.String("color", state.DefaultColor, "cursor and stroke color")
		port    = flag.Int("port", envPort(), "relay listen port")
	)
	flag.Parse()

	if *connect == "" {
		runHost(*port)
	} else {
		runClient(*connect, *room, *name, *color)
	}
}

func envPort() int {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return defaultPort
}

func runHost(port int) {
	log.Println("Starting as HOST")
	store := state.NewRoomStore()

	var bridge *net.Bridge
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		var err error
		bridge, err = net.NewBridge(context.Background(), addr)
		if err != nil {
			log.Fatalf("Failed to start redis bridge: %v", err)
		}
	}

	relay := net.NewRelay(store, bridge)
	srv := net.NewServer(relay)

	if mdnsServer, err := net.Advertise(port); err != nil {
		log.Printf("mDNS advertise failed (clients must dial by address): %v", err)
	} else {
		defer mdnsServer.Shutdown()
	}

	if ip, err := net.OutgoingIP(); err == nil {
		log.Printf("[relay] share link: ws://%s:%d/ws", ip, port)
	}

	log.Printf("[relay] listening on :%d", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), srv.Router()); err != nil {
		log.Fatalf("Failed to start relay: %v", err)
	}
}

func runClient(addr, room, name, color string) {
	log.Println("Starting as CLIENT")
	if addr == "auto" {
		addrs, err := net.Browse()
		if err != nil {
			log.Fatalf("LAN browse failed: %v", err)
		}
		if len(addrs) == 0 {
			log.Fatal("No relay found on the LAN")
		}
		addr = addrs[0]
		log.Printf("[client] found relay at %s", addr)
	}

	c, err := client.Dial(addr, consoleRenderer{}, name, color)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer c.Close()

	c.OnUsers = func(users []state.UserInfo) {
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.AuthorID
		}
		log.Printf("[client] users: %v", names)
	}
	c.OnRepaint = func() {
		log.Printf("[client] repaint: %d visible ops", len(c.VisibleOps()))
	}
	stopSweep := c.Cursors().StartSweep(func([]state.Cursor) {})
	defer stopSweep()

	if err := c.Run(room); err != nil {
		log.Fatalf("%v", err)
	}
}

// consoleRenderer is the headless stand-in for a real drawing surface: it
// narrates incoming fragments instead of rasterizing them.
type consoleRenderer struct{}

func (consoleRenderer) DrawStroke(op state.Operation) {
	log.Printf("[canvas] %s: %s %s stroke, %d points", op.AuthorID, op.Tool, op.Color, len(op.Points))
}
