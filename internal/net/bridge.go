package net

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SharedCanvas/internal/state"
)

const bridgeChannelPrefix = "sharedcanvas:"

// bridgeEnvelope wraps an operation crossing instances. Origin lets an
// instance skip messages it published itself.
type bridgeEnvelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Op     state.Operation `json:"op"`
}

// Bridge fans stamped operations out across relay instances through one redis
// pub/sub channel per room. It is optional: a single-instance deployment runs
// without it and local semantics are identical. Duplicate delivery is safe
// because the store's append is idempotent on id.
type Bridge struct {
	rdb        *redis.Client
	instanceID string
	ctx        context.Context

	mu      sync.Mutex
	watched map[string]bool
}

func NewBridge(ctx context.Context, addr string) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	log.Printf("[bridge] connected to redis at %s", addr)
	return &Bridge{
		rdb:        rdb,
		instanceID: uuid.NewString(),
		ctx:        ctx,
		watched:    make(map[string]bool),
	}, nil
}

// Publish sends op to every other instance serving room. Best effort; a
// publish failure is logged and local members are unaffected.
func (b *Bridge) Publish(room string, op state.Operation) {
	buf, err := json.Marshal(bridgeEnvelope{Origin: b.instanceID, Room: room, Op: op})
	if err != nil {
		log.Printf("[bridge] marshal failed: %v", err)
		return
	}
	if err := b.rdb.Publish(b.ctx, bridgeChannelPrefix+room, buf).Err(); err != nil {
		log.Printf("[bridge] publish to %s failed: %v", room, err)
	}
}

// Watch subscribes to room's channel once and feeds foreign-instance
// operations to apply. Redundant calls for the same room are no-ops.
func (b *Bridge) Watch(room string, apply func(room string, op state.Operation)) {
	b.mu.Lock()
	if b.watched[room] {
		b.mu.Unlock()
		return
	}
	b.watched[room] = true
	b.mu.Unlock()

	pubsub := b.rdb.Subscribe(b.ctx, bridgeChannelPrefix+room)
	go func() {
		defer pubsub.Close()
		for msg := range pubsub.Channel() {
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[bridge] bad envelope on %s: %v", msg.Channel, err)
				continue
			}
			if env.Origin == b.instanceID {
				continue
			}
			apply(env.Room, env.Op)
		}
	}()
}
