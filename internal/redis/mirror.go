package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peergrid/signaling/internal/models"
	"github.com/peergrid/signaling/internal/presence"
)

const (
	keyTTL    = 24 * time.Hour
	opTimeout = 5 * time.Second
)

// commandable is the slice of the Redis API the mirror uses; it lets
// tests substitute a stub for a live server.
type commandable interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Mirror replicates membership changes into Redis so operators can
// inspect live rooms out-of-process. It is write-only: the in-memory
// registry stays authoritative and nothing is read back on startup.
type Mirror struct {
	client   commandable
	events   chan presence.Event
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMirror(client commandable) *Mirror {
	m := &Mirror{
		client: client,
		events: make(chan presence.Event, 128),
		stop:   make(chan struct{}),
	}
	go m.run()
	return m
}

// HandleEvent enqueues a membership change for replication. It never
// blocks; when the buffer is full the event is dropped and logged.
func (m *Mirror) HandleEvent(ev presence.Event) {
	select {
	case m.events <- ev:
	default:
		log.Printf("Redis mirror buffer full, dropping %s for %s", ev.Type, ev.PeerID)
	}
}

func (m *Mirror) run() {
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
		case <-m.stop:
			return
		}
	}
}

func (m *Mirror) apply(ev presence.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := memberKey(ev.Room)
	switch ev.Type {
	case presence.EventPeerJoined:
		if err := m.client.SAdd(ctx, key, ev.PeerID).Err(); err != nil {
			log.Printf("Redis mirror SADD failed: %v", err)
			return
		}
		m.client.Expire(ctx, key, keyTTL)
	case presence.EventPeerLeft:
		if err := m.client.SRem(ctx, key, ev.PeerID).Err(); err != nil {
			log.Printf("Redis mirror SREM failed: %v", err)
		}
	}
}

// StoreRoom writes the room descriptor under room:<name>.
func (m *Mirror) StoreRoom(info models.RoomInfo) {
	if m == nil {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.client.Set(ctx, "room:"+info.Name, data, keyTTL).Err(); err != nil {
		log.Printf("Redis mirror SET failed: %v", err)
	}
}

// DeleteRoom removes the room descriptor and its member set.
func (m *Mirror) DeleteRoom(name string) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.client.Del(ctx, "room:"+name, memberKey(name)).Err(); err != nil {
		log.Printf("Redis mirror DEL failed: %v", err)
	}
}

func (m *Mirror) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func memberKey(room string) string {
	return fmt.Sprintf("room:%s:peers", room)
}
