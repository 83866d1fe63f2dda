package router

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peergrid/signaling/internal/models"
	"github.com/peergrid/signaling/internal/presence"
)

// PushChannel is a registered persistent transport for one peer.
// TrySend must not block; it reports whether the entry was accepted.
type PushChannel interface {
	TrySend(entry models.SignalEntry) bool
	Close()
}

// PresenceToucher refreshes a peer's inactivity clock on poll traffic.
// Implemented by the presence registry.
type PresenceToucher interface {
	TouchPeer(peerID string)
}

type Config struct {
	SignalTTL          time.Duration
	SweepInterval      time.Duration
	DefaultPollTimeout time.Duration
	MaxPollTimeout     time.Duration
}

// waiter is one blocked long-poll. ch is buffered so the resolving
// goroutine never blocks; each waiter is resolved exactly once.
type waiter struct {
	ch    chan []models.SignalEntry
	timer *time.Timer
}

// Router owns per-peer outbound queues, registered push channels, and
// pending poll waiters. It mirrors room membership from presence
// events rather than reading registry state directly.
type Router struct {
	mu       sync.Mutex
	queues   map[string][]models.SignalEntry
	channels map[string]PushChannel
	waiters  map[string]*waiter

	roomPeers map[string]map[string]struct{}
	peerRooms map[string]map[string]struct{}

	presence PresenceToucher
	cfg      Config
	stop     chan struct{}
	stopOnce sync.Once
}

type Stats struct {
	SignalQueues   int
	QueuedSignals  int
	ActiveChannels int
	PendingPolls   int
}

func NewRouter(cfg Config, toucher PresenceToucher) *Router {
	if cfg.DefaultPollTimeout <= 0 {
		cfg.DefaultPollTimeout = 25 * time.Second
	}
	if cfg.MaxPollTimeout < cfg.DefaultPollTimeout {
		cfg.MaxPollTimeout = cfg.DefaultPollTimeout
	}
	rt := &Router{
		queues:    make(map[string][]models.SignalEntry),
		channels:  make(map[string]PushChannel),
		waiters:   make(map[string]*waiter),
		roomPeers: make(map[string]map[string]struct{}),
		peerRooms: make(map[string]map[string]struct{}),
		presence:  toucher,
		cfg:       cfg,
		stop:      make(chan struct{}),
	}
	if cfg.SweepInterval > 0 && cfg.SignalTTL > 0 {
		go rt.run()
	}
	return rt
}

// QueueSignal validates and routes one signaling payload. A non-empty
// to addresses a single peer; otherwise the signal fans out to every
// member of room except the sender. Push is attempted first; failures
// fall back to the destination's queue.
func (rt *Router) QueueSignal(from, to string, sigType models.SignalType, payload any, room string) models.DeliveryResult {
	if !sigType.ValidRelay() {
		return models.DeliveryResult{Error: models.ErrInvalidType}
	}
	if to == "" && room == "" {
		return models.DeliveryResult{Error: models.ErrMissingTarget}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if to != "" {
		delivered := rt.deliverLocked(to, models.SignalEntry{
			ID:        uuid.NewString(),
			From:      from,
			Type:      sigType,
			Payload:   payload,
			Room:      room,
			Timestamp: time.Now(),
		})
		return models.DeliveryResult{Success: true, Delivered: delivered, Queued: !delivered}
	}

	queued := false
	for peerID := range rt.roomPeers[room] {
		if peerID == from {
			continue
		}
		entry := models.SignalEntry{
			ID:        uuid.NewString(),
			From:      from,
			Type:      sigType,
			Payload:   payload,
			Room:      room,
			Timestamp: time.Now(),
		}
		if !rt.deliverLocked(peerID, entry) {
			queued = true
		}
	}
	return models.DeliveryResult{Success: true, Delivered: !queued, Queued: queued}
}

// deliverLocked pushes the entry through the destination's channel if
// one is open, otherwise queues it and wakes any pending poll. Reports
// whether the push succeeded.
func (rt *Router) deliverLocked(to string, entry models.SignalEntry) bool {
	if ch, ok := rt.channels[to]; ok && ch != nil {
		if ch.TrySend(entry) {
			return true
		}
		log.Printf("Push to %s failed, queueing %s signal", to, entry.Type)
	}
	rt.queues[to] = append(rt.queues[to], entry)
	if w, ok := rt.waiters[to]; ok {
		rt.resolveWaiterLocked(to, w, rt.drainLocked(to))
	}
	return false
}

// Poll returns the peer's queued signals, blocking until one arrives
// or timeout elapses. An empty result on timeout is normal. A newer
// poll for the same peer supersedes the previous one, which completes
// empty.
func (rt *Router) Poll(ctx context.Context, peerID string, timeout time.Duration) []models.SignalEntry {
	if rt.presence != nil {
		rt.presence.TouchPeer(peerID)
	}
	if timeout <= 0 {
		timeout = rt.cfg.DefaultPollTimeout
	}
	if timeout > rt.cfg.MaxPollTimeout {
		timeout = rt.cfg.MaxPollTimeout
	}

	rt.mu.Lock()
	if entries := rt.drainLocked(peerID); len(entries) > 0 {
		rt.mu.Unlock()
		return entries
	}
	if prev, ok := rt.waiters[peerID]; ok {
		rt.resolveWaiterLocked(peerID, prev, nil)
	}
	w := &waiter{ch: make(chan []models.SignalEntry, 1)}
	w.timer = time.AfterFunc(timeout, func() { rt.expireWaiter(peerID, w) })
	rt.waiters[peerID] = w
	rt.mu.Unlock()

	select {
	case entries := <-w.ch:
		return entries
	case <-ctx.Done():
		rt.abandonWaiter(peerID, w)
		return nil
	}
}

// drainLocked empties the peer's queue, leaving the empty queue in
// place for the sweep to collect.
func (rt *Router) drainLocked(peerID string) []models.SignalEntry {
	entries := rt.queues[peerID]
	if len(entries) == 0 {
		return nil
	}
	rt.queues[peerID] = nil
	return entries
}

// resolveWaiterLocked completes w with entries if it is still the
// peer's registered waiter, cancelling its timeout.
func (rt *Router) resolveWaiterLocked(peerID string, w *waiter, entries []models.SignalEntry) {
	if rt.waiters[peerID] != w {
		return
	}
	delete(rt.waiters, peerID)
	w.timer.Stop()
	w.ch <- entries
}

func (rt *Router) expireWaiter(peerID string, w *waiter) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.resolveWaiterLocked(peerID, w, nil)
}

// abandonWaiter withdraws a poll whose caller went away. If a resolve
// won the race, its entries are pushed back to the queue front so they
// survive for the next poll.
func (rt *Router) abandonWaiter(peerID string, w *waiter) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.waiters[peerID] == w {
		delete(rt.waiters, peerID)
		w.timer.Stop()
		return
	}
	select {
	case entries := <-w.ch:
		if len(entries) > 0 {
			rt.queues[peerID] = append(entries, rt.queues[peerID]...)
			if cur, ok := rt.waiters[peerID]; ok {
				rt.resolveWaiterLocked(peerID, cur, rt.drainLocked(peerID))
			}
		}
	default:
	}
}

// RegisterChannel installs the peer's push channel, closing any
// previous one, then flushes queued signals in order. A failed send
// stops the flush and leaves the unsent remainder queued.
func (rt *Router) RegisterChannel(peerID string, ch PushChannel) {
	rt.mu.Lock()
	prev := rt.channels[peerID]
	rt.channels[peerID] = ch

	pending := rt.queues[peerID]
	sent := 0
	for _, entry := range pending {
		if !ch.TrySend(entry) {
			break
		}
		sent++
	}
	if sent > 0 {
		if sent == len(pending) {
			rt.queues[peerID] = nil
		} else {
			rt.queues[peerID] = pending[sent:]
		}
	}
	rt.mu.Unlock()

	if prev != nil && prev != ch {
		prev.Close()
	}
}

// UnregisterChannel detaches the peer's push channel without touching
// its queue. A non-nil ch detaches only when it is still the one
// registered, so a stale connection cannot tear down its replacement.
func (rt *Router) UnregisterChannel(peerID string, ch PushChannel) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	cur, ok := rt.channels[peerID]
	if !ok {
		return false
	}
	if ch != nil && cur != ch {
		return false
	}
	delete(rt.channels, peerID)
	return true
}

func (rt *Router) HasChannel(peerID string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.channels[peerID]
	return ok
}

// HandleEvent maintains the router's membership view and fans out
// lifecycle notifications. Called synchronously from the presence
// registry's observer hook.
func (rt *Router) HandleEvent(ev presence.Event) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	switch ev.Type {
	case presence.EventPeerJoined:
		if rt.roomPeers[ev.Room] == nil {
			rt.roomPeers[ev.Room] = make(map[string]struct{})
		}
		rt.roomPeers[ev.Room][ev.PeerID] = struct{}{}
		if rt.peerRooms[ev.PeerID] == nil {
			rt.peerRooms[ev.PeerID] = make(map[string]struct{})
		}
		rt.peerRooms[ev.PeerID][ev.Room] = struct{}{}
		if _, ok := rt.queues[ev.PeerID]; !ok {
			rt.queues[ev.PeerID] = nil
		}
		rt.notifyRoomLocked(ev.Room, models.SignalTypePeerJoined, map[string]any{
			"peerId":   ev.PeerID,
			"metadata": ev.Metadata,
		}, ev.PeerID)

	case presence.EventPeerLeft:
		if peers, ok := rt.roomPeers[ev.Room]; ok {
			delete(peers, ev.PeerID)
			if len(peers) == 0 {
				delete(rt.roomPeers, ev.Room)
			}
		}
		if rooms, ok := rt.peerRooms[ev.PeerID]; ok {
			delete(rooms, ev.Room)
			if len(rooms) == 0 {
				delete(rt.peerRooms, ev.PeerID)
				rt.cleanupPeerLocked(ev.PeerID)
			}
		}
		rt.notifyRoomLocked(ev.Room, models.SignalTypePeerLeft, map[string]any{
			"peerId": ev.PeerID,
			"reason": ev.Reason,
		}, ev.PeerID)
	}
}

// NotifyRoom fans a system signal out to every member of the room
// except exclude, using the same push-then-queue path as QueueSignal.
func (rt *Router) NotifyRoom(room string, sigType models.SignalType, payload any, exclude string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.notifyRoomLocked(room, sigType, payload, exclude)
}

func (rt *Router) notifyRoomLocked(room string, sigType models.SignalType, payload any, exclude string) {
	for peerID := range rt.roomPeers[room] {
		if peerID == exclude {
			continue
		}
		rt.deliverLocked(peerID, models.SignalEntry{
			ID:        uuid.NewString(),
			From:      models.SystemPeerID,
			Type:      sigType,
			Payload:   payload,
			Room:      room,
			Timestamp: time.Now(),
		})
	}
}

// CleanupPeer tears down the peer's channel, queue, and pending poll.
// Safe to call repeatedly.
func (rt *Router) CleanupPeer(peerID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cleanupPeerLocked(peerID)
}

func (rt *Router) cleanupPeerLocked(peerID string) {
	if ch, ok := rt.channels[peerID]; ok {
		delete(rt.channels, peerID)
		if ch != nil {
			ch.Close()
		}
	}
	delete(rt.queues, peerID)
	if w, ok := rt.waiters[peerID]; ok {
		rt.resolveWaiterLocked(peerID, w, nil)
	}
}

// SweepStale discards queued entries whose timestamp is at or before
// cutoff and deletes queues left empty. Returns the number dropped.
func (rt *Router) SweepStale(cutoff time.Time) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	dropped := 0
	for peerID, entries := range rt.queues {
		kept := entries[:0]
		for _, e := range entries {
			if e.Timestamp.After(cutoff) {
				kept = append(kept, e)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(rt.queues, peerID)
		} else {
			rt.queues[peerID] = kept
		}
	}
	return dropped
}

func (rt *Router) GetStats() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	queued := 0
	for _, entries := range rt.queues {
		queued += len(entries)
	}
	return Stats{
		SignalQueues:   len(rt.queues),
		QueuedSignals:  queued,
		ActiveChannels: len(rt.channels),
		PendingPolls:   len(rt.waiters),
	}
}

// run sweeps expired signals on the configured cadence until Close.
func (rt *Router) run() {
	ticker := time.NewTicker(rt.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := rt.SweepStale(time.Now().Add(-rt.cfg.SignalTTL)); n > 0 {
				log.Printf("Swept %d expired signal(s)", n)
			}
		case <-rt.stop:
			return
		}
	}
}

// Close stops the sweeper, resolves every pending poll empty, and
// closes all registered channels.
func (rt *Router) Close() {
	rt.stopOnce.Do(func() { close(rt.stop) })

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for peerID, w := range rt.waiters {
		rt.resolveWaiterLocked(peerID, w, nil)
	}
	for peerID, ch := range rt.channels {
		delete(rt.channels, peerID)
		if ch != nil {
			ch.Close()
		}
	}
}
