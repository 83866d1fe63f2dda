package presence

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/peergrid/signaling/internal/models"
)

var (
	ErrRoomFull   = errors.New("presence: room at capacity")
	ErrRoomExists = errors.New("presence: room already exists")
)

// EventType identifies a membership lifecycle event.
type EventType string

const (
	EventPeerJoined EventType = "peer-joined"
	EventPeerLeft   EventType = "peer-left"
)

// Reasons attached to peer-left events.
const (
	ReasonExplicit = "explicit"
	ReasonTimeout  = "timeout"
)

// Event describes one membership change. Metadata is set on joins,
// Reason on leaves.
type Event struct {
	Type     EventType
	Room     string
	PeerID   string
	Metadata map[string]any
	Reason   string
}

type Config struct {
	DefaultRooms    []string
	DefaultMaxPeers int
	PeerTimeout     time.Duration
	SweepInterval   time.Duration
}

type room struct {
	name      string
	maxPeers  int
	createdAt time.Time
	createdBy string
	members   map[string]models.Member
}

type peerState struct {
	lastSeen time.Time
	rooms    map[string]struct{}
}

// Registry owns rooms and peer membership. Rooms persist while empty;
// peers exist only through membership and are dropped when they leave
// their last room.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*room
	peers     map[string]*peerState
	observers []func(Event)

	cfg      Config
	stop     chan struct{}
	stopOnce sync.Once
}

type Stats struct {
	Rooms int
	Peers int
}

func NewRegistry(cfg Config) *Registry {
	if cfg.DefaultMaxPeers <= 0 {
		cfg.DefaultMaxPeers = 10
	}
	r := &Registry{
		rooms: make(map[string]*room),
		peers: make(map[string]*peerState),
		cfg:   cfg,
		stop:  make(chan struct{}),
	}
	now := time.Now()
	for _, name := range cfg.DefaultRooms {
		r.rooms[name] = &room{
			name:      name,
			maxPeers:  cfg.DefaultMaxPeers,
			createdAt: now,
			members:   make(map[string]models.Member),
		}
	}
	if cfg.SweepInterval > 0 && cfg.PeerTimeout > 0 {
		go r.run()
	}
	return r
}

// Subscribe registers an observer for membership events. Observers run
// synchronously on the mutating goroutine while the registry lock is
// held; they must not call back into the Registry.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Registry) emitLocked(ev Event) {
	for _, fn := range r.observers {
		fn(ev)
	}
}

// JoinRoom adds peerID to the named room, creating the room on first
// use. Re-joining refreshes the member's metadata and join time. The
// returned roster includes the joining peer.
func (r *Registry) JoinRoom(peerID, roomName string, metadata map[string]any) ([]models.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomName]
	if !ok {
		rm = &room{
			name:      roomName,
			maxPeers:  r.cfg.DefaultMaxPeers,
			createdAt: time.Now(),
			members:   make(map[string]models.Member),
		}
		r.rooms[roomName] = rm
	}

	_, already := rm.members[peerID]
	if !already && len(rm.members) >= rm.maxPeers {
		return nil, ErrRoomFull
	}

	now := time.Now()
	rm.members[peerID] = models.Member{
		PeerID:   peerID,
		Name:     metadataName(metadata),
		JoinedAt: now,
		Metadata: metadata,
	}

	ps, ok := r.peers[peerID]
	if !ok {
		ps = &peerState{rooms: make(map[string]struct{})}
		r.peers[peerID] = ps
	}
	ps.lastSeen = now
	ps.rooms[roomName] = struct{}{}

	roster := make([]models.Member, 0, len(rm.members))
	for _, m := range rm.members {
		roster = append(roster, m)
	}

	r.emitLocked(Event{Type: EventPeerJoined, Room: roomName, PeerID: peerID, Metadata: metadata})
	return roster, nil
}

// LeaveRoom removes peerID from the named room. Returns false when the
// room or the membership does not exist.
func (r *Registry) LeaveRoom(peerID, roomName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveRoomLocked(peerID, roomName, ReasonExplicit)
}

func (r *Registry) leaveRoomLocked(peerID, roomName, reason string) bool {
	rm, ok := r.rooms[roomName]
	if !ok {
		return false
	}
	if _, member := rm.members[peerID]; !member {
		return false
	}
	delete(rm.members, peerID)

	if ps, ok := r.peers[peerID]; ok {
		delete(ps.rooms, roomName)
		if len(ps.rooms) == 0 {
			delete(r.peers, peerID)
		}
	}

	r.emitLocked(Event{Type: EventPeerLeft, Room: roomName, PeerID: peerID, Reason: reason})
	return true
}

// LeaveAllRooms removes peerID from every room it belongs to and
// returns the rooms left.
func (r *Registry) LeaveAllRooms(peerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveAllLocked(peerID, ReasonExplicit)
}

func (r *Registry) leaveAllLocked(peerID, reason string) []string {
	ps, ok := r.peers[peerID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ps.rooms))
	for name := range ps.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.leaveRoomLocked(peerID, name, reason)
	}
	return names
}

// TouchPeer refreshes the peer's inactivity clock. Unknown peers are a
// no-op.
func (r *Registry) TouchPeer(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok := r.peers[peerID]; ok {
		ps.lastSeen = time.Now()
	}
}

// CreateRoom provisions a named room ahead of any join.
func (r *Registry) CreateRoom(name string, maxPeers int, createdBy string) (models.RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[name]; ok {
		return models.RoomInfo{}, ErrRoomExists
	}
	if maxPeers <= 0 {
		maxPeers = r.cfg.DefaultMaxPeers
	}
	rm := &room{
		name:      name,
		maxPeers:  maxPeers,
		createdAt: time.Now(),
		createdBy: createdBy,
		members:   make(map[string]models.Member),
	}
	r.rooms[name] = rm
	return roomInfoLocked(rm), nil
}

// DestroyRoom evicts all members and deletes the room.
func (r *Registry) DestroyRoom(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return false
	}
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.leaveRoomLocked(id, name, ReasonExplicit)
	}
	delete(r.rooms, name)
	return true
}

// PruneStale evicts every peer whose last activity predates cutoff,
// as though it had left all its rooms. Returns the evicted peer ids.
func (r *Registry) PruneStale(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, ps := range r.peers {
		if ps.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		r.leaveAllLocked(id, ReasonTimeout)
	}
	return stale
}

func (r *Registry) GetPeerRooms(peerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.peers[peerID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ps.rooms))
	for name := range ps.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) GetRoomPeers(roomName string) []models.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomName]
	if !ok {
		return nil
	}
	members := make([]models.Member, 0, len(rm.members))
	for _, m := range rm.members {
		members = append(members, m)
	}
	return members
}

func (r *Registry) GetRoom(name string) (models.RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[name]
	if !ok {
		return models.RoomInfo{}, false
	}
	return roomInfoLocked(rm), true
}

func (r *Registry) GetRoomList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PeerLastSeen reports the peer's last activity time. The second
// return is false for unknown peers.
func (r *Registry) PeerLastSeen(peerID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, ok := r.peers[peerID]
	if !ok {
		return time.Time{}, false
	}
	return ps.lastSeen, true
}

func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Rooms: len(r.rooms), Peers: len(r.peers)}
}

// run evicts inactive peers on the configured cadence until Close.
func (r *Registry) run() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pruned := r.PruneStale(time.Now().Add(-r.cfg.PeerTimeout))
			if len(pruned) > 0 {
				log.Printf("Pruned %d inactive peer(s): %v", len(pruned), pruned)
			}
		case <-r.stop:
			return
		}
	}
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func roomInfoLocked(rm *room) models.RoomInfo {
	return models.RoomInfo{
		Name:      rm.name,
		PeerCount: len(rm.members),
		MaxPeers:  rm.maxPeers,
		CreatedAt: rm.createdAt,
		CreatedBy: rm.createdBy,
	}
}

func metadataName(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if name, ok := metadata["name"].(string); ok {
		return name
	}
	return ""
}
