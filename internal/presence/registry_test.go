package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(Config{
		DefaultRooms:    []string{"global"},
		DefaultMaxPeers: 10,
	})
}

func collectEvents(r *Registry) *[]Event {
	events := &[]Event{}
	r.Subscribe(func(ev Event) { *events = append(*events, ev) })
	return events
}

func TestJoinCreatesRoomAndReturnsRoster(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	roster, err := r.JoinRoom("p1", "lobby", map[string]any{"name": "Alice"})
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "p1", roster[0].PeerID)
	assert.Equal(t, "Alice", roster[0].Name)

	roster, err = r.JoinRoom("p2", "lobby", nil)
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}

func TestJoinEmitsEvent(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()
	events := collectEvents(r)

	_, err := r.JoinRoom("p1", "global", map[string]any{"name": "Alice"})
	require.NoError(t, err)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, EventPeerJoined, ev.Type)
	assert.Equal(t, "global", ev.Room)
	assert.Equal(t, "p1", ev.PeerID)
	assert.Equal(t, "Alice", ev.Metadata["name"])
}

func TestJoinCapacity(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	_, err := r.CreateRoom("test", 2, "")
	require.NoError(t, err)

	_, err = r.JoinRoom("p1", "test", nil)
	require.NoError(t, err)
	_, err = r.JoinRoom("p2", "test", nil)
	require.NoError(t, err)

	_, err = r.JoinRoom("p3", "test", nil)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Len(t, r.GetRoomPeers("test"), 2)
}

func TestRejoinDoesNotCountAgainstCapacity(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	_, err := r.CreateRoom("test", 2, "")
	require.NoError(t, err)
	_, err = r.JoinRoom("p1", "test", nil)
	require.NoError(t, err)
	_, err = r.JoinRoom("p2", "test", nil)
	require.NoError(t, err)

	roster, err := r.JoinRoom("p1", "test", map[string]any{"name": "renamed"})
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	for _, m := range r.GetRoomPeers("test") {
		if m.PeerID == "p1" {
			assert.Equal(t, "renamed", m.Name)
		}
	}
}

func TestLeaveRoom(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()
	events := collectEvents(r)

	_, err := r.JoinRoom("p1", "global", nil)
	require.NoError(t, err)

	assert.True(t, r.LeaveRoom("p1", "global"))
	assert.False(t, r.LeaveRoom("p1", "global"))
	assert.False(t, r.LeaveRoom("ghost", "global"))
	assert.False(t, r.LeaveRoom("p1", "no-such-room"))

	require.Len(t, *events, 2)
	ev := (*events)[1]
	assert.Equal(t, EventPeerLeft, ev.Type)
	assert.Equal(t, ReasonExplicit, ev.Reason)

	// Room persists while empty.
	assert.Contains(t, r.GetRoomList(), "global")
	assert.Empty(t, r.GetRoomPeers("global"))
}

func TestLeaveAllRooms(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	_, err := r.JoinRoom("p1", "a", nil)
	require.NoError(t, err)
	_, err = r.JoinRoom("p1", "b", nil)
	require.NoError(t, err)

	left := r.LeaveAllRooms("p1")
	assert.Equal(t, []string{"a", "b"}, left)
	assert.Nil(t, r.GetPeerRooms("p1"))
	assert.Nil(t, r.LeaveAllRooms("p1"))
}

func TestPeerDroppedAfterLastRoom(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	_, err := r.JoinRoom("p1", "a", nil)
	require.NoError(t, err)
	_, err = r.JoinRoom("p1", "b", nil)
	require.NoError(t, err)

	r.LeaveRoom("p1", "a")
	_, known := r.PeerLastSeen("p1")
	assert.True(t, known)

	r.LeaveRoom("p1", "b")
	_, known = r.PeerLastSeen("p1")
	assert.False(t, known)
}

func TestTouchPeer(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	_, err := r.JoinRoom("p1", "global", nil)
	require.NoError(t, err)
	before, ok := r.PeerLastSeen("p1")
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	r.TouchPeer("p1")
	after, ok := r.PeerLastSeen("p1")
	require.True(t, ok)
	assert.True(t, after.After(before))

	// Unknown peers are a no-op.
	r.TouchPeer("ghost")
	_, ok = r.PeerLastSeen("ghost")
	assert.False(t, ok)
}

func TestPruneStale(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()
	events := collectEvents(r)

	_, err := r.JoinRoom("old", "global", nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	_, err = r.JoinRoom("fresh", "global", nil)
	require.NoError(t, err)

	pruned := r.PruneStale(cutoff)
	assert.Equal(t, []string{"old"}, pruned)
	assert.Len(t, r.GetRoomPeers("global"), 1)

	last := (*events)[len(*events)-1]
	assert.Equal(t, EventPeerLeft, last.Type)
	assert.Equal(t, "old", last.PeerID)
	assert.Equal(t, ReasonTimeout, last.Reason)
}

func TestCreateRoom(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	info, err := r.CreateRoom("private", 4, "admin")
	require.NoError(t, err)
	assert.Equal(t, "private", info.Name)
	assert.Equal(t, 4, info.MaxPeers)
	assert.Equal(t, "admin", info.CreatedBy)

	_, err = r.CreateRoom("private", 4, "admin")
	assert.ErrorIs(t, err, ErrRoomExists)

	// Zero capacity falls back to the configured default.
	info, err = r.CreateRoom("open", 0, "")
	require.NoError(t, err)
	assert.Equal(t, 10, info.MaxPeers)
}

func TestDestroyRoom(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()
	events := collectEvents(r)

	_, err := r.JoinRoom("p1", "doomed", nil)
	require.NoError(t, err)
	_, err = r.JoinRoom("p2", "doomed", nil)
	require.NoError(t, err)

	assert.True(t, r.DestroyRoom("doomed"))
	assert.False(t, r.DestroyRoom("doomed"))
	assert.NotContains(t, r.GetRoomList(), "doomed")
	assert.Nil(t, r.GetPeerRooms("p1"))

	var leaves int
	for _, ev := range *events {
		if ev.Type == EventPeerLeft && ev.Room == "doomed" {
			leaves++
		}
	}
	assert.Equal(t, 2, leaves)
}

func TestDefaultRoomsPrecreated(t *testing.T) {
	r := NewRegistry(Config{DefaultRooms: []string{"global", "lobby"}, DefaultMaxPeers: 10})
	defer r.Close()

	assert.Equal(t, []string{"global", "lobby"}, r.GetRoomList())

	info, ok := r.GetRoom("lobby")
	require.True(t, ok)
	assert.Equal(t, 10, info.MaxPeers)
	assert.Empty(t, info.CreatedBy)
}

func TestGetStats(t *testing.T) {
	r := newTestRegistry()
	defer r.Close()

	_, err := r.JoinRoom("p1", "global", nil)
	require.NoError(t, err)
	_, err = r.JoinRoom("p2", "extra", nil)
	require.NoError(t, err)

	stats := r.GetStats()
	assert.Equal(t, 2, stats.Rooms)
	assert.Equal(t, 2, stats.Peers)
}

func TestSweeperEvictsInactivePeers(t *testing.T) {
	r := NewRegistry(Config{
		DefaultRooms:    []string{"global"},
		DefaultMaxPeers: 10,
		PeerTimeout:     20 * time.Millisecond,
		SweepInterval:   10 * time.Millisecond,
	})
	defer r.Close()

	_, err := r.JoinRoom("p1", "global", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(r.GetRoomPeers("global")) == 0
	}, time.Second, 5*time.Millisecond)
}
