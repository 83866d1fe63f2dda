package models

import "github.com/pion/webrtc/v4"

// JoinRequest enrolls a peer into a room.
type JoinRequest struct {
	PeerID   string         `json:"peerId" binding:"required"`
	Room     string         `json:"room" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JoinResponse carries the room roster and ICE configuration on success.
// On rejection Success is false and Error holds a machine-readable code.
type JoinResponse struct {
	Success    bool               `json:"success"`
	Room       string             `json:"room,omitempty"`
	Peers      []Member           `json:"peers,omitempty"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// LeaveRequest removes a peer from one room, or from all rooms when
// Room is empty.
type LeaveRequest struct {
	PeerID string `json:"peerId" binding:"required"`
	Room   string `json:"room,omitempty"`
}

type LeaveResponse struct {
	Success bool     `json:"success"`
	Room    string   `json:"room,omitempty"`
	Rooms   []string `json:"rooms,omitempty"`
}

// SignalRequest relays one signaling payload. To addresses a single
// peer; an empty To with a Room broadcasts to the room.
type SignalRequest struct {
	From    string     `json:"from" binding:"required"`
	To      string     `json:"to,omitempty"`
	Type    SignalType `json:"type" binding:"required"`
	Payload any        `json:"payload,omitempty"`
	Room    string     `json:"room,omitempty"`
}

// InfoResponse is the service configuration surface handed to clients
// before they connect.
type InfoResponse struct {
	Enabled     bool      `json:"enabled"`
	Rooms       []string  `json:"rooms"`
	PeerCount   int       `json:"peerCount"`
	STUNServers []string  `json:"stunServers"`
	TURNServers []string  `json:"turnServers,omitempty"`
	Stats       InfoStats `json:"stats"`
}

// InfoStats summarizes live coordinator state.
type InfoStats struct {
	Rooms          int `json:"rooms"`
	Peers          int `json:"peers"`
	SignalQueues   int `json:"signalQueues"`
	QueuedSignals  int `json:"queuedSignals"`
	ActiveChannels int `json:"activeChannels"`
	PendingPolls   int `json:"pendingPolls"`
}

// CreateRoomRequest provisions a named room with a capacity override.
type CreateRoomRequest struct {
	Name     string `json:"name,omitempty"`
	MaxPeers int    `json:"maxPeers,omitempty" binding:"omitempty,min=2,max=64"`
}

type CreateRoomResponse struct {
	Room     string `json:"room"`
	MaxPeers int    `json:"maxPeers"`
}
