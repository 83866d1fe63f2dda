package models

import "time"

// Member is a room join record as returned to clients. Name mirrors
// metadata["name"] when the joining client supplied one.
type Member struct {
	PeerID   string         `json:"peerId"`
	Name     string         `json:"name,omitempty"`
	JoinedAt time.Time      `json:"joinedAt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PeerStatus is a row in the peers listing. Online means the peer has an
// open push channel or was seen within the inactivity window.
type PeerStatus struct {
	PeerID   string         `json:"peerId"`
	Name     string         `json:"name,omitempty"`
	Online   bool           `json:"online"`
	LastSeen time.Time      `json:"lastSeen"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RoomInfo describes a room. CreatedBy is empty for default and
// lazily-created rooms.
type RoomInfo struct {
	Name      string    `json:"name"`
	PeerCount int       `json:"peerCount"`
	MaxPeers  int       `json:"maxPeers"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}
