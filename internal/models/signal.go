package models

import "time"

// SignalType identifies a signaling message. Only the relay types may be
// submitted through send-signal; the remaining values are emitted by the
// coordinator itself or belong to the websocket frame protocol.
type SignalType string

const (
	SignalTypeOffer       SignalType = "offer"
	SignalTypeAnswer      SignalType = "answer"
	SignalTypeCandidate   SignalType = "ice-candidate"
	SignalTypeRenegotiate SignalType = "renegotiate"

	// Lifecycle notifications sent on behalf of the coordinator.
	SignalTypePeerJoined SignalType = "peer-joined"
	SignalTypePeerLeft   SignalType = "peer-left"

	// Websocket frame protocol.
	SignalTypeJoin        SignalType = "join"
	SignalTypeLeave       SignalType = "leave"
	SignalTypeJoinResult  SignalType = "join-result"
	SignalTypeLeaveResult SignalType = "leave-result"
	SignalTypePing        SignalType = "ping"
	SignalTypePong        SignalType = "pong"
	SignalTypeError       SignalType = "error"
)

// SystemPeerID is the sender id on lifecycle notifications.
const SystemPeerID = "system"

// ValidRelay reports whether t may be relayed between peers.
func (t SignalType) ValidRelay() bool {
	switch t {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeCandidate, SignalTypeRenegotiate:
		return true
	}
	return false
}

// SignalEntry is the immutable envelope held in outbound queues and written
// to both transports. Payload is forwarded verbatim; the coordinator never
// interprets it. Room is set when the entry came from a room broadcast or a
// lifecycle notification.
type SignalEntry struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	Type      SignalType `json:"type"`
	Payload   any        `json:"payload,omitempty"`
	Room      string     `json:"room,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// DeliveryResult reports the outcome of a send-signal call. Exactly one of
// Delivered (pushed through an open channel) and Queued (appended to the
// destination's outbound queue) is set on success.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	Delivered bool   `json:"delivered,omitempty"`
	Queued    bool   `json:"queued,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Error codes surfaced to clients.
const (
	ErrInvalidType      = "invalid_type"
	ErrCapacityExceeded = "capacity_exceeded"
	ErrMissingTarget    = "missing_target"
	ErrRoomRequired     = "room_required"
)
