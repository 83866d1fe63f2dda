package models

// Frame is the websocket wire format. Every message in either direction
// is one Frame; Type selects which of the optional fields are set.
type Frame struct {
	Type     SignalType     `json:"type"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Room     string         `json:"room,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Success  bool           `json:"success,omitempty"`
	Peers    []Member       `json:"peers,omitempty"`
	Error    string         `json:"error,omitempty"`
}
