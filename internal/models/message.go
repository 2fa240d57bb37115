package models

import (
	"encoding/json"
	"time"
)

// RelayMessageType is the type field of a rendezvous message-session
// frame. Four types are relayed between peers; heartbeat is echoed;
// session-joined/peer-joined/peer-left/error are server-emitted only.
type RelayMessageType string

const (
	RelayOffer         RelayMessageType = "offer"
	RelayAnswer        RelayMessageType = "answer"
	RelayICECandidate  RelayMessageType = "ice-candidate"
	RelayChat          RelayMessageType = "chat"
	RelayHeartbeat     RelayMessageType = "heartbeat"
	RelaySessionJoined RelayMessageType = "session-joined"
	RelayPeerJoined    RelayMessageType = "peer-joined"
	RelayPeerLeft      RelayMessageType = "peer-left"
	RelayError         RelayMessageType = "error"
)

// relayableTypes are the message types a peer may ask the broker to
// forward to another peer in the same room.
var relayableTypes = map[RelayMessageType]bool{
	RelayOffer:        true,
	RelayAnswer:       true,
	RelayICECandidate: true,
	RelayChat:         true,
}

// IsRelayable reports whether t is one of the four types the broker
// forwards between peers (spec.md §4.6, "Allowed relay types").
func IsRelayable(t RelayMessageType) bool {
	return relayableTypes[t]
}

// RelayFrame is the JSON shape of every message-session frame, both
// inbound (peer -> broker) and outbound (broker -> peer).
type RelayFrame struct {
	Type       RelayMessageType `json:"type"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	FromPeerID string           `json:"fromPeerId,omitempty"`
	ToPeerID   string           `json:"toPeerId,omitempty"`
	RoomID     string           `json:"roomId,omitempty"`
	Timestamp  *time.Time       `json:"timestamp,omitempty"`
}

// SessionJoinedPayload is sent to a newly admitted peer.
type SessionJoinedPayload struct {
	ParticipantCount int `json:"participantCount"`
}

// PeerJoinedPayload is broadcast to existing peers when a new one is admitted.
type PeerJoinedPayload struct {
	Role Role `json:"role"`
}

// ChatPayload is the payload shape required for RelayChat frames.
type ChatPayload struct {
	Text string `json:"text"`
}

// ErrorPayload is the payload of a server-emitted error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
