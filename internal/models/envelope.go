package models

import "time"

// EnvelopeType distinguishes an offline signal packet carrying an
// offer from one carrying an answer.
type EnvelopeType string

const (
	EnvelopeOffer  EnvelopeType = "offer"
	EnvelopeAnswer EnvelopeType = "answer"
)

// SenderRole identifies which side of the offline exchange produced
// an envelope. Host sends offers, joiner sends answers.
type SenderRole string

const (
	RoleHost   SenderRole = "host"
	RoleJoiner SenderRole = "joiner"
)

// EnvelopeVersion is the only wire version this codec understands.
const EnvelopeVersion = 1

// Envelope is the authenticated, timestamped container carrying an
// encrypted session-description payload (spec.md §3, "Signal envelope
// (version 1)"). Salt, IV, and Ciphertext are raw bytes; callers that
// need the wire representation use the codec package's url-safe
// base64 encoding.
type Envelope struct {
	Version    int          `json:"version"`
	Type       EnvelopeType `json:"type"`
	RoomCode   string       `json:"roomCode"`
	CreatedAt  time.Time    `json:"createdAt"`
	ExpiresAt  time.Time    `json:"expiresAt"`
	SenderRole SenderRole   `json:"senderRole"`
	Salt       []byte       `json:"salt"`
	IV         []byte       `json:"iv"`
	Ciphertext []byte       `json:"ciphertext"`
}

// ClientInfo is opaque metadata about the originating client, carried
// through the offer/answer payload unvalidated beyond size bounds.
type ClientInfo struct {
	UserAgent string `json:"userAgent,omitempty"`
	AppName   string `json:"appName,omitempty"`
	AppVer    string `json:"appVersion,omitempty"`
}

// OfferPayload is the decrypted contents of an offer envelope.
type OfferPayload struct {
	SessionID     string   `json:"sessionId"`
	SDPOffer      string   `json:"sdpOffer"`
	ICECandidates []string `json:"iceCandidates"`
	MediaTarget   string   `json:"mediaTarget"`
	ClientInfo    ClientInfo `json:"clientInfo"`
}

// AnswerPayload is the decrypted contents of an answer envelope.
type AnswerPayload struct {
	SessionID           string     `json:"sessionId"`
	SDPAnswer            string     `json:"sdpAnswer"`
	ICECandidates        []string   `json:"iceCandidates"`
	AcceptedMediaTarget  string     `json:"acceptedMediaTarget"`
	ClientInfo           ClientInfo `json:"clientInfo"`
}

// Data model bounds from spec.md §3.
const (
	MaxSessionDescriptionChars = 30000
	MaxCandidateChars          = 2048
	MaxCandidatesPerPacket     = 96
	MaxRoomCodeLen             = 48
	MinRoomCodeLen             = 4
	MinSaltBytes               = 16
	MinIVBytes                 = 12
	EnvelopeLifetime           = 10 * time.Minute
	DefaultMediaTarget         = "1080p30"
)
