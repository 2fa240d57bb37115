package models

import "time"

// DiagnosticsEventType labels what produced a diagnostics sample.
type DiagnosticsEventType string

const (
	EventSample       DiagnosticsEventType = "sample"
	EventQualityChange DiagnosticsEventType = "quality-change"
	EventConnection   DiagnosticsEventType = "connection"
	EventError        DiagnosticsEventType = "error"
)

// MaxDiagnosticsMessageChars bounds the free-text Message field.
const MaxDiagnosticsMessageChars = 512

// DiagnosticsRetention is how far back entries are kept; older
// entries are pruned from the tail on every insert (spec.md §3).
const DiagnosticsRetention = 15 * time.Minute

// DiagnosticsEvent is one telemetry sample or discrete event, either
// produced locally by the stats loop or received from the peer over
// the diag data channel.
type DiagnosticsEvent struct {
	Timestamp      time.Time             `json:"timestamp"`
	PeerID         string                `json:"peerId"`
	RTTMs          float64               `json:"rttMs"`
	JitterMs       float64               `json:"jitterMs"`
	PacketLossPct  float64               `json:"packetLossPct"`
	BitrateKbps    float64               `json:"bitrateKbps"`
	FrameWidth     int                   `json:"frameWidth"`
	FrameHeight    int                   `json:"frameHeight"`
	FPS            float64               `json:"fps"`
	AudioLevel     float64               `json:"audioLevel"`
	EventType      DiagnosticsEventType  `json:"eventType"`
	Message        string                `json:"message,omitempty"`
}

// MergedExport is the shape returned by exportMergedJson (spec.md §4.5).
type MergedExport struct {
	ExportedAt time.Time           `json:"exportedAt"`
	LocalCount int                 `json:"localCount"`
	RemoteCount int                `json:"remoteCount"`
	Events     []DiagnosticsEvent `json:"events"`
}
