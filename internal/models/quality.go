package models

// QualityState names a rung of the active video quality ladder, plus
// the transient RECOVERING sentinel (spec.md §3, "Quality state").
type QualityState string

const (
	QualityHD1080     QualityState = "HD_1080"
	QualityHD720      QualityState = "HD_720"
	QualitySD480      QualityState = "SD_480"
	QualityRecovering QualityState = "RECOVERING"
)

// QualityProfile is the concrete encoder target for an active rung
// of the ladder. RECOVERING has no profile of its own; it is an
// in-band signal to step one rung toward HD_1080, never a persistent
// state (spec.md §9).
type QualityProfile struct {
	Width        int
	Height       int
	MaxBitrateKbps int
}

// QualityProfiles maps each active ladder rung to its encoder target.
var QualityProfiles = map[QualityState]QualityProfile{
	QualityHD1080: {Width: 1920, Height: 1080, MaxBitrateKbps: 3500},
	QualityHD720:  {Width: 1280, Height: 720, MaxBitrateKbps: 2000},
	QualitySD480:  {Width: 854, Height: 480, MaxBitrateKbps: 900},
}

// qualityLadder is ordered from best to worst; RECOVERING is not a
// member since it is never held as a resting state.
var qualityLadder = []QualityState{QualityHD1080, QualityHD720, QualitySD480}

// LadderIndex returns the position of s in the active ladder, or -1
// if s is not an active rung (e.g. RECOVERING).
func LadderIndex(s QualityState) int {
	for i, rung := range qualityLadder {
		if rung == s {
			return i
		}
	}
	return -1
}

// StepDown returns the rung one notch worse than s, or s itself if
// already at the bottom of the ladder.
func StepDown(s QualityState) QualityState {
	i := LadderIndex(s)
	if i < 0 || i == len(qualityLadder)-1 {
		return s
	}
	return qualityLadder[i+1]
}

// StepUp returns the rung one notch better than s, or s itself if
// already at the top of the ladder.
func StepUp(s QualityState) QualityState {
	i := LadderIndex(s)
	if i <= 0 {
		return s
	}
	return qualityLadder[i-1]
}

// QualitySample is one telemetry projection fed to the quality
// controller (spec.md §4.3, "Stats loop" projections).
type QualitySample struct {
	RTTMs         float64
	JitterMs      float64
	PacketLossPct float64
	BitrateKbps   float64
	FrameWidth    int
	FrameHeight   int
	FPS           float64
	AudioLevel    float64
}

// IsBad reports whether the sample crosses the degrade thresholds.
func (s QualitySample) IsBad() bool {
	return s.PacketLossPct >= 5 || s.RTTMs >= 220 || s.JitterMs >= 30
}

// IsGood reports whether the sample meets the recovery thresholds.
func (s QualitySample) IsGood() bool {
	return s.PacketLossPct <= 2 && s.RTTMs <= 130 && s.JitterMs <= 16
}
