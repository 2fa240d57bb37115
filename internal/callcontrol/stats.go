package callcontrol

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// startStatsLoop begins sampling the transport once per StatsInterval.
// It runs until Close stops the ticker and closes statsStop.
func (c *Controller) startStatsLoop() {
	c.mu.Lock()
	if c.statsTicker != nil {
		c.mu.Unlock()
		return
	}
	c.statsTicker = time.NewTicker(StatsInterval)
	ticker := c.statsTicker
	stop := c.statsStop
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.sampleOnce()
			}
		}
	}()
}

// sampleOnce projects the transport's current stats report into a
// models.QualitySample, feeds it through the quality controller,
// applies any resulting decision to the local media source, and
// records the sample in the diagnostics log (spec.md §4.3 "Stats
// loop", §4.4, §4.5).
func (c *Controller) sampleOnce() {
	report := c.pc.GetStats()
	sample, diag := c.projectStats(report)

	c.diagLog.AppendLocal(diag)
	c.sendDiag(diag)

	prev := c.quality.Current()
	newState, changed := c.quality.Observe(sample)
	if !changed {
		return
	}

	if newState == models.QualityRecovering {
		target := models.StepUp(prev)
		c.quality.ForceState(target)
		newState = target
	}

	c.applyQualityState(newState)

	c.diagLog.AppendLocal(models.DiagnosticsEvent{
		Timestamp: time.Now(),
		EventType: models.EventQualityChange,
		Message:   string(newState),
	})
}

// projectStats derives a QualitySample and the corresponding
// diagnostics event from one webrtc.StatsReport, walking outbound,
// remote-inbound, inbound, and candidate-pair entries. Fields it
// cannot find remain zero rather than erroring: a missing metric
// should degrade telemetry, not the call (spec.md §4.3).
func (c *Controller) projectStats(report webrtc.StatsReport) (models.QualitySample, models.DiagnosticsEvent) {
	var sample models.QualitySample
	now := time.Now()

	var bytesSent uint64
	var haveBytesSent bool

	for _, raw := range report {
		switch stat := raw.(type) {
		case webrtc.OutboundRTPStreamStats:
			bytesSent += stat.BytesSent
			haveBytesSent = true
			if stat.Kind == "video" {
				sample.FrameWidth = int(stat.FrameWidth)
				sample.FrameHeight = int(stat.FrameHeight)
				sample.FPS = stat.FramesPerSecond
			}
		case webrtc.RemoteInboundRTPStreamStats:
			sample.RTTMs = stat.RoundTripTime * 1000
			if stat.FractionLost > 0 {
				sample.PacketLossPct = stat.FractionLost * 100
			}
		case webrtc.InboundRTPStreamStats:
			sample.JitterMs = stat.Jitter * 1000
			if stat.Kind == "audio" {
				sample.AudioLevel = c.media.AudioLevel()
			}
		case webrtc.CandidatePairStats:
			if stat.Nominated && sample.RTTMs == 0 {
				sample.RTTMs = stat.CurrentRoundTripTime * 1000
			}
		}
	}

	c.mu.Lock()
	if haveBytesSent && !c.lastStatsAt.IsZero() {
		elapsed := now.Sub(c.lastStatsAt).Seconds()
		if elapsed > 0 && bytesSent >= c.lastBytesSent {
			sample.BitrateKbps = float64(bytesSent-c.lastBytesSent) * 8 / 1000 / elapsed
		}
	}
	c.lastBytesSent = bytesSent
	c.lastStatsAt = now
	c.mu.Unlock()

	if sample.AudioLevel == 0 {
		sample.AudioLevel = c.media.AudioLevel()
	}

	diag := models.DiagnosticsEvent{
		Timestamp:     now,
		RTTMs:         sample.RTTMs,
		JitterMs:      sample.JitterMs,
		PacketLossPct: sample.PacketLossPct,
		BitrateKbps:   sample.BitrateKbps,
		FrameWidth:    sample.FrameWidth,
		FrameHeight:   sample.FrameHeight,
		FPS:           sample.FPS,
		AudioLevel:    sample.AudioLevel,
		EventType:     models.EventSample,
	}
	return sample, diag
}

// applyQualityState pushes a new ladder rung's profile down to both
// the transport peer and the local media source. The bitrate cap and
// the dimension/frame rate constraint are applied as two independent,
// separately-failure-isolated updates: either may fail against a
// sender or encoder that doesn't support mid-call renegotiation, and
// neither failure may tear down the call (spec.md §4.3, §9).
func (c *Controller) applyQualityState(state models.QualityState) {
	profile, ok := models.QualityProfiles[state]
	if !ok {
		return
	}
	c.applyBitrateCap(profile.MaxBitrateKbps)
	_ = c.media.ApplyVideoConstraints(profile.Width, profile.Height, defaultTargetFPS)
}

// applyBitrateCap pushes maxBitrateKbps onto the video RTPSender's
// first encoding, best-effort: SetParameters is rejected by some
// encoders mid-call, and that failure must not tear down the call
// (spec.md §4.3, §9).
func (c *Controller) applyBitrateCap(maxBitrateKbps int) {
	for _, sender := range c.pc.GetSenders() {
		track := sender.Track()
		if track == nil || track.Kind() != webrtc.RTPCodecTypeVideo {
			continue
		}
		params := sender.GetParameters()
		if len(params.Encodings) == 0 {
			continue
		}
		params.Encodings[0].MaxBitrate = uint64(maxBitrateKbps) * 1000
		_ = sender.SetParameters(params)
	}
}

// defaultTargetFPS is the frame rate requested alongside each ladder
// rung's dimensions; the spec's profiles constrain bitrate and
// resolution only, so frame rate is held constant across rungs.
const defaultTargetFPS = 30

// sendDiag serializes a diagnostics event and sends it over the diag
// channel, best-effort.
func (c *Controller) sendDiag(e models.DiagnosticsEvent) {
	c.mu.Lock()
	diag := c.diagChan
	c.mu.Unlock()
	if diag == nil {
		return
	}
	_ = sendJSON(diag, channelMsgDiag, e)
}

// handleRemoteDiagMessage decodes one peer-sent diagnostics event and
// records it in the remote sequence of the diagnostics log. Malformed
// payloads are dropped silently, matching the other channel-message
// handlers.
func (c *Controller) handleRemoteDiagMessage(payload json.RawMessage) {
	var e models.DiagnosticsEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return
	}
	c.diagLog.AppendRemote(e)
}

// DiagnosticsExport returns the merged local/remote diagnostics
// export for this call (spec.md §4.5).
func (c *Controller) DiagnosticsExport() models.MergedExport {
	return c.diagLog.ExportMergedJSON()
}

// CurrentQuality returns the controller's current quality state.
func (c *Controller) CurrentQuality() models.QualityState {
	return c.quality.Current()
}
