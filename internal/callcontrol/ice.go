package callcontrol

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// ICESettleWindow and ICEGatherCeiling implement spec.md §4.3 "ICE
// gathering settle": gathering is considered complete when either the
// transport reports complete, a null candidate is observed, the
// settle window elapses with no new candidate, or the hard ceiling
// elapses.
const (
	ICESettleWindow = 250 * time.Millisecond
	ICEGatherCeiling = 1500 * time.Millisecond
)

// resetGatheringLocked clears the local candidate buffer and arms a
// fresh settle/ceiling timer pair. Must be called with c.mu held.
func (c *Controller) resetGatheringLocked() {
	c.localCandidates = nil
	c.gatherDone = make(chan struct{})
	c.gatherOnce = sync.Once{}

	if c.gatherSettle != nil {
		c.gatherSettle.Stop()
	}
	if c.gatherCeiling != nil {
		c.gatherCeiling.Stop()
	}

	c.gatherSettle = time.AfterFunc(ICESettleWindow, c.signalGatherDone)
	c.gatherCeiling = time.AfterFunc(ICEGatherCeiling, c.signalGatherDone)
}

// signalGatherDone closes gatherDone exactly once. Safe to call from
// multiple timers and from onICECandidate.
func (c *Controller) signalGatherDone() {
	c.mu.Lock()
	done := c.gatherDone
	c.gatherOnce.Do(func() {
		close(done)
	})
	c.mu.Unlock()
}

// onICECandidate is the transport's candidate callback. A nil
// candidate marks end-of-candidates (condition (b) of the settle
// rule); any other candidate resets the settle timer (condition (c)).
func (c *Controller) onICECandidate(candidate *webrtc.ICECandidate) {
	c.mu.Lock()
	if candidate == nil {
		c.mu.Unlock()
		c.signalGatherDone()
		return
	}
	init := candidate.ToJSON()
	c.localCandidates = append(c.localCandidates, init)
	if c.gatherSettle != nil {
		c.gatherSettle.Reset(ICESettleWindow)
	}
	c.mu.Unlock()
}

// awaitGathering blocks until candidate gathering settles by any of
// the four conditions in spec.md §4.3, including the transport
// reporting ICEGatheringStateComplete.
func (c *Controller) awaitGathering() {
	c.mu.Lock()
	done := c.gatherDone
	complete := c.pc.ICEGatheringState() == webrtc.ICEGatheringStateComplete
	c.mu.Unlock()

	if complete {
		c.signalGatherDone()
	}

	<-done
}

// localCandidateStrings returns the gathered candidates rendered as
// SDP candidate-attribute strings, capped at
// models.MaxCandidatesPerPacket, the bound the receiving side's
// offer/answer payload validation enforces.
func (c *Controller) localCandidateStrings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.localCandidates))
	for _, cand := range c.localCandidates {
		if len(out) == models.MaxCandidatesPerPacket {
			break
		}
		out = append(out, cand.Candidate)
	}
	return out
}

// ingestCandidate adds a single remote candidate to the transport
// peer. Each failure is silently ignored: duplicates and incompatible
// candidates are expected (spec.md §4.3, "Answer flow").
func (c *Controller) ingestCandidate(candidate string) {
	_ = c.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}
