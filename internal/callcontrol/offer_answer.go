package callcontrol

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/deveshpat/p2p-video-calling-secure/internal/apperr"
	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// CreateOffer drives the host's offer flow (spec.md §4.3, "Offer flow
// (host)"): clear the local candidate buffer, create the offer, set
// the local description, await candidate gathering, start the
// connect watchdog, and return the offer payload.
func (c *Controller) CreateOffer(clientInfo models.ClientInfo) (*models.OfferPayload, error) {
	c.mu.Lock()
	if c.role != RoleHost {
		c.mu.Unlock()
		return nil, fmt.Errorf("CreateOffer is only valid for the host role")
	}
	c.sessionID = newSessionID()
	c.resetGatheringLocked()
	c.mu.Unlock()

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	c.awaitGathering()
	c.startConnectWatchdog()

	local := c.pc.LocalDescription()
	return &models.OfferPayload{
		SessionID:     c.sessionID,
		SDPOffer:      local.SDP,
		ICECandidates: c.localCandidateStrings(),
		MediaTarget:   models.DefaultMediaTarget,
		ClientInfo:    clientInfo,
	}, nil
}

// CreateAnswer drives the joiner's answer flow (spec.md §4.3, "Answer
// flow (joiner)"): adopt the offer's sessionId, set the remote
// description, ingest the offer's candidates, clear the local
// candidate buffer, create the answer, set the local description,
// await candidate gathering, start the connect watchdog, and return
// the answer payload.
func (c *Controller) CreateAnswer(offer *models.OfferPayload, clientInfo models.ClientInfo) (*models.AnswerPayload, error) {
	c.mu.Lock()
	if c.role != RoleJoiner {
		c.mu.Unlock()
		return nil, fmt.Errorf("CreateAnswer is only valid for the joiner role")
	}
	c.sessionID = offer.SessionID
	c.mu.Unlock()

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDPOffer}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	for _, candidate := range offer.ICECandidates {
		c.ingestCandidate(candidate)
	}

	c.mu.Lock()
	c.resetGatheringLocked()
	c.mu.Unlock()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	c.awaitGathering()
	c.startConnectWatchdog()

	local := c.pc.LocalDescription()
	return &models.AnswerPayload{
		SessionID:           c.sessionID,
		SDPAnswer:           local.SDP,
		ICECandidates:       c.localCandidateStrings(),
		AcceptedMediaTarget: offer.MediaTarget,
		ClientInfo:          clientInfo,
	}, nil
}

// ApplyAnswer completes the host side of the exchange: rejects a
// mismatched sessionId, sets the remote description, and ingests the
// answer's candidates.
func (c *Controller) ApplyAnswer(answer *models.AnswerPayload) error {
	c.mu.Lock()
	expected := c.sessionID
	c.mu.Unlock()

	if answer.SessionID != expected {
		return apperr.New(apperr.CodeMediaUnsupported, "answer session id does not match the offer")
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDPAnswer}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	for _, candidate := range answer.ICECandidates {
		c.ingestCandidate(candidate)
	}
	return nil
}

// startConnectWatchdog arms the 25-second connect watchdog. On fire,
// if the connection has not reached Connected, it reports
// CONNECTION_TIMEOUT.
func (c *Controller) startConnectWatchdog() {
	c.mu.Lock()
	if c.connectWatchdog != nil {
		c.connectWatchdog.Stop()
	}
	c.connectWatchdog = time.AfterFunc(ConnectWatchdogTimeout, c.onConnectWatchdogFired)
	c.mu.Unlock()
}

func (c *Controller) onConnectWatchdogFired() {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected && !c.isClosed() {
		c.emitError(apperr.New(apperr.CodeConnectionTimeout, "connection did not reach connected state within 25s"))
	}
}

// onConnectionStateChange updates the exposed connection state and
// invokes the state-change handler. On Connected: cancel the
// watchdog and start the stats loop. On Failed: report NAT_BLOCKED.
func (c *Controller) onConnectionStateChange(state webrtc.PeerConnectionState) {
	var mapped ConnectionState
	switch state {
	case webrtc.PeerConnectionStateNew:
		mapped = StateNew
	case webrtc.PeerConnectionStateConnecting:
		mapped = StateConnecting
	case webrtc.PeerConnectionStateConnected:
		mapped = StateConnected
	case webrtc.PeerConnectionStateFailed:
		mapped = StateFailed
	case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
		mapped = StateClosed
	default:
		mapped = StateNew
	}

	c.mu.Lock()
	c.state = mapped
	c.mu.Unlock()

	if c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(mapped)
	}

	switch mapped {
	case StateConnected:
		c.mu.Lock()
		if c.connectWatchdog != nil {
			c.connectWatchdog.Stop()
		}
		c.mu.Unlock()
		c.startStatsLoop()
	case StateFailed:
		if !c.isClosed() {
			c.emitError(apperr.New(apperr.CodeNATBlocked, "connection failed, likely blocked by NAT/firewall"))
		}
	}
}
