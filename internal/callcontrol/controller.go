// Package callcontrol implements the local call controller: the
// state machine that drives session-description exchange, ICE
// candidate gathering with settle-based termination, the in-call
// control channel, and the connect watchdog (spec.md §4.3).
//
// The transport peer, local media source, and the underlying
// real-time-transport stack are all collaborators the spec treats as
// opaque (spec.md §1 Scope); here they are backed concretely by
// github.com/pion/webrtc/v4, the same library
// bureau-foundation-bureau's transport package and
// iamprashant-voice-ai's WebRTC streamers use.
package callcontrol

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/deveshpat/p2p-video-calling-secure/internal/apperr"
	"github.com/deveshpat/p2p-video-calling-secure/internal/diagnostics"
	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
	"github.com/deveshpat/p2p-video-calling-secure/internal/quality"
)

// ConnectWatchdogTimeout is how long the controller waits for the
// connection to reach Connected before reporting CONNECTION_TIMEOUT.
const ConnectWatchdogTimeout = 25 * time.Second

// StatsInterval is how often the stats loop samples the transport.
const StatsInterval = 1000 * time.Millisecond

// MediaSource is the opaque local audio/video producer the call
// controller attaches to the transport peer. Implementations own
// their own tracks; the controller only reads Tracks() and, for
// local media control, calls SetAudioEnabled/SetVideoEnabled and
// ApplyVideoConstraints.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	// ApplyVideoConstraints attempts to constrain the local video
	// track to the given dimensions/frame rate. Implementations must
	// tolerate failure silently (spec.md §4.3).
	ApplyVideoConstraints(width, height, fps int) error
	AudioLevel() float64
}

// Role distinguishes the host (offerer) from the joiner (answerer).
type Role string

const (
	RoleHost   Role = "host"
	RoleJoiner Role = "joiner"
)

// ConnectionState mirrors the transport's connection state, exposed
// to callers via OnStateChange.
type ConnectionState string

const (
	StateNew        ConnectionState = "new"
	StateConnecting ConnectionState = "connecting"
	StateConnected  ConnectionState = "connected"
	StateFailed     ConnectionState = "failed"
	StateClosed     ConnectionState = "closed"
)

// Handlers are the callbacks a controller invokes. All are optional;
// nil handlers are simply skipped. Handlers run on whatever goroutine
// the underlying transport invokes its own callbacks on — callers
// must not assume a single-threaded caller despite the conceptual
// single-threaded event-loop model of spec.md §5.
type Handlers struct {
	OnStateChange      func(ConnectionState)
	OnRemoteMediaState func(audioEnabled, videoEnabled bool, timestamp time.Time)
	OnChatMessage      func(text string, timestamp time.Time)
	OnError            func(*apperr.Error)
}

// Controller is the local session state machine described in
// spec.md §4.3. It exclusively owns its transport peer, its candidate
// list, its data channels, and its timers.
type Controller struct {
	mu sync.Mutex

	role   Role
	pc     *webrtc.PeerConnection
	media  MediaSource
	handlers Handlers

	sessionID string

	localCandidates []webrtc.ICECandidateInit
	gatherDone      chan struct{}
	gatherOnce      sync.Once
	gatherSettle    *time.Timer
	gatherCeiling   *time.Timer

	connectWatchdog *time.Timer
	statsTicker     *time.Ticker
	statsStop       chan struct{}

	chatChan *webrtc.DataChannel
	diagChan *webrtc.DataChannel
	lastChatSent time.Time

	localAudioEnabled bool
	localVideoEnabled bool

	diagLog *diagnostics.Log
	quality *quality.Controller

	lastBytesSent uint64
	lastStatsAt   time.Time

	state     ConnectionState
	closed    bool
	closeOnce sync.Once
}

// NewHost constructs a controller for the offering side. It attaches
// local media, registers handlers, and creates the chat/diag data
// channels immediately (spec.md §4.3, "Data channels").
func NewHost(media MediaSource, iceServers []webrtc.ICEServer, handlers Handlers) (*Controller, error) {
	c, err := newController(RoleHost, media, iceServers, handlers)
	if err != nil {
		return nil, err
	}
	if err := c.createDataChannels(); err != nil {
		c.pc.Close()
		return nil, err
	}
	return c, nil
}

// NewJoiner constructs a controller for the answering side. The
// joiner receives its data channels via OnDataChannel rather than
// creating them.
func NewJoiner(media MediaSource, iceServers []webrtc.ICEServer, handlers Handlers) (*Controller, error) {
	return newController(RoleJoiner, media, iceServers, handlers)
}

func newController(role Role, media MediaSource, iceServers []webrtc.ICEServer, handlers Handlers) (*Controller, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	c := &Controller{
		role:     role,
		pc:       pc,
		media:    media,
		handlers: handlers,
		diagLog:  diagnostics.New(),
		quality:  quality.New(),
		state:    StateNew,
		statsStop: make(chan struct{}),
		localAudioEnabled: true,
		localVideoEnabled: true,
	}

	for _, track := range media.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("attaching local track: %w", err)
		}
	}

	pc.OnICECandidate(c.onICECandidate)
	pc.OnConnectionStateChange(c.onConnectionStateChange)
	if role == RoleJoiner {
		pc.OnDataChannel(c.onDataChannel)
	}

	return c, nil
}

// Close clears all timers, closes both data channels and the
// transport peer. Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.stopTimersLocked()
		chat, diag := c.chatChan, c.diagChan
		pc := c.pc
		c.mu.Unlock()

		if chat != nil {
			chat.Close()
		}
		if diag != nil {
			diag.Close()
		}
		pc.Close()
	})
}

func (c *Controller) stopTimersLocked() {
	if c.gatherSettle != nil {
		c.gatherSettle.Stop()
	}
	if c.gatherCeiling != nil {
		c.gatherCeiling.Stop()
	}
	if c.connectWatchdog != nil {
		c.connectWatchdog.Stop()
	}
	if c.statsTicker != nil {
		c.statsTicker.Stop()
		close(c.statsStop)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) emitError(e *apperr.Error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(e)
	}
}

func newSessionID() string {
	return uuid.NewString()
}
