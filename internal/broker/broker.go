package broker

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// Config holds the broker's tunables (spec.md §6, "Configuration
// (broker)"), already parsed from their environment-variable forms by
// the caller (package config).
type Config struct {
	RoomTTL         time.Duration
	CleanupInterval time.Duration
	TURN            TURNConfig
}

// Pruner is implemented by any store that accumulates state keyed by
// a time window and needs periodic eviction of stale entries — the
// REST and WS rate limiters, concretely. Registering one with
// Broker.RegisterPruner ties its cleanup to the same timer that
// evicts expired rooms (spec.md §4.6, "Lifecycle": the cleanup timer
// "evicts expired rooms... and prunes both rate-limit stores").
type Pruner interface {
	Prune()
}

// Broker owns the room registry and every live message session. All
// registry and roster mutations happen on whatever goroutine calls
// in, guarded by internal mutexes per spec.md §5's "accessed only on
// the main event loop" — a literal single execution context isn't
// available in a concurrent HTTP server, so mutexes stand in for it.
type Broker struct {
	cfg      Config
	registry *Registry

	mu       sync.Mutex
	sessions map[string]map[string]*Session // roomID -> peerID -> session
	pruners  []Pruner
	closed   bool

	stopCleanup chan struct{}
}

// New creates a broker and starts its cleanup timer.
func New(cfg Config) *Broker {
	b := &Broker{
		cfg:         cfg,
		registry:    NewRegistry(cfg.RoomTTL),
		sessions:    make(map[string]map[string]*Session),
		stopCleanup: make(chan struct{}),
	}
	go b.runCleanup()
	return b
}

// RegisterPruner adds p to the set of stores pruned on every cleanup
// tick. Callers (transport.Server, for its REST/WS rate limiters)
// register once at startup.
func (b *Broker) RegisterPruner(p Pruner) {
	b.mu.Lock()
	b.pruners = append(b.pruners, p)
	b.mu.Unlock()
}

// CreateRoom mints a new room (POST /v1/rooms).
func (b *Broker) CreateRoom() (*models.Room, error) {
	return b.registry.CreateRoom()
}

// RoomStatus returns the status response for GET /v1/rooms/:id, or
// false if the room does not exist or has expired.
func (b *Broker) RoomStatus(roomID string) (models.RoomStatusResponse, bool) {
	room, ok := b.registry.GetActiveRoom(roomID)
	if !ok {
		return models.RoomStatusResponse{}, false
	}
	return models.RoomStatusResponse{
		RoomID:           room.RoomID,
		Status:           "open",
		ExpiresAt:        room.ExpiresAt,
		ParticipantCount: room.ParticipantCount(),
		HostPresent:      room.HostPeerID != "",
		GuestPresent:     room.GuestPeerID != "",
	}, true
}

// TURNCredentials mints relay credentials for peerID.
func (b *Broker) TURNCredentials(peerID string) TURNCredentials {
	return BuildTURNCredentials(b.cfg.TURN, peerID, time.Now())
}

// PreviewJoin runs validateJoin without installing a session, so HTTP
// upgrade handlers can reject with the mapped status code (spec.md
// §4.6, "Admission and upgrade") before ever calling the underlying
// websocket.Upgrader.
func (b *Broker) PreviewJoin(roomID, peerID string, role models.Role) JoinResult {
	result, _ := b.registry.ValidateJoin(roomID, peerID, role)
	return result
}

// Admit validates and installs a new session for (roomID, peerID,
// role), sends it session-joined, and broadcasts peer-joined to the
// room's other occupants (spec.md §4.6, "Admission and upgrade").
// Callers perform the HTTP-to-WebSocket upgrade themselves and pass
// in the resulting connection; Admit never touches HTTP.
func (b *Broker) Admit(roomID, peerID string, role models.Role, conn *websocket.Conn) (JoinResult, *Session) {
	result, _ := b.registry.ValidateJoin(roomID, peerID, role)
	if result != JoinOK {
		return result, nil
	}

	b.registry.AddParticipant(roomID, peerID, role)
	session := newSession(peerID, roomID, role, conn)

	b.mu.Lock()
	if b.sessions[roomID] == nil {
		b.sessions[roomID] = make(map[string]*Session)
	}
	b.sessions[roomID][peerID] = session
	b.mu.Unlock()

	room, _ := b.registry.GetActiveRoom(roomID)
	count := 0
	if room != nil {
		count = room.ParticipantCount()
	}

	joinedPayload, _ := json.Marshal(models.SessionJoinedPayload{ParticipantCount: count})
	session.enqueue(models.RelayFrame{
		Type:      models.RelaySessionJoined,
		Payload:   joinedPayload,
		RoomID:    roomID,
		Timestamp: timestampPtr(),
	})

	peerJoinedPayload, _ := json.Marshal(models.PeerJoinedPayload{Role: role})
	b.broadcastExcept(roomID, peerID, models.RelayFrame{
		Type:      models.RelayPeerJoined,
		Payload:   peerJoinedPayload,
		RoomID:    roomID,
		Timestamp: timestampPtr(),
	})

	go session.writePump()
	return JoinOK, session
}

// Leave removes peerID's session from roomID, vacates its role slot,
// and notifies the room's remaining occupants.
func (b *Broker) Leave(roomID, peerID string) {
	b.mu.Lock()
	if peers, ok := b.sessions[roomID]; ok {
		delete(peers, peerID)
		if len(peers) == 0 {
			delete(b.sessions, roomID)
		}
	}
	b.mu.Unlock()

	b.registry.RemoveParticipant(roomID, peerID)
	b.broadcastExcept(roomID, peerID, models.RelayFrame{
		Type:      models.RelayPeerLeft,
		RoomID:    roomID,
		Timestamp: timestampPtr(),
	})
}

// HandleFrame implements the relay rules of spec.md §4.6, "Relay":
// size cap, JSON/type validation, heartbeat echo, allowed-type relay
// with fromPeerId/roomId/timestamp decoration and optional targeted
// delivery, and an error frame back to the sender for anything else.
func (b *Broker) HandleFrame(session *Session, raw []byte) {
	if len(raw) > MaxRelayFrameBytes {
		session.closeWithCode(1009, "frame too large")
		return
	}

	var frame models.RelayFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		b.sendError(session, "INVALID_MESSAGE", "frame must be JSON with a string type")
		return
	}

	if frame.Type == models.RelayHeartbeat {
		session.enqueue(models.RelayFrame{Type: models.RelayHeartbeat, Timestamp: timestampPtr()})
		return
	}

	if !models.IsRelayable(frame.Type) {
		b.sendError(session, "UNSUPPORTED_TYPE", "message type is not relayable")
		return
	}

	if frame.Type == models.RelayChat {
		var chat models.ChatPayload
		if err := json.Unmarshal(frame.Payload, &chat); err != nil || len(chat.Text) < 1 || len(chat.Text) > MaxChatPayloadChars {
			b.sendError(session, "INVALID_CHAT", "chat payload.text must be 1-500 characters")
			return
		}
	}

	outbound := models.RelayFrame{
		Type:       frame.Type,
		Payload:    frame.Payload,
		FromPeerID: session.PeerID,
		RoomID:     session.RoomID,
		Timestamp:  timestampPtr(),
	}

	if frame.ToPeerID != "" {
		b.sendTo(session.RoomID, frame.ToPeerID, outbound)
		return
	}
	b.broadcastExcept(session.RoomID, session.PeerID, outbound)
}

func (b *Broker) sendError(session *Session, code, message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Code: code, Message: message})
	session.enqueue(models.RelayFrame{
		Type:      models.RelayError,
		Payload:   payload,
		Timestamp: timestampPtr(),
	})
}

func (b *Broker) sendTo(roomID, peerID string, frame models.RelayFrame) {
	b.mu.Lock()
	peers := b.sessions[roomID]
	target, ok := peers[peerID]
	b.mu.Unlock()
	if ok {
		target.enqueue(frame)
	}
}

func (b *Broker) broadcastExcept(roomID, exceptPeerID string, frame models.RelayFrame) {
	b.mu.Lock()
	peers := make([]*Session, 0, len(b.sessions[roomID]))
	for peerID, s := range b.sessions[roomID] {
		if peerID != exceptPeerID {
			peers = append(peers, s)
		}
	}
	b.mu.Unlock()

	for _, s := range peers {
		s.enqueue(frame)
	}
}

// runCleanup evicts expired rooms and closes their live sessions on
// the configured interval (spec.md §4.6, "Lifecycle").
func (b *Broker) runCleanup() {
	interval := b.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCleanup:
			return
		case <-ticker.C:
			evicted := b.registry.CleanupExpired(time.Now())
			for _, roomID := range evicted {
				b.closeRoomSessions(roomID, 1000, "room expired")
			}
			b.prune()
		}
	}
}

// prune runs Prune on every registered store (spec.md §4.6, "prune
// both rate-limit stores").
func (b *Broker) prune() {
	b.mu.Lock()
	pruners := make([]Pruner, len(b.pruners))
	copy(pruners, b.pruners)
	b.mu.Unlock()

	for _, p := range pruners {
		p.Prune()
	}
}

func (b *Broker) closeRoomSessions(roomID string, code int, reason string) {
	b.mu.Lock()
	peers := b.sessions[roomID]
	delete(b.sessions, roomID)
	b.mu.Unlock()

	for _, s := range peers {
		errPayload, _ := json.Marshal(models.ErrorPayload{Code: "ROOM_EXPIRED", Message: reason})
		s.enqueue(models.RelayFrame{Type: models.RelayError, Payload: errPayload, Timestamp: timestampPtr()})
		s.closeWithCode(code, reason)
	}
}

// Shutdown closes every live session and stops the cleanup timer
// (spec.md §4.6, "Lifecycle", "on shutdown, close all sessions and
// the registry"), mirroring the teacher's defer-Close pattern at a
// broader scope.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	roomIDs := make([]string, 0, len(b.sessions))
	for roomID := range b.sessions {
		roomIDs = append(roomIDs, roomID)
	}
	b.mu.Unlock()

	for _, roomID := range roomIDs {
		b.closeRoomSessions(roomID, 1001, "server shutting down")
	}
	close(b.stopCleanup)
	log.Printf("broker: shutdown complete, %d rooms drained", len(roomIDs))
	return nil
}
