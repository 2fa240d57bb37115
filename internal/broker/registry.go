// Package broker implements the rendezvous broker: the room registry,
// admission and message relay, and relay (TURN) credential minting
// (spec.md §4.6). It is the online-mode counterpart to the offline
// packet codec — media stays peer-to-peer, only session-description
// and control messages pass through the broker.
package broker

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// JoinResult is the outcome of validateJoin.
type JoinResult string

const (
	JoinOK          JoinResult = "ok"
	JoinRoomNotFound JoinResult = "ROOM_NOT_FOUND"
	JoinRoomExpired  JoinResult = "ROOM_EXPIRED"
	JoinInvalidRole  JoinResult = "INVALID_ROLE"
	JoinRoleTaken    JoinResult = "ROLE_TAKEN"
	JoinRoomFull     JoinResult = "ROOM_FULL"
)

// Registry is the broker's in-process room store. Per spec.md §5, all
// mutations run on the broker's single execution context; Registry
// itself still guards with a mutex since HTTP handlers and the
// cleanup timer both call into it from separate goroutines in a real
// gin/net-http server, even though no state crosses a process
// boundary.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
	ttl   time.Duration
	now   func() time.Time
}

// NewRegistry creates an empty registry using the given default room
// TTL for CreateRoom.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = models.DefaultRoomTTL
	}
	return &Registry{
		rooms: make(map[string]*models.Room),
		ttl:   ttl,
		now:   time.Now,
	}
}

// CreateRoom mints a room with a unique meet-<14 chars> identifier and
// inserts it (spec.md §4.6, "Room registry").
func (r *Registry) CreateRoom() (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for {
		candidate, err := newRoomID()
		if err != nil {
			return nil, err
		}
		if _, exists := r.rooms[candidate]; !exists {
			id = candidate
			break
		}
	}

	now := r.now()
	room := &models.Room{
		RoomID:    id,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	r.rooms[id] = room
	return room, nil
}

// GetActiveRoom returns the room only if present and not expired,
// evicting it on a stale hit (spec.md §4.6, "getActiveRoom").
func (r *Registry) GetActiveRoom(roomID string) (*models.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	if !room.IsActive(r.now()) {
		delete(r.rooms, roomID)
		return nil, false
	}
	return room, true
}

// ValidateJoin checks whether peerID may take role in roomID without
// changing any role slot (spec.md §4.6, "validateJoin"). Like
// GetActiveRoom, it evicts the room if it has expired.
func (r *Registry) ValidateJoin(roomID, peerID string, role models.Role) (JoinResult, *models.Room) {
	if role != models.RoomRoleHost && role != models.RoomRoleGuest {
		return JoinInvalidRole, nil
	}

	_, existed := r.peek(roomID)
	room, ok := r.GetActiveRoom(roomID)
	if !ok {
		if existed {
			return JoinRoomExpired, nil
		}
		return JoinRoomNotFound, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	isCurrentOccupant := room.HostPeerID == peerID || room.GuestPeerID == peerID
	if !isCurrentOccupant && room.ParticipantCount() >= 2 {
		return JoinRoomFull, nil
	}

	occupant := room.HostPeerID
	if role == models.RoomRoleGuest {
		occupant = room.GuestPeerID
	}
	if occupant != "" && occupant != peerID {
		return JoinRoleTaken, nil
	}
	return JoinOK, room
}

// peek reports whether roomID exists at all, without the active-check
// eviction GetActiveRoom performs; used only to distinguish
// ROOM_NOT_FOUND from ROOM_EXPIRED in ValidateJoin, which calls it
// before GetActiveRoom because that call evicts an expired room.
func (r *Registry) peek(roomID string) (*models.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// AddParticipant occupies role with peerID. Callers must have already
// confirmed via ValidateJoin that the slot is free or already owned
// by peerID.
func (r *Registry) AddParticipant(roomID, peerID string, role models.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if role == models.RoomRoleHost {
		room.HostPeerID = peerID
	} else {
		room.GuestPeerID = peerID
	}
}

// RemoveParticipant vacates whichever role peerID currently holds in
// roomID, if any.
func (r *Registry) RemoveParticipant(roomID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if room.HostPeerID == peerID {
		room.HostPeerID = ""
	}
	if room.GuestPeerID == peerID {
		room.GuestPeerID = ""
	}
}

// CleanupExpired evicts every room whose expiry has passed and
// returns their identifiers, for the caller to use in closing any
// live sessions (spec.md §4.6, "cleanupExpired").
func (r *Registry) CleanupExpired(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, room := range r.rooms {
		if !room.IsActive(now) {
			evicted = append(evicted, id)
			delete(r.rooms, id)
		}
	}
	return evicted
}

// roomIDAlphabet is models.RoomIDBodyChars, which omits visually
// ambiguous characters (0/O, 1/l/I).
const roomIDAlphabet = models.RoomIDBodyChars

func newRoomID() (string, error) {
	body := make([]byte, models.RoomIDBodyLen)
	for i := range body {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomIDAlphabet))))
		if err != nil {
			return "", err
		}
		body[i] = roomIDAlphabet[n.Int64()]
	}
	return models.RoomIDPrefix + string(body), nil
}
