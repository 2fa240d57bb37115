package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
	"github.com/deveshpat/p2p-video-calling-secure/internal/validate"
)

// handleHealth implements GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "timestamp": time.Now()})
}

// handleCreateRoom implements POST /v1/rooms. The request body is
// ignored per spec.md §6; any JSON (or none) is accepted.
func (s *Server) handleCreateRoom(c *gin.Context) {
	room, err := s.broker.CreateRoom()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "ROOM_CREATE_FAILED"})
		return
	}

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		RoomID:    room.RoomID,
		JoinURL:   s.cfg.FrontendBaseURL + "/join/" + room.RoomID,
		ExpiresAt: room.ExpiresAt,
	})
}

// handleRoomStatus implements GET /v1/rooms/:id.
func (s *Server) handleRoomStatus(c *gin.Context) {
	roomID := c.Param("id")
	if err := validate.RoomID(roomID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "ROOM_NOT_FOUND"})
		return
	}

	status, ok := s.broker.RoomStatus(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"code": "ROOM_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, status)
}

type turnCredentialsRequest struct {
	PeerID string `json:"peerId"`
}

// handleTURNCredentials implements POST /v1/turn-credentials. When a
// Redis mirror is configured, the minted username is reserved there
// so a replayed request for the exact same peerId within the same
// expiry second is rejected rather than handed a second, indistinguishable
// credential.
func (s *Server) handleTURNCredentials(c *gin.Context) {
	var req turnCredentialsRequest
	_ = c.ShouldBindJSON(&req) // peerId is optional; a malformed/empty body is not an error

	peerID := req.PeerID
	if peerID == "" {
		peerID = newPeerID()
	}

	creds := s.broker.TURNCredentials(peerID)

	if s.redis.Enabled() && creds.Username != "" {
		ok, err := s.redis.ReserveNonce(c.Request.Context(), creds.Username, s.cfg.TURNTTL)
		if err == nil && !ok {
			c.JSON(http.StatusConflict, gin.H{"code": "TURN_CREDENTIAL_REPLAY"})
			return
		}
	}

	c.JSON(http.StatusOK, creds)
}
