package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deveshpat/p2p-video-calling-secure/internal/broker"
	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
	"github.com/deveshpat/p2p-video-calling-secure/internal/validate"
)

// joinErrorStatus maps a broker.JoinResult onto the HTTP status
// spec.md §6's "Room join error mapping" requires.
func joinErrorStatus(result broker.JoinResult) int {
	switch result {
	case broker.JoinRoomNotFound:
		return http.StatusNotFound
	case broker.JoinRoomExpired:
		return http.StatusGone
	case broker.JoinRoomFull, broker.JoinRoleTaken:
		return http.StatusConflict
	case broker.JoinInvalidRole:
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

// coerceRole maps the query parameter's role string onto the
// broker's host/guest role, or the zero value if it is neither
// (spec.md §4.6, "coerce role to host or guest").
func coerceRole(raw string) (models.Role, bool) {
	switch raw {
	case string(models.RoomRoleHost):
		return models.RoomRoleHost, true
	case string(models.RoomRoleGuest):
		return models.RoomRoleGuest, true
	default:
		return "", false
	}
}

// handleWebSocket implements GET /v1/ws?roomId&peerId&role=host|guest
// (spec.md §6, "Message endpoint"). Before upgrading it: rate-limits
// by client IP, sanitizes roomId against the documented pattern,
// coerces role, and runs validateJoin, sending the mapped HTTP status
// and dropping the connection on any failure.
func (s *Server) handleWebSocket(c *gin.Context) {
	ip := c.ClientIP()
	if !s.wsRL.Allow(ip) {
		c.JSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED"})
		return
	}
	if s.redis.Enabled() {
		s.redis.IncrWindow(c.Request.Context(), "ratelimit:ws:"+ip, s.cfg.WSRateLimitWindow)
	}

	roomID := c.Query("roomId")
	peerID := c.Query("peerId")
	roleParam := c.Query("role")

	if err := validate.RoomID(roomID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "ROOM_CODE_INVALID"})
		return
	}
	if err := validate.BoundedString("peerId", peerID, 128, false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PEER_ID"})
		return
	}
	role, ok := coerceRole(roleParam)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ROLE"})
		return
	}

	if result := s.broker.PreviewJoin(roomID, peerID, role); result != broker.JoinOK {
		c.JSON(joinErrorStatus(result), gin.H{"code": string(result)})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	result, session := s.broker.Admit(roomID, peerID, role, conn)
	if result != broker.JoinOK {
		_ = conn.Close()
		return
	}

	session.ReadPump(s.broker)
}
