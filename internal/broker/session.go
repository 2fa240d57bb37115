package broker

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// MaxRelayFrameBytes is the per-message size cap on the message
// endpoint; frames larger than this close the session with code 1009
// (spec.md §6, "Message endpoint").
const MaxRelayFrameBytes = 64000

// MaxChatPayloadChars bounds a relayed chat payload's text field
// (spec.md §4.6, "Relay").
const MaxChatPayloadChars = 500

// Session is one peer's live WebSocket connection into a room,
// mirroring the teacher's Client/readPump/writePump shape
// (internal/handlers/websocket.go) generalized from its single
// broadcast-or-direct signaling loop to the spec's typed relay rules.
type Session struct {
	PeerID string
	RoomID string
	Role   models.Role

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func newSession(peerID, roomID string, role models.Role, conn *websocket.Conn) *Session {
	return &Session{
		PeerID: peerID,
		RoomID: roomID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
}

// enqueue marshals frame and pushes it to the session's write pump,
// dropping it if the buffer is full rather than blocking the caller.
func (s *Session) enqueue(frame models.RelayFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("broker: failed to marshal frame for %s: %v", s.PeerID, err)
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("broker: send buffer full for peer %s, dropping frame", s.PeerID)
	}
}

// closeWithCode sends a close frame with the given status code and
// closes the underlying connection. Idempotent.
func (s *Session) closeWithCode(code int, reason string) {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(5 * time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		close(s.send)
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads frames off the connection until it errs or closes,
// handing each one to the broker and calling Leave on exit. Callers
// run this on its own goroutine after Admit returns.
func (s *Session) ReadPump(b *Broker) {
	defer func() {
		b.Leave(s.RoomID, s.PeerID)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(MaxRelayFrameBytes + 1024)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		b.HandleFrame(s, data)
	}
}

func now() time.Time { return time.Now() }

func timestampPtr() *time.Time {
	t := now()
	return &t
}
