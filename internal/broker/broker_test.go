package broker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// testServer upgrades every request straight into Broker.Admit using
// roomId/peerId/role query parameters, mirroring (at a smaller scope)
// what internal/transport's handleWebSocket does after its own
// pre-upgrade validation.
func newTestServer(t *testing.T, b *Broker) *httptest.Server {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("roomId")
		peerID := r.URL.Query().Get("peerId")
		role := models.Role(r.URL.Query().Get("role"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		result, session := b.Admit(roomID, peerID, role, conn)
		if result != JoinOK {
			conn.Close()
			return
		}
		go session.ReadPump(b)
	})
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, roomID, peerID, role string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?roomId=" + roomID + "&peerId=" + peerID + "&role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) models.RelayFrame {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var frame models.RelayFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshaling frame: %v", err)
	}
	return frame
}

func TestBrokerRelaysOfferBetweenHostAndGuest(t *testing.T) {
	b := New(Config{RoomTTL: time.Hour, CleanupInterval: time.Hour})
	defer b.Shutdown(nil)

	room, err := b.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	server := newTestServer(t, b)
	defer server.Close()

	host := dial(t, server, room.RoomID, "host-1", "host")
	defer host.Close()
	if frame := readFrame(t, host); frame.Type != models.RelaySessionJoined {
		t.Fatalf("expected session-joined for host, got %v", frame.Type)
	}

	guest := dial(t, server, room.RoomID, "guest-1", "guest")
	defer guest.Close()
	if frame := readFrame(t, guest); frame.Type != models.RelaySessionJoined {
		t.Fatalf("expected session-joined for guest, got %v", frame.Type)
	}
	if frame := readFrame(t, host); frame.Type != models.RelayPeerJoined {
		t.Fatalf("expected peer-joined notification to host, got %v", frame.Type)
	}

	offer := models.RelayFrame{Type: models.RelayOffer, Payload: json.RawMessage(`{"sdp":"fake-offer-sdp"}`)}
	body, _ := json.Marshal(offer)
	if err := host.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("writing offer: %v", err)
	}

	received := readFrame(t, guest)
	if received.Type != models.RelayOffer {
		t.Fatalf("expected guest to receive an offer frame, got %v", received.Type)
	}
	if received.FromPeerID != "host-1" {
		t.Fatalf("expected fromPeerId=host-1, got %q", received.FromPeerID)
	}
}

func TestBrokerHeartbeatIsEchoedNotRelayed(t *testing.T) {
	b := New(Config{RoomTTL: time.Hour, CleanupInterval: time.Hour})
	defer b.Shutdown(nil)

	room, _ := b.CreateRoom()
	server := newTestServer(t, b)
	defer server.Close()

	host := dial(t, server, room.RoomID, "host-1", "host")
	defer host.Close()
	readFrame(t, host) // session-joined

	guest := dial(t, server, room.RoomID, "guest-1", "guest")
	defer guest.Close()
	readFrame(t, guest)       // session-joined
	readFrame(t, host) // peer-joined

	hb := models.RelayFrame{Type: models.RelayHeartbeat}
	body, _ := json.Marshal(hb)
	host.WriteMessage(websocket.TextMessage, body)

	echoed := readFrame(t, host)
	if echoed.Type != models.RelayHeartbeat {
		t.Fatalf("expected heartbeat echoed back to sender, got %v", echoed.Type)
	}

	guest.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := guest.ReadMessage(); err == nil {
		t.Fatal("heartbeat must not be relayed to other peers")
	}
}
