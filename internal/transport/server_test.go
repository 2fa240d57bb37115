package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deveshpat/p2p-video-calling-secure/config"
	"github.com/deveshpat/p2p-video-calling-secure/internal/broker"
	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
	"github.com/deveshpat/p2p-video-calling-secure/internal/redis"
)

func newTestServer(t *testing.T) (*Server, *broker.Broker) {
	t.Helper()
	cfg := &config.Config{
		FrontendBaseURL:     "http://localhost:5173",
		MaxJSONBodyBytes:    1024,
		RESTRateLimitWindow: time.Minute,
		RESTRateLimitMax:    2,
		WSRateLimitWindow:   time.Minute,
		WSRateLimitMax:      2,
		CORSOrigins:         []string{"https://allowed.example"},
	}
	b := broker.New(broker.Config{RoomTTL: time.Hour, CleanupInterval: time.Hour})
	mirror, err := redis.Connect(config.RedisConfig{})
	if err != nil {
		t.Fatalf("connecting disabled mirror: %v", err)
	}
	t.Cleanup(func() { b.Shutdown(nil) })
	return New(cfg, b, mirror), b
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
}

func TestHandleCreateRoom(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/rooms", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.CreateRoomResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !strings.HasPrefix(resp.RoomID, models.RoomIDPrefix) {
		t.Fatalf("expected roomId to carry the documented prefix, got %q", resp.RoomID)
	}
	if !strings.HasSuffix(resp.JoinURL, resp.RoomID) {
		t.Fatalf("expected joinUrl to end with the room id, got %q", resp.JoinURL)
	}
}

func TestHandleRoomStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/rooms/meet-doesnotexist12", nil)
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown room, got %d", rec.Code)
	}
}

func TestHandleRoomStatusFound(t *testing.T) {
	s, b := newTestServer(t)
	room, err := b.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/rooms/"+room.RoomID, nil)
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status models.RoomStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if status.RoomID != room.RoomID || status.ParticipantCount != 0 {
		t.Fatalf("unexpected status body: %+v", status)
	}
}

func TestHandleTURNCredentialsWithoutSharedSecretIsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/turn-credentials", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var creds broker.TURNCredentials
	if err := json.Unmarshal(rec.Body.Bytes(), &creds); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if creds.Username != "" || creds.Credential != "" {
		t.Fatalf("expected empty credentials without a configured shared secret, got %+v", creds)
	}
}

func TestCORSRejectsDisallowedOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a disallowed origin, got %d", rec.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an allowed origin, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://allowed.example" {
		t.Fatalf("expected the origin echoed back, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSPreflightIsNoContent(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/rooms", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for an OPTIONS preflight, got %d", rec.Code)
	}
}

func TestBodyTooLargeIsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	oversized := bytes.Repeat([]byte("a"), 2048)
	req := httptest.NewRequest(http.MethodPost, "/v1/rooms", bytes.NewReader(oversized))
	req.ContentLength = int64(len(oversized))
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for an oversized body, got %d", rec.Code)
	}
}

func TestRESTRateLimitReturns429OverCap(t *testing.T) {
	s, _ := newTestServer(t) // RESTRateLimitMax: 2
	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/rooms", bytes.NewReader(nil))
		rec := httptest.NewRecorder()
		s.Engine.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected the 3rd request within the window to be rate-limited, got %d", last)
	}
}

func TestWebSocketRejectsUnknownRoomBeforeUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	server := httptest.NewServer(s.Engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws?roomId=meet-doesnotexist12&peerId=p1&role=host"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected the dial to fail for a nonexistent room")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 404 rejecting the upgrade, got %d", status)
	}
}

func TestWebSocketAdmitsValidHost(t *testing.T) {
	s, b := newTestServer(t)
	room, err := b.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	server := httptest.NewServer(s.Engine)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws?roomId=" + room.RoomID + "&peerId=host-1&role=host"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected the host to be admitted, got: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading session-joined frame: %v", err)
	}
	var frame models.RelayFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshaling frame: %v", err)
	}
	if frame.Type != models.RelaySessionJoined {
		t.Fatalf("expected session-joined, got %v", frame.Type)
	}
}
