package broker

import (
	"testing"
	"time"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
	"github.com/deveshpat/p2p-video-calling-secure/internal/validate"
)

func TestRoomAdmissionLifecycle(t *testing.T) {
	r := NewRegistry(time.Hour)
	room, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if result, _ := r.ValidateJoin(room.RoomID, "host-1", models.RoomRoleHost); result != JoinOK {
		t.Fatalf("expected host-1 to join as host, got %v", result)
	}
	r.AddParticipant(room.RoomID, "host-1", models.RoomRoleHost)

	if result, _ := r.ValidateJoin(room.RoomID, "host-2", models.RoomRoleHost); result != JoinRoleTaken {
		t.Fatalf("expected a second distinct peer taking host to be ROLE_TAKEN, got %v", result)
	}

	if result, _ := r.ValidateJoin(room.RoomID, "guest-1", models.RoomRoleGuest); result != JoinOK {
		t.Fatalf("expected guest-1 to join as guest, got %v", result)
	}
	r.AddParticipant(room.RoomID, "guest-1", models.RoomRoleGuest)

	if result, _ := r.ValidateJoin(room.RoomID, "third-1", models.RoomRoleGuest); result != JoinRoomFull {
		t.Fatalf("expected a third distinct peer to be ROOM_FULL, got %v", result)
	}

	r.RemoveParticipant(room.RoomID, "guest-1")
	if result, _ := r.ValidateJoin(room.RoomID, "third-1", models.RoomRoleGuest); result != JoinOK {
		t.Fatalf("expected third-1 to admit as guest after guest-1 left, got %v", result)
	}
}

func TestValidateJoinRejectsInvalidRole(t *testing.T) {
	r := NewRegistry(time.Hour)
	room, _ := r.CreateRoom()
	if result, _ := r.ValidateJoin(room.RoomID, "peer-1", models.Role("spectator")); result != JoinInvalidRole {
		t.Fatalf("expected INVALID_ROLE, got %v", result)
	}
}

func TestValidateJoinDistinguishesNotFoundFromExpired(t *testing.T) {
	r := NewRegistry(time.Hour)
	if result, _ := r.ValidateJoin("meet-doesnotexist01", "peer-1", models.RoomRoleHost); result != JoinRoomNotFound {
		t.Fatalf("expected ROOM_NOT_FOUND for an unknown room, got %v", result)
	}

	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }
	room, _ := r.CreateRoom()

	fakeNow = fakeNow.Add(2 * time.Hour)
	if result, _ := r.ValidateJoin(room.RoomID, "peer-1", models.RoomRoleHost); result != JoinRoomExpired {
		t.Fatalf("expected ROOM_EXPIRED for a stale room, got %v", result)
	}
}

func TestCleanupExpiredEvictsOnlyStaleRooms(t *testing.T) {
	r := NewRegistry(time.Hour)
	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	stale, _ := r.CreateRoom()
	fakeNow = fakeNow.Add(30 * time.Minute)
	fresh, _ := r.CreateRoom()

	fakeNow = fakeNow.Add(40 * time.Minute) // stale is now 70m old, fresh is 40m old
	evicted := r.CleanupExpired(fakeNow)

	if len(evicted) != 1 || evicted[0] != stale.RoomID {
		t.Fatalf("expected only the stale room evicted, got %v", evicted)
	}
	if _, ok := r.GetActiveRoom(fresh.RoomID); !ok {
		t.Fatal("fresh room must still be active")
	}
}

func TestRoomIDMatchesDocumentedPattern(t *testing.T) {
	r := NewRegistry(time.Hour)
	room, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(room.RoomID) != len(models.RoomIDPrefix)+models.RoomIDBodyLen {
		t.Fatalf("unexpected room id length: %q", room.RoomID)
	}
	if err := validate.RoomID(room.RoomID); err != nil {
		t.Fatalf("room id %q does not match the documented pattern: %v", room.RoomID, err)
	}
}
