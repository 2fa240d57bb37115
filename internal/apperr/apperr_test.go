package apperr

import "testing"

func TestAsUserFacingCollapsesInternalCodes(t *testing.T) {
	if got := AsUserFacing(DecryptionFailed()); got.Code != CodePassphraseMismatch {
		t.Fatalf("expected DECRYPTION_FAILED to collapse to PASS_PHRASE_MISMATCH, got %v", got.Code)
	}
	if got := AsUserFacing(PacketExpired()); got.Code != CodeExpiredPacket {
		t.Fatalf("expected PACKET_EXPIRED to collapse to EXPIRED_PACKET, got %v", got.Code)
	}
}

func TestAsUserFacingPassesThroughOtherCodes(t *testing.T) {
	err := New(CodeNATBlocked, "blocked")
	if got := AsUserFacing(err); got.Code != CodeNATBlocked {
		t.Fatalf("expected NAT_BLOCKED to pass through unchanged, got %v", got.Code)
	}
}

func TestIs(t *testing.T) {
	err := New(CodeConnectionTimeout, "timed out")
	if !Is(err, CodeConnectionTimeout) {
		t.Fatal("expected Is to match the error's own code")
	}
	if Is(err, CodeNATBlocked) {
		t.Fatal("expected Is to reject a different code")
	}
}
