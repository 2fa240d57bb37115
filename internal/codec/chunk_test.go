package codec

import (
	"math/rand"
	"strings"
	"testing"
)

func TestReassembleToleratesReorderingAndDuplication(t *testing.T) {
	packetID := "0123456789abcdef"
	lines, err := chunkPayload(packetID, strings.Repeat("x", 2500))
	if err != nil {
		t.Fatalf("chunkPayload: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(lines))
	}

	inOrder, err := reassemble(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("reassemble in order: %v", err)
	}

	shuffled := append([]string(nil), lines...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	shuffled = append(shuffled, lines[0]) // duplicate the first chunk

	reordered, err := reassemble(strings.Join(shuffled, "\n"))
	if err != nil {
		t.Fatalf("reassemble reordered+duplicated: %v", err)
	}

	if inOrder != reordered {
		t.Fatal("reordering/duplicating chunks changed the decoded result")
	}
}

func TestReassembleRejectsMissingChunk(t *testing.T) {
	packetID := "fedcba9876543210"
	lines, err := chunkPayload(packetID, strings.Repeat("y", 2500))
	if err != nil {
		t.Fatalf("chunkPayload: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(lines))
	}

	missing := lines[1:]
	if _, err := reassemble(strings.Join(missing, "\n")); err == nil {
		t.Fatal("expected reassemble to reject a packet missing a chunk")
	}
}

func TestReassembleRejectsMixedPacketIDs(t *testing.T) {
	a, err := chunkPayload("aaaaaaaaaaaaaaaa", strings.Repeat("a", 10))
	if err != nil {
		t.Fatalf("chunkPayload a: %v", err)
	}
	b, err := chunkPayload("bbbbbbbbbbbbbbbb", strings.Repeat("b", 10))
	if err != nil {
		t.Fatalf("chunkPayload b: %v", err)
	}

	mixed := append(append([]string(nil), a...), b...)
	if _, err := reassemble(strings.Join(mixed, "\n")); err == nil {
		t.Fatal("expected reassemble to reject chunks from two different packets")
	}
}
