// Package codec implements the offline signal-packet envelope codec:
// build/parse the envelope, compress, chunk, reassemble, and bind
// metadata into the associated data used for authentication
// (spec.md §4.2, §6).
package codec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ChunkPrefix tags every line of the transport representation.
const ChunkPrefix = "P2PV1"

// Transport chunk bounds from spec.md §3.
const (
	MaxChunkPayloadChars = 900
	MaxChunksPerPacket   = 256
	MaxCompressedBytes   = 120_000
	MaxDecompressedChars = 350_000
	MaxPacketTextChars   = 200_000
)

// chunk is one parsed line of packet text.
type chunk struct {
	packetID   string
	partIndex  int
	partTotal  int
	payload    string
}

// newPacketID returns a fresh random 16-hex-character packet identifier.
func newPacketID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// chunkPayload splits base64 text into chunks of at most
// MaxChunkPayloadChars characters and formats each as a transport
// line: P2PV1|<packetId>|<partIndex>/<partTotal>|<payload>.
func chunkPayload(packetID string, base64Text string) ([]string, error) {
	total := (len(base64Text) + MaxChunkPayloadChars - 1) / MaxChunkPayloadChars
	if total == 0 {
		total = 1
	}
	if total > MaxChunksPerPacket {
		return nil, fmt.Errorf("packet requires %d chunks, exceeds maximum of %d", total, MaxChunksPerPacket)
	}

	lines := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * MaxChunkPayloadChars
		end := start + MaxChunkPayloadChars
		if end > len(base64Text) {
			end = len(base64Text)
		}
		part := base64Text[start:end]
		lines = append(lines, fmt.Sprintf("%s|%s|%d/%d|%s", ChunkPrefix, packetID, i+1, total, part))
	}
	return lines, nil
}

// parseChunk parses one transport line into its constituent fields.
func parseChunk(line string) (chunk, error) {
	fields := strings.SplitN(line, "|", 4)
	if len(fields) != 4 || fields[0] != ChunkPrefix {
		return chunk{}, fmt.Errorf("malformed chunk: unexpected prefix or field count")
	}
	packetID := fields[1]
	if _, err := hex.DecodeString(packetID); len(packetID) != 16 || err != nil {
		return chunk{}, fmt.Errorf("malformed chunk: packet id must be 16 hex characters")
	}
	parts := strings.SplitN(fields[2], "/", 2)
	if len(parts) != 2 {
		return chunk{}, fmt.Errorf("malformed chunk: missing part index/total")
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 1 {
		return chunk{}, fmt.Errorf("malformed chunk: invalid part index")
	}
	total, err := strconv.Atoi(parts[1])
	if err != nil || total < 1 || total > MaxChunksPerPacket {
		return chunk{}, fmt.Errorf("malformed chunk: invalid part total")
	}
	if index > total {
		return chunk{}, fmt.Errorf("malformed chunk: part index exceeds total")
	}
	return chunk{packetID: packetID, partIndex: index, partTotal: total, payload: fields[3]}, nil
}

// reassemble parses packetText (newline-separated chunks), tolerating
// duplicate and out-of-order lines, and returns the concatenated
// base64 payload. It rejects packets whose chunks disagree on packet
// id or part total, and requires every index 1..N to be present
// exactly once (duplicates are deduplicated, not an error).
func reassemble(packetText string) (string, error) {
	if len(packetText) > MaxPacketTextChars {
		return "", fmt.Errorf("packet text is too large")
	}

	lines := strings.Split(strings.TrimRight(packetText, "\n"), "\n")
	byIndex := make(map[int]string)
	var packetID string
	var partTotal int

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c, err := parseChunk(line)
		if err != nil {
			return "", err
		}
		if packetID == "" {
			packetID = c.packetID
			partTotal = c.partTotal
		} else if c.packetID != packetID {
			return "", fmt.Errorf("chunk belongs to a different packet")
		} else if c.partTotal != partTotal {
			return "", fmt.Errorf("chunk disagrees on total part count")
		}
		byIndex[c.partIndex] = c.payload
	}

	if packetID == "" {
		return "", fmt.Errorf("no chunks found in packet text")
	}
	if len(byIndex) != partTotal {
		return "", fmt.Errorf("missing chunks: have %d of %d", len(byIndex), partTotal)
	}

	var b strings.Builder
	for i := 1; i <= partTotal; i++ {
		b.WriteString(byIndex[i])
	}
	return b.String(), nil
}
