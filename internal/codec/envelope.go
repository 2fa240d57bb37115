package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/deveshpat/p2p-video-calling-secure/internal/apperr"
	"github.com/deveshpat/p2p-video-calling-secure/internal/cryptutil"
	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
	"github.com/deveshpat/p2p-video-calling-secure/internal/validate"
)

// wireEnvelope is the canonical, key-ordered JSON shape of an
// envelope on the wire. All binary fields are url-safe base64.
type wireEnvelope struct {
	Version    int    `json:"version"`
	Type       string `json:"type"`
	RoomCode   string `json:"roomCode"`
	CreatedAt  int64  `json:"createdAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	SenderRole string `json:"senderRole"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// associatedData builds the ordered concatenation bound into the
// AEAD authentication tag: version|type|roomCode|createdAt|expiresAt|senderRole.
// It is built from the envelope's fields only — chunk counts and
// packet identifiers must never leak into this binding (spec.md §9).
func associatedData(e *models.Envelope) []byte {
	s := fmt.Sprintf("%d|%s|%s|%d|%d|%s",
		e.Version, e.Type, e.RoomCode,
		e.CreatedAt.UnixMilli(), e.ExpiresAt.UnixMilli(), e.SenderRole)
	return []byte(s)
}

// EncodeOffer builds, encrypts, compresses, and chunks an offer
// envelope. roomCode is canonicalized (trimmed) before use.
func EncodeOffer(passphrase, roomCode string, payload models.OfferPayload, now time.Time) (string, error) {
	return encode(passphrase, roomCode, models.EnvelopeOffer, models.RoleHost, payload, now)
}

// EncodeAnswer builds, encrypts, compresses, and chunks an answer envelope.
func EncodeAnswer(passphrase, roomCode string, payload models.AnswerPayload, now time.Time) (string, error) {
	return encode(passphrase, roomCode, models.EnvelopeAnswer, models.RoleJoiner, payload, now)
}

func encode(passphrase, roomCode string, typ models.EnvelopeType, role models.SenderRole, payload interface{}, now time.Time) (string, error) {
	roomCode = strings.TrimSpace(roomCode)
	if err := validate.RoomCode(roomCode); err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	salt, err := cryptutil.RandomBytes(32)
	if err != nil {
		return "", err
	}

	env := &models.Envelope{
		Version:    models.EnvelopeVersion,
		Type:       typ,
		RoomCode:   roomCode,
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.EnvelopeLifetime),
		SenderRole: role,
		Salt:       salt,
	}

	nonce, ciphertext, err := cryptutil.Encrypt(passphrase, roomCode, salt, associatedData(env), plaintext)
	if err != nil {
		return "", err
	}
	env.IV = nonce
	env.Ciphertext = ciphertext

	wire := wireEnvelope{
		Version:    env.Version,
		Type:       string(env.Type),
		RoomCode:   env.RoomCode,
		CreatedAt:  env.CreatedAt.UnixMilli(),
		ExpiresAt:  env.ExpiresAt.UnixMilli(),
		SenderRole: string(env.SenderRole),
		Salt:       base64.URLEncoding.EncodeToString(env.Salt),
		IV:         base64.URLEncoding.EncodeToString(env.IV),
		Ciphertext: base64.URLEncoding.EncodeToString(env.Ciphertext),
	}
	envelopeJSON, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}

	var gzBuf bytes.Buffer
	gzw := gzip.NewWriter(&gzBuf)
	if _, err := gzw.Write(envelopeJSON); err != nil {
		return "", err
	}
	if err := gzw.Close(); err != nil {
		return "", err
	}
	if gzBuf.Len() > MaxCompressedBytes {
		return "", fmt.Errorf("compressed envelope is too large")
	}

	base64Text := base64.URLEncoding.EncodeToString(gzBuf.Bytes())

	packetID, err := newPacketID()
	if err != nil {
		return "", err
	}
	lines, err := chunkPayload(packetID, base64Text)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// Decode reverses the transport representation back into an
// Envelope: splits by newline, parses and deduplicates chunks,
// reassembles, base64-decodes, ungzips, and validates the result
// against the envelope schema and time window. It does not decrypt.
func Decode(packetText string) (*models.Envelope, error) {
	if len(packetText) > MaxPacketTextChars {
		return nil, fmt.Errorf("Packet text is too large.")
	}

	base64Text, err := reassemble(packetText)
	if err != nil {
		return nil, err
	}

	compressed, err := base64.URLEncoding.DecodeString(base64Text)
	if err != nil {
		return nil, fmt.Errorf("packet payload is not valid base64: %w", err)
	}
	if len(compressed) > MaxCompressedBytes {
		return nil, fmt.Errorf("compressed packet exceeds maximum size")
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("packet payload is not valid gzip: %w", err)
	}
	defer gzr.Close()

	limited := io.LimitReader(gzr, MaxDecompressedChars+1)
	decompressed, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress packet payload: %w", err)
	}
	if len(decompressed) > MaxDecompressedChars {
		return nil, fmt.Errorf("decompressed packet exceeds maximum size")
	}

	var wire wireEnvelope
	if err := json.Unmarshal(decompressed, &wire); err != nil {
		return nil, fmt.Errorf("packet payload is not a valid envelope: %w", err)
	}

	env, err := fromWire(wire)
	if err != nil {
		return nil, err
	}

	if !(env.CreatedAt.Before(env.ExpiresAt) && !env.ExpiresAt.After(env.CreatedAt.Add(models.EnvelopeLifetime))) {
		return nil, fmt.Errorf("envelope time window is invalid")
	}

	return env, nil
}

func fromWire(wire wireEnvelope) (*models.Envelope, error) {
	if wire.Version != models.EnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", wire.Version)
	}
	typ := models.EnvelopeType(wire.Type)
	if typ != models.EnvelopeOffer && typ != models.EnvelopeAnswer {
		return nil, fmt.Errorf("unsupported envelope type %q", wire.Type)
	}
	role := models.SenderRole(wire.SenderRole)
	if role != models.RoleHost && role != models.RoleJoiner {
		return nil, fmt.Errorf("unsupported sender role %q", wire.SenderRole)
	}
	if err := validate.RoomCode(wire.RoomCode); err != nil {
		return nil, err
	}

	salt, err := base64.URLEncoding.DecodeString(wire.Salt)
	if err != nil || len(salt) < models.MinSaltBytes {
		return nil, fmt.Errorf("envelope salt is invalid")
	}
	iv, err := base64.URLEncoding.DecodeString(wire.IV)
	if err != nil || len(iv) < models.MinIVBytes {
		return nil, fmt.Errorf("envelope iv is invalid")
	}
	ciphertext, err := base64.URLEncoding.DecodeString(wire.Ciphertext)
	if err != nil || len(ciphertext) == 0 {
		return nil, fmt.Errorf("envelope ciphertext is invalid")
	}

	return &models.Envelope{
		Version:    wire.Version,
		Type:       typ,
		RoomCode:   wire.RoomCode,
		CreatedAt:  time.UnixMilli(wire.CreatedAt).UTC(),
		ExpiresAt:  time.UnixMilli(wire.ExpiresAt).UTC(),
		SenderRole: role,
		Salt:       salt,
		IV:         iv,
		Ciphertext: ciphertext,
	}, nil
}

// DecryptOffer validates and decrypts an offer envelope. callerRoomCode
// is the room code the caller expects; it must match the envelope's.
// now is used for the expiry check.
func DecryptOffer(env *models.Envelope, passphrase, callerRoomCode string, now time.Time) (*models.OfferPayload, error) {
	if err := crossCheck(env, callerRoomCode, models.EnvelopeOffer, models.RoleHost, now); err != nil {
		return nil, err
	}
	plaintext, err := cryptutil.Decrypt(passphrase, env.RoomCode, env.Salt, env.IV, associatedData(env), env.Ciphertext)
	if err != nil {
		return nil, err
	}
	var payload models.OfferPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, apperr.DecryptionFailed()
	}
	if err := validateOfferPayload(payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// DecryptAnswer validates and decrypts an answer envelope.
func DecryptAnswer(env *models.Envelope, passphrase, callerRoomCode string, now time.Time) (*models.AnswerPayload, error) {
	if err := crossCheck(env, callerRoomCode, models.EnvelopeAnswer, models.RoleJoiner, now); err != nil {
		return nil, err
	}
	plaintext, err := cryptutil.Decrypt(passphrase, env.RoomCode, env.Salt, env.IV, associatedData(env), env.Ciphertext)
	if err != nil {
		return nil, err
	}
	var payload models.AnswerPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, apperr.DecryptionFailed()
	}
	if err := validateAnswerPayload(payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func crossCheck(env *models.Envelope, callerRoomCode string, wantType models.EnvelopeType, wantRole models.SenderRole, now time.Time) error {
	if env.RoomCode != callerRoomCode {
		return apperr.DecryptionFailed()
	}
	if now.After(env.ExpiresAt) {
		return apperr.PacketExpired()
	}
	if env.Type != wantType || env.SenderRole != wantRole {
		return apperr.DecryptionFailed()
	}
	return nil
}

func validateOfferPayload(p models.OfferPayload) error {
	if err := validate.BoundedString("sessionId", p.SessionID, 128, false); err != nil {
		return err
	}
	if err := validate.BoundedString("sdpOffer", p.SDPOffer, models.MaxSessionDescriptionChars, false); err != nil {
		return err
	}
	if err := validate.BoundedSlice("iceCandidates", len(p.ICECandidates), models.MaxCandidatesPerPacket); err != nil {
		return err
	}
	for _, c := range p.ICECandidates {
		if err := validate.BoundedString("iceCandidates[]", c, models.MaxCandidateChars, true); err != nil {
			return err
		}
	}
	return nil
}

func validateAnswerPayload(p models.AnswerPayload) error {
	if err := validate.BoundedString("sessionId", p.SessionID, 128, false); err != nil {
		return err
	}
	if err := validate.BoundedString("sdpAnswer", p.SDPAnswer, models.MaxSessionDescriptionChars, false); err != nil {
		return err
	}
	if err := validate.BoundedSlice("iceCandidates", len(p.ICECandidates), models.MaxCandidatesPerPacket); err != nil {
		return err
	}
	for _, c := range p.ICECandidates {
		if err := validate.BoundedString("iceCandidates[]", c, models.MaxCandidateChars, true); err != nil {
			return err
		}
	}
	return nil
}
