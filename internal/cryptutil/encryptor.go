// Package cryptutil implements the passphrase-based authenticated
// encryptor used by the offline signal-packet codec (spec.md §4.1).
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/deveshpat/p2p-video-calling-secure/internal/apperr"
)

// KeyLenBytes is the derived symmetric key size: AES-256.
const KeyLenBytes = 32

// NonceLenBytes is the AES-GCM nonce size: 96 bits.
const NonceLenBytes = 12

// KDFIterations is the minimum PBKDF2 iteration count required by
// spec.md §4.1.
const KDFIterations = 600_000

// DeriveKey derives a 256-bit symmetric key from
// passphrase || ":" || roomCode using PBKDF2-HMAC-SHA256 with the
// given salt. The salt must be at least models.MinSaltBytes bytes;
// callers are responsible for that bound (validated by the codec).
func DeriveKey(passphrase, roomCode string, salt []byte) []byte {
	material := passphrase + ":" + roomCode
	return pbkdf2.Key([]byte(material), salt, KDFIterations, KeyLenBytes, sha256.New)
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Encrypt seals plaintext under AES-256-GCM using a key derived from
// passphrase and roomCode with the given salt, and a freshly
// generated random nonce. associatedData is bound into the
// authentication tag but not encrypted. Returns the nonce and
// ciphertext (which includes the GCM tag).
func Encrypt(passphrase, roomCode string, salt, associatedData, plaintext []byte) (nonce, ciphertext []byte, err error) {
	key := DeriveKey(passphrase, roomCode, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = RandomBytes(NonceLenBytes)
	if err != nil {
		return nil, nil, err
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, associatedData)
	return nonce, ciphertext, nil
}

// Decrypt opens ciphertext under AES-256-GCM using a key derived from
// passphrase and roomCode with the given salt, the given nonce, and
// associatedData. Every failure mode — wrong passphrase, wrong room
// code, tampered associated data, truncated ciphertext — returns the
// single opaque apperr.DecryptionFailed() error; distinguishing them
// is a forbidden side channel.
func Decrypt(passphrase, roomCode string, salt, nonce, associatedData, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceLenBytes || len(ciphertext) == 0 {
		return nil, apperr.DecryptionFailed()
	}
	key := DeriveKey(passphrase, roomCode, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.DecryptionFailed()
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.DecryptionFailed()
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, apperr.DecryptionFailed()
	}
	return plaintext, nil
}
