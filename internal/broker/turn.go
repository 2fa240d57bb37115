package broker

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"
)

// MinTURNTTL is the floor buildTurnCredentials enforces regardless of
// configuration (spec.md §4.6, "Relay credentials").
const MinTURNTTL = 30 * time.Second

var turnPeerIDPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// TURNCredentials is the response shape for POST /v1/turn-credentials.
type TURNCredentials struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
	TTLSeconds int      `json:"ttlSeconds"`
}

// TURNConfig holds the broker's relay-credential configuration.
type TURNConfig struct {
	URLs         []string
	SharedSecret string
	TTL          time.Duration
}

// BuildTURNCredentials mints short-lived relay credentials for peerID
// as of now (spec.md §4.6, "Relay credentials"). With a configured
// shared secret, username embeds the credential's Unix expiry and a
// sanitized peerID; credential is the base64 HMAC-SHA1 of username
// under the shared secret. Without a shared secret, both fields are
// empty and callers fall back to STUN-only ICE.
func BuildTURNCredentials(cfg TURNConfig, peerID string, now time.Time) TURNCredentials {
	ttl := cfg.TTL
	if ttl < MinTURNTTL {
		ttl = MinTURNTTL
	}
	ttlSeconds := int(ttl / time.Second)

	if cfg.SharedSecret == "" {
		return TURNCredentials{
			URLs:       cfg.URLs,
			TTLSeconds: ttlSeconds,
		}
	}

	sanitized := sanitizePeerID(peerID)
	expiry := now.Unix() + int64(ttlSeconds)
	username := fmt.Sprintf("%d:%s", expiry, sanitized)

	mac := hmac.New(sha1.New, []byte(cfg.SharedSecret))
	mac.Write([]byte(username))
	credential := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return TURNCredentials{
		URLs:       cfg.URLs,
		Username:   username,
		Credential: credential,
		TTLSeconds: ttlSeconds,
	}
}

// sanitizePeerID strips everything but alphanumerics, underscore, and
// hyphen, then truncates to 40 characters.
func sanitizePeerID(peerID string) string {
	cleaned := turnPeerIDPattern.ReplaceAllString(peerID, "")
	if len(cleaned) > 40 {
		cleaned = cleaned[:40]
	}
	return cleaned
}
