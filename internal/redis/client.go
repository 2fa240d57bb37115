// Package redis wraps the optional Redis mirror the broker uses to
// stay restart-safe and horizontally shareable across more than one
// broker process (SPEC_FULL.md §3, "DOMAIN STACK"). The room registry
// itself stays in-process per spec.md §5 ("no cross-process
// sharing"); Redis here only backs two auxiliary concerns that do
// benefit from being shared: rate-limit window counters and TURN
// credential replay-nonce tracking. A broker run without REDIS_ADDR
// configured simply never connects and every mirror call below is a
// silent no-op against a nil client.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deveshpat/p2p-video-calling-secure/config"
)

// Mirror is a thin optional client for cross-process counters. A nil
// *Mirror (or one built with an empty Addr) degrades every method to
// a no-op, so callers never need a separate "is redis configured"
// branch.
type Mirror struct {
	client *redis.Client
}

// Connect builds a Mirror from cfg. If cfg.Addr is empty it returns a
// Mirror with no underlying client — every method becomes a no-op —
// rather than an error, since Redis is optional infrastructure here.
func Connect(cfg config.RedisConfig) (*Mirror, error) {
	if cfg.Addr == "" {
		return &Mirror{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Mirror{client: client}, nil
}

// Close releases the underlying connection, if any.
func (m *Mirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Enabled reports whether this Mirror has a live Redis connection.
func (m *Mirror) Enabled() bool {
	return m != nil && m.client != nil
}

// IncrWindow increments a fixed-window counter keyed by name, setting
// its expiry to window on first increment, and returns the new
// count. Mirrors internal/ratelimit's in-process counters so a
// second broker process observes the same window. Returns (0, nil)
// when Redis is not configured, so callers fall back to the
// in-process limiter as the source of truth.
func (m *Mirror) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if !m.Enabled() {
		return 0, nil
	}
	count, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		m.client.Expire(ctx, key, window)
	}
	return count, nil
}

// ReserveNonce atomically records a TURN credential username as
// spent, returning true if it was not already present (i.e. the
// caller may proceed). It expires after ttl so the replay-detection
// set never grows unbounded beyond one credential lifetime. A
// disabled Mirror always reports true: replay protection is
// best-effort infrastructure, not a correctness requirement of
// buildTurnCredentials itself.
func (m *Mirror) ReserveNonce(ctx context.Context, username string, ttl time.Duration) (bool, error) {
	if !m.Enabled() {
		return true, nil
	}
	key := "turn:nonce:" + username
	ok, err := m.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}
