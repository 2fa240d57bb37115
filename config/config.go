// Package config loads the broker's environment-variable driven
// configuration (spec.md §6, "Configuration (broker)"), the same
// os.Getenv-plus-defaults shape as the teacher's config package.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable enumerated in spec.md §6.
type Config struct {
	Port            string
	Host            string
	FrontendBaseURL string

	RoomTTL         time.Duration
	CleanupInterval time.Duration
	MaxJSONBodyBytes int64

	RESTRateLimitWindow time.Duration
	RESTRateLimitMax    int
	WSRateLimitWindow   time.Duration
	WSRateLimitMax      int

	TURNURLs         []string
	TURNSharedSecret string
	TURNTTL          time.Duration

	CORSOrigins []string

	Redis RedisConfig
}

// RedisConfig holds the optional Redis mirror used for cross-process
// TURN-nonce and rate-limit-counter sharing (SPEC_FULL.md §3). An
// empty Addr means the broker runs with in-process state only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads every enumerated environment variable, falling back to
// the teacher's convention of sane local-dev defaults.
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		Host:            getEnv("HOST", "0.0.0.0"),
		FrontendBaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:5173"),

		RoomTTL:          getDurationSeconds("ROOM_TTL_SECONDS", 24*time.Hour),
		CleanupInterval:  getDurationMillis("CLEANUP_INTERVAL_MS", time.Minute),
		MaxJSONBodyBytes: getInt64("MAX_JSON_BODY_BYTES", 16*1024),

		RESTRateLimitWindow: getDurationMillis("REST_RATE_LIMIT_WINDOW_MS", time.Minute),
		RESTRateLimitMax:    getInt("REST_RATE_LIMIT_MAX", 60),
		WSRateLimitWindow:   getDurationMillis("WS_RATE_LIMIT_WINDOW_MS", time.Minute),
		WSRateLimitMax:      getInt("WS_RATE_LIMIT_MAX", 30),

		TURNURLs:         splitCSV(getEnv("TURN_URLS", "")),
		TURNSharedSecret: getEnv("TURN_SHARED_SECRET", ""),
		TURNTTL:          getDurationSeconds("TURN_TTL_SECONDS", 6*time.Hour),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getDurationSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func getDurationMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
