package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware enforces the origin allow-list from spec.md §6:
// disallowed origins get 403 {code:"CORS_BLOCKED"}; any OPTIONS
// request is answered 204 without reaching a route handler.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if !allowed[origin] {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "CORS_BLOCKED"})
				return
			}
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			c.Writer.Header().Set("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// bodyLimitMiddleware enforces spec.md §6's per-request body cap,
// returning 413 {code:"BODY_TOO_LARGE"} for requests whose declared
// Content-Length exceeds the configured maximum. A body without a
// declared length is cut off at the maximum by http.MaxBytesReader;
// that case gets no 413 here, and the handler sees a read error.
func (s *Server) bodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > s.cfg.MaxJSONBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"code": "BODY_TOO_LARGE"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxJSONBodyBytes)
		c.Next()
	}
}

// restRateLimit enforces the REST_RATE_LIMIT_* window/cap, keyed by
// client IP, returning 429 {code:"RATE_LIMITED"} over the limit. When
// a Redis mirror is configured, the window is also mirrored there so
// a second broker process observes the same count; the in-process
// limiter remains the enforced decision (spec.md §5 requires no
// cross-process dependency for correctness).
func (s *Server) restRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !s.restRL.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED"})
			return
		}
		if s.redis.Enabled() {
			s.redis.IncrWindow(c.Request.Context(), "ratelimit:rest:"+ip, s.cfg.RESTRateLimitWindow)
		}
		c.Next()
	}
}
