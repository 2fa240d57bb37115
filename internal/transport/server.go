// Package transport wires the rendezvous broker (internal/broker) to
// the outside world: three REST endpoints, a health check, CORS and
// body-size gates, and the long-lived WebSocket message endpoint
// (spec.md §6). It plays the role the teacher's internal/handlers
// package plays — gin.HandlerFunc route handlers plus a
// gorilla/websocket upgrader — generalized from the teacher's
// ad hoc signaling relay to the spec's typed room/relay protocol.
package transport

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deveshpat/p2p-video-calling-secure/config"
	"github.com/deveshpat/p2p-video-calling-secure/internal/broker"
	"github.com/deveshpat/p2p-video-calling-secure/internal/ratelimit"
	"github.com/deveshpat/p2p-video-calling-secure/internal/redis"
)

// Server owns the gin engine, the broker, and the two rate limiters
// named in spec.md §6 ("REST_RATE_LIMIT_*", "WS_RATE_LIMIT_*").
type Server struct {
	cfg      *config.Config
	broker   *broker.Broker
	redis    *redis.Mirror
	restRL   *ratelimit.Limiter
	wsRL     *ratelimit.Limiter
	upgrader websocket.Upgrader
	Engine   *gin.Engine
}

// New builds a Server and registers every route.
func New(cfg *config.Config, b *broker.Broker, mirror *redis.Mirror) *Server {
	s := &Server{
		cfg:    cfg,
		broker: b,
		redis:  mirror,
		restRL: ratelimit.New(cfg.RESTRateLimitWindow, cfg.RESTRateLimitMax),
		wsRL:   ratelimit.New(cfg.WSRateLimitWindow, cfg.WSRateLimitMax),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // origin is gated by corsMiddleware before upgrade
		},
	}

	b.RegisterPruner(s.restRL)
	b.RegisterPruner(s.wsRL)

	engine := gin.Default()
	engine.Use(s.corsMiddleware(), s.bodyLimitMiddleware())
	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND"})
	})

	engine.GET("/health", s.handleHealth)

	v1 := engine.Group("/v1")
	v1.POST("/rooms", s.restRateLimit(), s.handleCreateRoom)
	v1.GET("/rooms/:id", s.handleRoomStatus)
	v1.POST("/turn-credentials", s.restRateLimit(), s.handleTURNCredentials)
	v1.GET("/ws", s.handleWebSocket)

	s.Engine = engine
	return s
}

// Run serves HTTP until ctx is cancelled, then drains the broker and
// shuts the HTTP server down. The broker's cleanup timer is started by
// broker.New, not here.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("transport: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.broker.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	}
}

func newPeerID() string {
	return uuid.NewString()
}
