package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deveshpat/p2p-video-calling-secure/config"
	"github.com/deveshpat/p2p-video-calling-secure/internal/broker"
	"github.com/deveshpat/p2p-video-calling-secure/internal/redis"
	"github.com/deveshpat/p2p-video-calling-secure/internal/transport"
)

func main() {
	cfg := config.Load()

	mirror, err := redis.Connect(cfg.Redis)
	if err != nil {
		log.Fatalf("connecting to redis: %v", err)
	}
	defer mirror.Close()
	if mirror.Enabled() {
		log.Println("redis mirror enabled for rate-limit/turn-nonce sharing")
	}

	b := broker.New(broker.Config{
		RoomTTL:         cfg.RoomTTL,
		CleanupInterval: cfg.CleanupInterval,
		TURN: broker.TURNConfig{
			URLs:         cfg.TURNURLs,
			SharedSecret: cfg.TURNSharedSecret,
			TTL:          cfg.TURNTTL,
		},
	})

	srv := transport.New(cfg, b, mirror)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := cfg.Host + ":" + cfg.Port
	log.Printf("starting rendezvous broker on %s", addr)
	if err := srv.Run(ctx, addr); err != nil && err != context.Canceled {
		log.Printf("server exited: %v", err)
	}
}
