package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/peergrid/signaling/config"
	"github.com/peergrid/signaling/internal/handlers"
	"github.com/peergrid/signaling/internal/presence"
	"github.com/peergrid/signaling/internal/redis"
	"github.com/peergrid/signaling/internal/router"
)

func main() {
	cfg := config.Load()

	// Optional Redis mirror for out-of-process room inspection
	var mirror *redis.Mirror
	if cfg.Redis.Enabled {
		client, err := redis.Connect(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		mirror = redis.NewMirror(client)
		defer mirror.Close()
		log.Println("Redis connection established")
	}

	registry := presence.NewRegistry(presence.Config{
		DefaultRooms:    cfg.Signaling.DefaultRooms,
		DefaultMaxPeers: cfg.Signaling.RoomMaxPeers,
		PeerTimeout:     cfg.Signaling.PeerTimeout,
		SweepInterval:   cfg.Signaling.SweepInterval,
	})
	defer registry.Close()

	rt := router.NewRouter(router.Config{
		SignalTTL:          cfg.Signaling.SignalTTL,
		SweepInterval:      cfg.Signaling.SweepInterval,
		DefaultPollTimeout: cfg.Signaling.PollTimeout,
		MaxPollTimeout:     cfg.Signaling.MaxPollTimeout,
	}, registry)
	defer rt.Close()

	registry.Subscribe(rt.HandleEvent)
	if mirror != nil {
		registry.Subscribe(mirror.HandleEvent)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	engine.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := handlers.NewAPI(cfg, registry, rt, mirror)
	api.RegisterRoutes(engine)

	log.Printf("Starting peer-signaling coordinator on port %s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
