package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"taskplanner/internal/api/handlers"
	"taskplanner/internal/api/middleware"
	"taskplanner/internal/api/routes"
	"taskplanner/internal/auth"
	"taskplanner/internal/config"
	"taskplanner/internal/database"
	"taskplanner/internal/events"
	"taskplanner/internal/repositories/postgres"
	"taskplanner/internal/services"
	"taskplanner/internal/websocket"
	"taskplanner/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level)
	log.Info("Starting real-time server")

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		log.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	users := postgres.NewUserRepository(db)
	verifier := auth.NewVerifier(cfg.JWT, users, log)

	hub := websocket.NewHub(cfg.WebSocket, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var workers sync.WaitGroup

	// Redis is optional: without it presence is not mirrored and rate limits
	// are not enforced.
	var limiter middleware.RateLimiter
	var mirror handlers.PresenceMirror
	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			log.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		presence := services.NewPresenceService(redisClient.GetClient(), log)
		if err := presence.Reset(ctx, nil); err != nil {
			log.Warn("Failed to clear stale presence", "error", err)
		}
		presence.Observe(hub)
		mirror = presence
		workers.Add(1)
		go func() {
			defer workers.Done()
			presence.Run(ctx, hub, 0)
		}()

		limiter = services.NewRedisRateLimiter(redisClient.GetClient())
	}

	var consumer *events.Consumer
	if cfg.Kafka.Enabled {
		consumer = events.NewConsumer(cfg.Kafka, hub, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error("Kafka consumer stopped with error", "error", err)
			}
		}()
	}

	router := routes.NewRouter(routes.Deps{
		WSHandler:      websocket.NewHandler(hub, verifier),
		Broker:         hub,
		Users:          users,
		Presence:       mirror,
		Verifier:       verifier,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		Logger:         log,
	})
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Refuse new handshakes and close live sockets before draining HTTP.
	hub.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	workers.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("Failed to close Kafka consumer", "error", err)
		}
	}

	log.Info("Server stopped")
}
