package main

// @title           Live Poll Service API
// @version         1.0
// @description     Real-time classroom polls over WebSocket with a small REST surface
// @host            localhost:8080
// @BasePath        /
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "poll-service/docs"
	"poll-service/internal/adapters/kafka"
	"poll-service/internal/adapters/storage"
	"poll-service/internal/api/handlers"
	"poll-service/internal/api/middleware"
	"poll-service/internal/api/routes"
	"poll-service/internal/auth"
	"poll-service/internal/config"
	"poll-service/internal/database"
	"poll-service/internal/participant"
	"poll-service/internal/poll"
	"poll-service/internal/repositories/memory"
	"poll-service/internal/repositories/mongostore"
	"poll-service/internal/repositories/sqlstore"
	"poll-service/internal/services"
	"poll-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)
	slog.Info("Starting poll server", "driver", cfg.Database.Driver)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				slog.Warn("Failed to close resource", "error", err)
			}
		}
	}()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to open poll store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Optional Redis: presence mirror, tally cache and rate limiting
	var redisService *services.RedisService
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		closers = append(closers, redisClient)
		redisService = services.NewRedisService(redisClient)
	}

	sinks, sinkClosers := openSinks(cfg, redisService)
	closers = append(closers, sinkClosers...)

	hub := websocket.NewHub(cfg.Server.AllowedOrigins, logger)
	go hub.Run()

	engine := poll.NewEngine(store, hub, logger,
		poll.WithDefaultTimer(cfg.Poll.DefaultTimer),
		poll.WithTimerUnit(cfg.Poll.TimerUnit),
		poll.WithSinks(sinks...),
	)

	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := engine.Recover(recoverCtx); err != nil {
		slog.Error("Failed to recover open polls", "error", err)
	}
	cancelRecover()

	var presence participant.Presence
	var presenceReader routes.PresenceReader
	var limiter middleware.RateLimiter
	if redisService != nil {
		presence = redisService
		presenceReader = redisService
		limiter = redisService
	}
	registry := participant.NewRegistry(hub, presence, logger)

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpirationTime)
	router := routes.NewRouter(routes.Dependencies{
		WS:             handlers.NewWSHandler(hub, engine, registry, tokens, logger),
		Polls:          engine,
		Tokens:         tokens,
		Limiter:        limiter,
		Presence:       presenceReader,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health: func() gin.H {
			return gin.H{
				"connections":  hub.Count(),
				"participants": len(registry.Participants()),
				"openPolls":    engine.Tracker().Len(),
			}
		},
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
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Open polls stay open in the store; the next start resumes their timers.
	engine.Stop()
	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}

func openStore(cfg *config.Config) (poll.Store, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		return memory.NewPollStore(), func() {}, nil

	case "mongo":
		mongoDB, err := database.NewMongoConnection(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		repo := mongostore.NewPollRepository(mongoDB.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureIndexes(ctx); err != nil {
			slog.Warn("Failed to ensure mongo indexes", "error", err)
		}
		return repo, func() { mongoDB.Close(context.Background()) }, nil

	default:
		db, err := database.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.NewPollRepository(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil
	}
}

// openSinks connects the optional activity observers. A sink that cannot be reached is
// skipped so polls keep running without it.
func openSinks(cfg *config.Config, redisService *services.RedisService) ([]poll.ActivitySink, []io.Closer) {
	var sinks []poll.ActivitySink
	var closers []io.Closer

	if redisService != nil {
		sinks = append(sinks, redisService)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		switch cfg.Kafka.Client {
		case "sarama":
			producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			if err != nil {
				slog.Warn("Kafka producer unavailable, activity feed disabled", "error", err)
				break
			}
			sinks = append(sinks, producer)
			closers = append(closers, producer)
		default:
			writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			sinks = append(sinks, writer)
			closers = append(closers, writer)
		}
	}

	if cfg.MinIO.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive, err := storage.NewMinIOArchive(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey,
			cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
		cancel()
		if err != nil {
			slog.Warn("MinIO unavailable, result archive disabled", "error", err)
		} else {
			sinks = append(sinks, archive)
		}
	}

	return sinks, closers
}
