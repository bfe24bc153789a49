package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"poll-service/internal/config"
	"poll-service/internal/database"
	"poll-service/internal/repositories/mongostore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	slog.SetDefault(cfg.Log.NewLogger())

	slog.Info("Starting poll store migration...", "driver", cfg.Database.Driver)

	switch cfg.Database.Driver {
	case "memory":
		slog.Info("Memory store has no schema, nothing to migrate")

	case "mongo":
		mongoDB, err := database.NewMongoConnection(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		defer mongoDB.Close(ctx)

		if err := mongostore.NewPollRepository(mongoDB.DB).EnsureIndexes(ctx); err != nil {
			log.Fatal("Failed to create indexes:", err)
		}

	default:
		// OpenSQL runs the GORM auto-migration
		db, err := database.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("Failed to get database instance:", err)
		}
		defer sqlDB.Close()

		if err := sqlDB.Ping(); err != nil {
			log.Fatal("Failed to ping database:", err)
		}
	}

	slog.Info("Poll store migration completed successfully!")
}
