package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"poll-service/internal/config"
	"poll-service/internal/database"
	"poll-service/internal/poll"
	"poll-service/internal/repositories/mongostore"
	"poll-service/internal/repositories/sqlstore"

	"github.com/google/uuid"
)

const demoOwner = "teacher_demo"

type demoOption struct {
	text    string
	correct bool
	votes   int
}

var demoPolls = []struct {
	question string
	options  []demoOption
}{
	{"Which planet is known as the Red Planet?", []demoOption{
		{"Mars", true, 14}, {"Venus", false, 3}, {"Jupiter", false, 2}, {"Saturn", false, 1},
	}},
	{"What is 7 x 8?", []demoOption{
		{"54", false, 4}, {"56", true, 17}, {"58", false, 1},
	}},
	{"Which gas do plants absorb?", []demoOption{
		{"Oxygen", false, 6}, {"Carbon dioxide", true, 12}, {"Nitrogen", false, 2},
	}},
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	slog.SetDefault(cfg.Log.NewLogger())

	slog.Info("Starting poll history seeding...", "driver", cfg.Database.Driver)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store poll.Store
	switch cfg.Database.Driver {
	case "memory":
		log.Fatal("Memory store does not outlive the process, nothing to seed")
	case "mongo":
		mongoDB, err := database.NewMongoConnection(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer mongoDB.Close(context.Background())
		store = mongostore.NewPollRepository(mongoDB.DB)
	default:
		db, err := database.OpenSQL(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		store = sqlstore.NewPollRepository(db)
	}

	existing, err := store.ListByOwner(ctx, demoOwner)
	if err != nil {
		log.Fatal("Failed to read poll history:", err)
	}
	if len(existing) > 0 {
		slog.Info("Demo polls already present, skipping", "owner", demoOwner, "count", len(existing))
		return
	}

	start := time.Now().Add(-time.Hour)
	for i, demo := range demoPolls {
		p := buildClosedPoll(demo.question, demo.options, start.Add(time.Duration(i)*5*time.Minute))
		if err := store.Append(ctx, p); err != nil {
			slog.Warn("Failed to seed poll", "question", demo.question, "error", err)
			continue
		}
		slog.Info("Created poll", "id", p.ID, "question", p.Question, "votes", p.TotalVotes())
	}

	slog.Info("Poll history seeding completed successfully!")
}

func buildClosedPoll(question string, options []demoOption, createdAt time.Time) *poll.Poll {
	p := &poll.Poll{
		ID:        uuid.NewString(),
		Question:  question,
		Timer:     60,
		Owner:     demoOwner,
		CreatedAt: createdAt.UTC(),
		Closed:    true,
	}
	for i, opt := range options {
		correct := opt.correct
		p.Options = append(p.Options, poll.Option{ID: i + 1, Text: opt.text, Correct: &correct, Votes: opt.votes})
	}
	return p
}
