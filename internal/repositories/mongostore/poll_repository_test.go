package mongostore_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"poll-service/internal/database"
	"poll-service/internal/poll"
	"poll-service/internal/poll/polltest"
	"poll-service/internal/repositories/mongostore"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoCheckOnce sync.Once
	mongoUp        bool
)

// isMongoAvailable pings MongoDB once with a short timeout.
func isMongoAvailable() bool {
	mongoCheckOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI()).SetServerSelectionTimeout(2*time.Second))
		if err != nil {
			return
		}
		defer client.Disconnect(context.Background())
		mongoUp = client.Ping(ctx, nil) == nil
	})
	return mongoUp
}

func mongoURI() string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}
	return "mongodb://localhost:27017"
}

// newRepository connects to a throwaway database, or skips when MongoDB is not running.
func newRepository(t *testing.T) *mongostore.PollRepository {
	t.Helper()
	if !isMongoAvailable() {
		t.Skip("MongoDB not available")
	}
	dbName := fmt.Sprintf("poll_test_%d", time.Now().UnixNano())
	conn, err := database.NewMongoConnection(mongoURI(), dbName)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn.DB.Drop(ctx)
		conn.Close(ctx)
	})

	repo := mongostore.NewPollRepository(conn.DB)
	require.NoError(t, repo.EnsureIndexes(context.Background()))
	return repo
}

func TestPollRepository(t *testing.T) {
	polltest.RunStoreTests(t, func(t *testing.T) poll.Store {
		return newRepository(t)
	})
}

func TestPollRepositorySerializedUpdates(t *testing.T) {
	polltest.RunSerializedUpdates(t, newRepository(t))
}
