package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"poll-service/internal/database"
	"poll-service/internal/poll"

	"github.com/redis/go-redis/v9"
)

const (
	onlineParticipantsKey = "online_participants"
	pollEventsChannel     = "poll:events"
	tallyTTL              = 24 * time.Hour
)

// RedisService mirrors participant presence and poll tallies into Redis and backs the
// HTTP rate limiter.
type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{
		client: client,
	}
}

// =============================================================================
// Participant Presence
// =============================================================================

func participantStatusKey(name string) string {
	return fmt.Sprintf("participant:%s:status", name)
}

func (r *RedisService) SetParticipantOnline(ctx context.Context, name string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, onlineParticipantsKey, name)
	pipe.HSet(ctx, participantStatusKey(name), map[string]interface{}{
		"status":     "online",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, participantStatusKey(name), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set participant online", "name", name, "error", err)
		return err
	}

	slog.Debug("Participant set to online", "name", name)
	return nil
}

func (r *RedisService) SetParticipantOffline(ctx context.Context, name string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, onlineParticipantsKey, name)
	pipe.HSet(ctx, participantStatusKey(name), map[string]interface{}{
		"status":     "offline",
		"last_seen":  time.Now().Unix(),
		"updated_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, participantStatusKey(name), 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set participant offline", "name", name, "error", err)
		return err
	}

	slog.Debug("Participant set to offline", "name", name)
	return nil
}

// OnlineParticipants lists the names the presence mirror currently holds.
func (r *RedisService) OnlineParticipants(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineParticipantsKey).Result()
}

// =============================================================================
// Poll Activity
// =============================================================================

func pollTallyKey(pollID string) string {
	return fmt.Sprintf("poll:%s:tally", pollID)
}

// Record keeps the latest tally of each poll in the poll:<id>:tally hash and publishes the
// activity on the poll:events channel, for dashboards and other instances to consume.
func (r *RedisService) Record(ctx context.Context, a poll.Activity) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}

	pipe := r.client.GetClient().Pipeline()
	if len(a.Tally) > 0 {
		fields := make(map[string]interface{}, len(a.Tally))
		for text, votes := range a.Tally {
			fields[text] = votes
		}
		pipe.HSet(ctx, pollTallyKey(a.PollID), fields)
		pipe.Expire(ctx, pollTallyKey(a.PollID), tallyTTL)
	}
	pipe.Publish(ctx, pollEventsChannel, payload)

	_, err = pipe.Exec(ctx)
	return err
}

// =============================================================================
// Rate Limiting
// =============================================================================

func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	results, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	count := results[1].(*redis.IntCmd).Val()
	return count < int64(limit), nil
}
