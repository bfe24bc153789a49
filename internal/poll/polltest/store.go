// Package polltest holds the behaviour every poll.Store implementation must share.
package polltest

import (
	"context"
	"sync"
	"testing"
	"time"

	"poll-service/internal/poll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewPoll returns an open two-option poll owned by owner.
func NewPoll(id, owner string, createdAt time.Time) *poll.Poll {
	correct := true
	return &poll.Poll{
		ID:       id,
		Question: "Color?",
		Options: []poll.Option{
			{ID: 1, Text: "Red", Correct: &correct},
			{ID: 2, Text: "Blue"},
		},
		Timer:     30,
		Owner:     owner,
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

// RunStoreTests checks a Store implementation. newStore must return an empty store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) poll.Store) {
	t.Run("AppendAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		p := NewPoll("p1", "teacher_1", time.Now())

		require.NoError(t, store.Append(ctx, p))

		got, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, p.Question, got.Question)
		assert.Equal(t, p.Owner, got.Owner)
		assert.Equal(t, p.Timer, got.Timer)
		assert.False(t, got.Closed)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
		require.Len(t, got.Options, 2)
		assert.Equal(t, "Red", got.Options[0].Text)
		assert.Equal(t, "Blue", got.Options[1].Text)
		require.NotNil(t, got.Options[0].Correct)
		assert.True(t, *got.Options[0].Correct)
		assert.Nil(t, got.Options[1].Correct)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, poll.ErrPollNotFound)
	})

	t.Run("LoadKeepsCreationOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Now()
		require.NoError(t, store.Append(ctx, NewPoll("a", "t1", base)))
		require.NoError(t, store.Append(ctx, NewPoll("b", "t2", base.Add(time.Second))))
		require.NoError(t, store.Append(ctx, NewPoll("c", "t1", base.Add(2*time.Second))))

		all, err := store.Load(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"a", "b", "c"}, ids(all))

		mine, err := store.ListByOwner(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, ids(mine))

		none, err := store.ListByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UpdatePollAppliesMutator", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, NewPoll("p1", "t1", time.Now())))

		updated, err := store.UpdatePoll(ctx, "p1", func(p *poll.Poll) error {
			p.Options[1].Votes += 2
			p.Closed = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, poll.Tally{"Red": 0, "Blue": 2}, updated.Tally())
		assert.True(t, updated.Closed)

		got, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, poll.Tally{"Red": 0, "Blue": 2}, got.Tally())
		assert.True(t, got.Closed)
	})

	t.Run("UpdatePollMutatorErrorChangesNothing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, NewPoll("p1", "t1", time.Now())))

		_, err := store.UpdatePoll(ctx, "p1", func(p *poll.Poll) error {
			p.Options[0].Votes = 99
			return poll.ErrPollClosed
		})
		assert.ErrorIs(t, err, poll.ErrPollClosed)

		got, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.TotalVotes())
	})

	t.Run("UpdatePollMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.UpdatePoll(context.Background(), "missing", func(*poll.Poll) error { return nil })
		assert.ErrorIs(t, err, poll.ErrPollNotFound)
	})

	t.Run("ReturnedPollsAreCopies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Append(ctx, NewPoll("p1", "t1", time.Now())))

		got, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		got.Options[0].Votes = 42

		again, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, again.Options[0].Votes)
	})
}

// RunSerializedUpdates checks that updates issued one after another from many goroutines,
// as the engine does under a poll's lock, all land.
func RunSerializedUpdates(t *testing.T, store poll.Store) {
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, NewPoll("p1", "t1", time.Now())))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			_, err := store.UpdatePoll(ctx, "p1", func(p *poll.Poll) error {
				p.Options[0].Votes++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.Options[0].Votes)
}

func ids(polls []poll.Poll) []string {
	out := make([]string, len(polls))
	for i, p := range polls {
		out[i] = p.ID
	}
	return out
}
