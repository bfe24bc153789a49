package poll_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"poll-service/internal/events"
	"poll-service/internal/poll"
	"poll-service/internal/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 20 * time.Millisecond

func newTestEngine(store poll.Store, opts ...poll.EngineOption) (*poll.Engine, *recordingPublisher) {
	pub := &recordingPublisher{}
	opts = append([]poll.EngineOption{poll.WithTimerUnit(tick)}, opts...)
	return poll.NewEngine(store, pub, nil, opts...), pub
}

func TestCreatePersistsThenBroadcasts(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store)
	ctx := context.Background()

	p, err := engine.Create(ctx, colorRequest(100))
	require.NoError(t, err)
	defer engine.Stop()

	assert.NotEmpty(t, p.ID)
	require.Len(t, p.Options, 2)
	assert.Equal(t, 1, p.Options[0].ID)
	assert.Equal(t, 2, p.Options[1].ID)
	assert.Equal(t, 0, p.TotalVotes())
	assert.False(t, p.Closed)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Color?", stored.Question)
	assert.Equal(t, "teacher_1", stored.Owner)

	evts := pub.all()
	require.Len(t, evts, 1)
	assert.Equal(t, events.PollCreated, evts[0].Event)
	created := evts[0].Payload.(*poll.Poll)
	assert.Equal(t, p.ID, created.ID)
	assert.Equal(t, 1, engine.Tracker().Len())
}

func TestCreateKeepsSuppliedOptionIDs(t *testing.T) {
	engine, _ := newTestEngine(memory.NewPollStore())
	defer engine.Stop()

	seven := 7
	correct := true
	p, err := engine.Create(context.Background(), poll.CreateRequest{
		Question: "Pick",
		Options:  []poll.OptionInput{{ID: &seven, Text: "A", Correct: &correct}, {Text: "B"}},
		Timer:    -1,
	})
	require.NoError(t, err)

	assert.Equal(t, 7, p.Options[0].ID)
	assert.Equal(t, 2, p.Options[1].ID)
	require.NotNil(t, p.Options[0].Correct)
	assert.True(t, *p.Options[0].Correct)
	assert.Nil(t, p.Options[1].Correct)
}

func TestCreateAppliesDefaultTimer(t *testing.T) {
	engine, _ := newTestEngine(memory.NewPollStore(), poll.WithDefaultTimer(45))
	defer engine.Stop()

	p, err := engine.Create(context.Background(), colorRequest(0))
	require.NoError(t, err)
	assert.Equal(t, 45, p.Timer)
}

func TestCreateRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		options []poll.OptionInput
	}{
		{"no options", nil},
		{"blank text", []poll.OptionInput{{Text: "Red"}, {Text: "  "}}},
		{"duplicate text", []poll.OptionInput{{Text: "Red"}, {Text: "Red"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewPollStore()
			engine, pub := newTestEngine(store)

			_, err := engine.Create(context.Background(), poll.CreateRequest{Question: "Q", Options: tt.options, Timer: 10})
			assert.ErrorIs(t, err, poll.ErrInvalidPoll)
			assert.Empty(t, pub.all())

			polls, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, polls)
		})
	}
}

func TestColorPollLifecycle(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store, poll.WithTimerUnit(50*time.Millisecond))
	ctx := context.Background()

	p, err := engine.Create(ctx, colorRequest(2))
	require.NoError(t, err)

	for _, option := range []string{"Red", "Red", "Blue"} {
		_, err := engine.SubmitVote(ctx, p.ID, option, "student")
		require.NoError(t, err)
	}

	results := pub.results()
	require.Len(t, results, 3)
	assert.Equal(t, poll.Tally{"Red": 1, "Blue": 0}, results[0])
	assert.Equal(t, poll.Tally{"Red": 2, "Blue": 0}, results[1])
	assert.Equal(t, poll.Tally{"Red": 2, "Blue": 1}, results[2])

	require.Eventually(t, func() bool {
		return len(pub.results()) == 4
	}, time.Second, 5*time.Millisecond)

	// no second final broadcast
	time.Sleep(5 * tick)
	results = pub.results()
	require.Len(t, results, 4)
	assert.Equal(t, poll.Tally{"Red": 2, "Blue": 1}, results[3])

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Closed)
	assert.Equal(t, 0, engine.Tracker().Len())

	_, err = engine.SubmitVote(ctx, p.ID, "Red", "late")
	assert.ErrorIs(t, err, poll.ErrPollClosed)
	assert.Len(t, pub.results(), 4)
}

func TestConcurrentVotesAreAllCounted(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store)
	ctx := context.Background()
	defer engine.Stop()

	p, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)

	const voters = 200
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			option := "Red"
			if i%2 == 1 {
				option = "Blue"
			}
			_, err := engine.SubmitVote(ctx, p.ID, option, fmt.Sprintf("student_%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.Tally{"Red": voters / 2, "Blue": voters / 2}, stored.Tally())

	// broadcasts follow the order votes were applied in
	results := pub.results()
	require.Len(t, results, voters)
	for i, tally := range results {
		assert.Equal(t, i+1, tally["Red"]+tally["Blue"])
	}
}

func TestConcurrentCloseFinalizesOnce(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store)
	ctx := context.Background()

	p, err := engine.Create(ctx, colorRequest(1))
	require.NoError(t, err)
	_, err = engine.SubmitVote(ctx, p.ID, "Blue", "student")
	require.NoError(t, err)

	const closers = 20
	errs := make(chan error, closers)
	var wg sync.WaitGroup
	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- engine.Close(ctx, p.ID)
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, poll.ErrAlreadyFinalized)
	}

	// the timer may have won the race; either way a single final broadcast goes out
	time.Sleep(5 * tick)
	assert.LessOrEqual(t, succeeded, 1)
	results := pub.results()
	require.Len(t, results, 2)
	assert.Equal(t, poll.Tally{"Red": 0, "Blue": 1}, results[1])

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Closed)
}

func TestCloseAfterCloseReportsAlreadyFinalized(t *testing.T) {
	engine, pub := newTestEngine(memory.NewPollStore())
	ctx := context.Background()

	p, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)

	require.NoError(t, engine.Close(ctx, p.ID))
	assert.ErrorIs(t, engine.Close(ctx, p.ID), poll.ErrAlreadyFinalized)
	assert.Equal(t, 1, pub.count(events.PollResults))
}

func TestRejectedVotesChangeNothing(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store)
	ctx := context.Background()
	defer engine.Stop()

	p, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)

	_, err = engine.SubmitVote(ctx, p.ID, "Green", "student")
	assert.ErrorIs(t, err, poll.ErrOptionNotFound)

	// matching is exact
	_, err = engine.SubmitVote(ctx, p.ID, "red", "student")
	assert.ErrorIs(t, err, poll.ErrOptionNotFound)

	_, err = engine.SubmitVote(ctx, "missing", "Red", "student")
	assert.ErrorIs(t, err, poll.ErrPollNotFound)

	assert.ErrorIs(t, engine.Close(ctx, "missing"), poll.ErrPollNotFound)

	assert.Equal(t, 0, pub.count(events.PollResults))
	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TotalVotes())
}

func TestPollsAreIndependent(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store)
	ctx := context.Background()
	defer engine.Stop()

	first, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)
	second, err := engine.Create(ctx, poll.CreateRequest{
		Question: "Shape?",
		Options:  []poll.OptionInput{{Text: "Square"}, {Text: "Circle"}},
		Timer:    -1,
	})
	require.NoError(t, err)

	_, err = engine.SubmitVote(ctx, first.ID, "Red", "a")
	require.NoError(t, err)
	require.NoError(t, engine.Close(ctx, first.ID))

	tally, err := engine.SubmitVote(ctx, second.ID, "Circle", "b")
	require.NoError(t, err)
	assert.Equal(t, poll.Tally{"Square": 0, "Circle": 1}, tally)

	storedFirst, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.Tally{"Red": 1, "Blue": 0}, storedFirst.Tally())
	assert.Equal(t, 2, pub.count(events.PollCreated))
	assert.Equal(t, 1, engine.Tracker().Len())
}

func TestPersistenceFailure(t *testing.T) {
	store := newFlakyStore()
	engine, pub := newTestEngine(store)
	ctx := context.Background()
	defer engine.Stop()

	p, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)

	store.failing.Store(true)

	_, err = engine.SubmitVote(ctx, p.ID, "Red", "student")
	assert.ErrorIs(t, err, poll.ErrPersistence)

	err = engine.Close(ctx, p.ID)
	assert.ErrorIs(t, err, poll.ErrPersistence)
	assert.Equal(t, 1, engine.Tracker().Len(), "poll stays open when the close was not stored")

	_, err = engine.Create(ctx, colorRequest(5))
	assert.ErrorIs(t, err, poll.ErrPersistence)

	assert.Equal(t, 0, pub.count(events.PollResults))
	assert.Equal(t, 1, pub.count(events.PollCreated))

	store.failing.Store(false)

	tally, err := engine.SubmitVote(ctx, p.ID, "Red", "student")
	require.NoError(t, err)
	assert.Equal(t, poll.Tally{"Red": 1, "Blue": 0}, tally)
	require.NoError(t, engine.Close(ctx, p.ID))
	assert.Equal(t, 2, pub.count(events.PollResults))
}

func TestRecoverResumesOpenPolls(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPollStore()
	now := time.Now().UTC()

	fresh := &poll.Poll{ID: "fresh", Question: "Q1", Timer: 1000, CreatedAt: now,
		Options: []poll.Option{{ID: 1, Text: "A"}, {ID: 2, Text: "B"}}}
	expired := &poll.Poll{ID: "expired", Question: "Q2", Timer: 1, CreatedAt: now.Add(-time.Hour),
		Options: []poll.Option{{ID: 1, Text: "A", Votes: 3}}}
	done := &poll.Poll{ID: "done", Question: "Q3", Timer: 1, CreatedAt: now.Add(-time.Hour), Closed: true,
		Options: []poll.Option{{ID: 1, Text: "A"}}}
	for _, p := range []*poll.Poll{fresh, expired, done} {
		require.NoError(t, store.Append(ctx, p))
	}

	sink := &recordingSink{}
	engine, pub := newTestEngine(store, poll.WithSinks(sink))
	defer engine.Stop()

	resumed, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, resumed)

	stored, err := store.Get(ctx, "expired")
	require.NoError(t, err)
	assert.True(t, stored.Closed)
	require.Len(t, pub.results(), 1)
	assert.Equal(t, poll.Tally{"A": 3}, pub.results()[0])
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]poll.ActivityKind{poll.ActivityClosed}, sink.kinds())
	}, time.Second, 5*time.Millisecond)

	tally, err := engine.SubmitVote(ctx, "fresh", "B", "student")
	require.NoError(t, err)
	assert.Equal(t, poll.Tally{"A": 0, "B": 1}, tally)

	_, err = engine.SubmitVote(ctx, "done", "A", "student")
	assert.ErrorIs(t, err, poll.ErrPollClosed)
	assert.Equal(t, 1, engine.Tracker().Len())
}

func TestSinksSeeEveryAcceptedChange(t *testing.T) {
	sink := &recordingSink{err: fmt.Errorf("sink offline")}
	engine, pub := newTestEngine(memory.NewPollStore(), poll.WithSinks(sink))
	ctx := context.Background()

	p, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)
	_, err = engine.SubmitVote(ctx, p.ID, "Red", "student")
	require.NoError(t, err)
	_, err = engine.SubmitVote(ctx, p.ID, "Purple", "student")
	require.Error(t, err)
	require.NoError(t, engine.Close(ctx, p.ID))
	engine.Stop()

	assert.Equal(t, []poll.ActivityKind{poll.ActivityCreated, poll.ActivityVote, poll.ActivityClosed}, sink.kinds())
	assert.Equal(t, 2, pub.count(events.PollResults), "a failing sink does not block broadcasts")
}

func TestSlowSinkDoesNotDelayVotes(t *testing.T) {
	release := make(chan struct{})
	sink := &blockingSink{release: release}
	engine, pub := newTestEngine(memory.NewPollStore(), poll.WithSinks(sink))
	ctx := context.Background()

	p, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_, err := engine.SubmitVote(ctx, p.ID, "Red", "student")
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("votes waited on a blocked sink")
	}
	assert.Equal(t, 5, pub.count(events.PollResults))

	close(release)
	engine.Stop()
	assert.Equal(t, int32(6), sink.calls.Load())
}

func TestCreateRejectsTimerBeyondDurationRange(t *testing.T) {
	store := memory.NewPollStore()
	engine, pub := newTestEngine(store, poll.WithTimerUnit(time.Second))

	_, err := engine.Create(context.Background(), colorRequest(10_000_000_000))
	assert.ErrorIs(t, err, poll.ErrInvalidPoll)
	assert.Empty(t, pub.all())
	assert.Equal(t, 0, engine.Tracker().Len())

	p, err := engine.Create(context.Background(), colorRequest(9_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, 9_000_000_000, p.Timer)
	engine.Stop()
}

func TestRecoverSaturatesOversizedStoredTimer(t *testing.T) {
	store := memory.NewPollStore()
	ctx := context.Background()
	huge := &poll.Poll{ID: "huge", Question: "Q", Timer: 10_000_000_000, CreatedAt: time.Now().Add(-time.Hour),
		Options: []poll.Option{{ID: 1, Text: "A"}}}
	require.NoError(t, store.Append(ctx, huge))

	engine, pub := newTestEngine(store, poll.WithTimerUnit(time.Second))
	defer engine.Stop()

	resumed, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Empty(t, pub.results())

	closed, err := engine.Tracker().IsClosed("huge")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestStopRejectsNewPolls(t *testing.T) {
	engine, _ := newTestEngine(memory.NewPollStore())
	engine.Stop()

	_, err := engine.Create(context.Background(), colorRequest(1))
	assert.ErrorIs(t, err, poll.ErrEngineStopped)
}

func TestListPolls(t *testing.T) {
	engine, _ := newTestEngine(memory.NewPollStore())
	ctx := context.Background()
	defer engine.Stop()

	_, err := engine.Create(ctx, colorRequest(-1))
	require.NoError(t, err)
	other := colorRequest(-1)
	other.Owner = "teacher_2"
	_, err = engine.Create(ctx, other)
	require.NoError(t, err)

	all, err := engine.Polls(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := engine.PollsByOwner(ctx, "teacher_2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "teacher_2", mine[0].Owner)
}
