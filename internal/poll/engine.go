package poll

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"poll-service/internal/events"
)

// Engine drives the poll lifecycle: creation, vote acceptance, timed or explicit close,
// and the broadcasts that go with each accepted change.
//
// Every broadcast happens after the corresponding store write succeeded, so clients never
// see state the store does not hold. A poll is finalized exactly once; a timer firing at the
// same moment as an explicit close produces a single final pollResults.
type Engine struct {
	store     Store
	tracker   *Tracker
	votes     *Aggregator
	publisher events.Publisher
	sinks     []ActivitySink
	activity  *activityQueue
	logger    *slog.Logger

	defaultTimer int
	timerUnit    time.Duration
	now          func() time.Time
	newID        func() string

	stopped atomic.Bool
}

func NewEngine(store Store, publisher events.Publisher, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:        store,
		tracker:      NewTracker(),
		votes:        NewAggregator(store),
		publisher:    publisher,
		logger:       logger,
		defaultTimer: defaultTimerSeconds,
		timerUnit:    time.Second,
		now:          time.Now,
		newID:        defaultID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.sinks) > 0 {
		e.activity = newActivityQueue(e.sinks, logger)
	}
	return e
}

// Tracker exposes the set of open polls.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Create opens a new poll and broadcasts pollCreated once the record is persisted.
// A timer of 0 falls back to the default; a negative timer disables auto-close.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Poll, error) {
	if e.stopped.Load() {
		return nil, ErrEngineStopped
	}

	options, err := normalizeOptions(req.Options)
	if err != nil {
		return nil, err
	}
	timer := int(req.Timer)
	if timer == 0 {
		timer = e.defaultTimer
	}
	if limit := e.maxTimer(); timer > limit {
		return nil, invalidf("timer %d exceeds the maximum of %d", timer, limit)
	}

	p := &Poll{
		ID:        e.newID(),
		Question:  req.Question,
		Options:   options,
		Timer:     timer,
		Owner:     req.Owner,
		CreatedAt: e.now().UTC(),
	}

	if err := e.store.Append(ctx, p); err != nil {
		e.logger.Error("Failed to persist poll", "pollID", p.ID, "error", err)
		return nil, persistenceErr("append poll", err)
	}

	e.tracker.Register(p, e.duration(timer), e.onTimerExpiry)
	e.publisher.Publish(events.PollCreated, p.Clone())
	e.record(Activity{Kind: ActivityCreated, PollID: p.ID, Owner: p.Owner, Poll: p.Clone()})

	e.logger.Info("Poll created", "pollID", p.ID, "owner", p.Owner, "options", len(p.Options), "timer", timer)
	return p.Clone(), nil
}

// SubmitVote records one vote for the option with exactly matching text and broadcasts
// the new tally. Rejected votes (unknown poll, closed poll, unknown option) change nothing
// and broadcast nothing.
func (e *Engine) SubmitVote(ctx context.Context, pollID, optionText, voter string) (Tally, error) {
	active, ok := e.tracker.Lookup(pollID)
	if !ok {
		return nil, e.untracked(ctx, pollID, ErrPollClosed)
	}

	var tally Tally
	err := active.Serialize(func() error {
		t, err := e.votes.Apply(ctx, active, optionText)
		if err != nil {
			return err
		}
		tally = t
		e.publisher.Publish(events.PollResults, t)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			e.logger.Error("Failed to persist vote", "pollID", pollID, "voter", voter, "error", err)
		} else {
			e.logger.Debug("Vote rejected", "pollID", pollID, "voter", voter, "option", optionText, "error", err)
		}
		return nil, err
	}
	e.record(Activity{Kind: ActivityVote, PollID: pollID, Voter: voter, Option: optionText, Tally: tally})
	return tally, nil
}

// Close finalizes a poll on request. It returns ErrAlreadyFinalized when the poll was
// closed before, by the timer or by another request.
func (e *Engine) Close(ctx context.Context, pollID string) error {
	return e.finalize(ctx, pollID, "explicit")
}

func (e *Engine) onTimerExpiry(pollID string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()

	if err := e.finalize(ctx, pollID, "timer"); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
		e.logger.Error("Failed to auto-close poll", "pollID", pollID, "error", err)
	}
}

func (e *Engine) finalize(ctx context.Context, pollID, reason string) error {
	var final *Poll
	err := e.tracker.Finalize(pollID, func(a *ActivePoll) error {
		updated, err := e.store.UpdatePoll(ctx, pollID, func(p *Poll) error {
			p.Closed = true
			return nil
		})
		if err != nil {
			return persistenceErr("close poll", err)
		}
		a.record = updated
		final = updated
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrPollNotFound):
		return e.untracked(ctx, pollID, ErrAlreadyFinalized)
	case errors.Is(err, ErrAlreadyFinalized):
		e.logger.Debug("Poll already finalized", "pollID", pollID, "reason", reason)
		return err
	default:
		e.logger.Error("Failed to finalize poll", "pollID", pollID, "reason", reason, "error", err)
		return err
	}

	tally := final.Tally()
	e.publisher.Publish(events.PollResults, tally)
	e.record(Activity{Kind: ActivityClosed, PollID: pollID, Owner: final.Owner, Poll: final.Clone(), Tally: tally})

	e.logger.Info("Poll finalized", "pollID", pollID, "reason", reason, "votes", final.TotalVotes())
	return nil
}

// Polls lists every stored poll, oldest first.
func (e *Engine) Polls(ctx context.Context) ([]Poll, error) {
	polls, err := e.store.Load(ctx)
	if err != nil {
		return nil, persistenceErr("load polls", err)
	}
	return polls, nil
}

// PollsByOwner lists the polls created by owner, oldest first.
func (e *Engine) PollsByOwner(ctx context.Context, owner string) ([]Poll, error) {
	polls, err := e.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, persistenceErr("list polls", err)
	}
	return polls, nil
}

// untracked resolves an id the tracker does not know: ErrPollNotFound when the store has
// never seen it, otherwise known (the poll was finalized earlier).
func (e *Engine) untracked(ctx context.Context, pollID string, known error) error {
	if _, err := e.store.Get(ctx, pollID); err != nil {
		if errors.Is(err, ErrPollNotFound) {
			return ErrPollNotFound
		}
		return persistenceErr("get poll", err)
	}
	return known
}

// Recover re-registers polls left open by a previous process. Polls whose deadline has
// passed are finalized right away; the rest resume with their remaining time.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	polls, err := e.store.Load(ctx)
	if err != nil {
		return 0, persistenceErr("load polls", err)
	}

	var expired []string
	resumed := 0
	for i := range polls {
		p := &polls[i]
		if p.Closed {
			continue
		}
		if _, tracked := e.tracker.Lookup(p.ID); tracked {
			continue
		}
		resumed++
		if p.Timer <= 0 {
			e.tracker.Register(p, 0, nil)
			continue
		}
		remaining := p.CreatedAt.Add(e.duration(p.Timer)).Sub(e.now())
		if remaining <= 0 {
			e.tracker.Register(p, 0, nil)
			expired = append(expired, p.ID)
			continue
		}
		e.tracker.Register(p, remaining, e.onTimerExpiry)
	}

	for _, id := range expired {
		if err := e.finalize(ctx, id, "expired"); err != nil && !errors.Is(err, ErrAlreadyFinalized) {
			e.logger.Error("Failed to close expired poll", "pollID", id, "error", err)
		}
	}

	e.logger.Info("Open polls recovered", "resumed", resumed, "expired", len(expired))
	return resumed, nil
}

// Stop cancels pending auto-close timers, rejects new polls and flushes queued activity to
// the sinks. Open polls stay open in the store and are picked up again by Recover.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.tracker.StopTimers()
	if e.activity != nil && !e.activity.close(activityDrainLimit) {
		e.logger.Warn("Activity sinks did not drain before shutdown")
	}
}

// maxTimer is the largest timer whose duration fits in a time.Duration.
func (e *Engine) maxTimer() int {
	return int(math.MaxInt64 / int64(e.timerUnit))
}

// duration converts a timer to wall time. Timers too large to represent, which only
// reach here from records stored earlier, saturate instead of wrapping.
func (e *Engine) duration(timer int) time.Duration {
	if timer <= 0 {
		return 0
	}
	if timer > e.maxTimer() {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(timer) * e.timerUnit
}

func (e *Engine) record(a Activity) {
	if e.activity == nil {
		return
	}
	a.At = e.now().UTC()
	e.activity.push(a)
}
