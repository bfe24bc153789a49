package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ActivityKind classifies what happened to a poll.
type ActivityKind string

const (
	ActivityCreated ActivityKind = "poll.created"
	ActivityVote    ActivityKind = "poll.vote"
	ActivityClosed  ActivityKind = "poll.closed"
)

// Activity describes one accepted change to a poll. Poll is set for created and
// closed activity, Voter and Option for votes.
type Activity struct {
	Kind   ActivityKind `json:"kind"`
	PollID string       `json:"pollId"`
	Owner  string       `json:"owner,omitempty"`
	Voter  string       `json:"voter,omitempty"`
	Option string       `json:"option,omitempty"`
	Poll   *Poll        `json:"poll,omitempty"`
	Tally  Tally        `json:"tally,omitempty"`
	At     time.Time    `json:"at"`
}

// ActivitySink observes accepted poll changes. Sinks are best-effort and run off the
// request path: a slow or failing sink is logged and never affects poll state or broadcasts.
type ActivitySink interface {
	Record(ctx context.Context, a Activity) error
}

const (
	activityQueueSize  = 1024
	activityDrainLimit = 5 * time.Second
)

// activityQueue delivers activity to the sinks on a single background goroutine, in the
// order it was accepted. A full queue drops new activity rather than blocking the poll.
type activityQueue struct {
	sinks  []ActivitySink
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Activity
	done   chan struct{}
}

func newActivityQueue(sinks []ActivitySink, logger *slog.Logger) *activityQueue {
	q := &activityQueue{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan Activity, activityQueueSize),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *activityQueue) push(a Activity) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.queue <- a:
	default:
		q.logger.Warn("Activity queue full, dropping activity", "kind", a.Kind, "pollID", a.PollID)
	}
}

func (q *activityQueue) run() {
	defer close(q.done)
	for a := range q.queue {
		for _, sink := range q.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
			err := sink.Record(ctx, a)
			cancel()
			if err != nil {
				q.logger.Warn("Activity sink failed", "kind", a.Kind, "pollID", a.PollID, "error", err)
			}
		}
	}
}

// close stops accepting activity and waits up to timeout for queued activity to be
// delivered. It reports whether the queue drained.
func (q *activityQueue) close(timeout time.Duration) bool {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
