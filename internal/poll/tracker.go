package poll

import (
	"sync"
	"sync/atomic"
	"time"
)

// ActivePoll is the in-memory state of a poll between creation and finalization.
// Votes and finalization for the same poll are serialized on its mutex; different
// polls never contend.
type ActivePoll struct {
	ID string

	mu     sync.Mutex
	record *Poll // guarded by mu
	timer  *time.Timer
	closed atomic.Bool
}

// Closed reports whether finalization has started for this poll.
func (a *ActivePoll) Closed() bool {
	return a.closed.Load()
}

// Serialize runs fn while holding the poll's lock.
func (a *ActivePoll) Serialize(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}

// Tracker owns the set of open polls and their auto-close timers.
type Tracker struct {
	mu    sync.RWMutex
	polls map[string]*ActivePoll
}

func NewTracker() *Tracker {
	return &Tracker{
		polls: make(map[string]*ActivePoll),
	}
}

// Register starts tracking p. When after is positive, onExpire fires once with the
// poll id after that delay; otherwise the poll stays open until finalized explicitly.
func (t *Tracker) Register(p *Poll, after time.Duration, onExpire func(id string)) *ActivePoll {
	active := &ActivePoll{ID: p.ID, record: p.Clone()}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.polls[p.ID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	if after > 0 && onExpire != nil {
		id := p.ID
		active.timer = time.AfterFunc(after, func() { onExpire(id) })
	}
	t.polls[p.ID] = active
	return active
}

// Lookup returns the tracked state of an open poll.
func (t *Tracker) Lookup(id string) (*ActivePoll, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.polls[id]
	return a, ok
}

// IsClosed reports the closed flag of a tracked poll. Untracked polls yield
// ErrPollNotFound and must be treated as closed.
func (t *Tracker) IsClosed(id string) (bool, error) {
	a, ok := t.Lookup(id)
	if !ok {
		return true, ErrPollNotFound
	}
	return a.Closed(), nil
}

// Finalize closes a tracked poll exactly once. The closed flag is flipped with a
// compare-and-swap, so when the timer and an explicit close race only the first caller
// proceeds; every other caller gets ErrAlreadyFinalized. The winner cancels the timer and
// runs commit under the poll's lock, after any in-flight vote has finished.
//
// If commit fails the flag is reset and the poll stays tracked (without its timer), so
// memory never runs ahead of the store. On success the poll is no longer tracked.
func (t *Tracker) Finalize(id string, commit func(a *ActivePoll) error) error {
	a, ok := t.Lookup(id)
	if !ok {
		return ErrPollNotFound
	}
	if !a.closed.CompareAndSwap(false, true) {
		return ErrAlreadyFinalized
	}
	if a.timer != nil {
		a.timer.Stop()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if commit != nil {
		if err := commit(a); err != nil {
			a.closed.Store(false)
			return err
		}
	}

	t.mu.Lock()
	if t.polls[id] == a {
		delete(t.polls, id)
	}
	t.mu.Unlock()
	return nil
}

// Len returns the number of open polls.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.polls)
}

// StopTimers cancels every pending auto-close without finalizing anything.
func (t *Tracker) StopTimers() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range t.polls {
		if a.timer != nil {
			a.timer.Stop()
		}
	}
}
