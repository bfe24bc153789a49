package poll_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"poll-service/internal/events"
	"poll-service/internal/poll"
	"poll-service/internal/repositories/memory"
)

type published struct {
	Event   events.Name
	Payload any
}

// recordingPublisher keeps every broadcast in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(event events.Name, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Event: event, Payload: payload})
}

func (r *recordingPublisher) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]published, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingPublisher) results() []poll.Tally {
	var out []poll.Tally
	for _, e := range r.all() {
		if e.Event == events.PollResults {
			out = append(out, e.Payload.(poll.Tally))
		}
	}
	return out
}

func (r *recordingPublisher) count(event events.Name) int {
	n := 0
	for _, e := range r.all() {
		if e.Event == event {
			n++
		}
	}
	return n
}

var errStoreDown = errors.New("store down")

// flakyStore wraps the memory store and fails writes while failing is set.
type flakyStore struct {
	*memory.PollStore
	failing atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{PollStore: memory.NewPollStore()}
}

func (s *flakyStore) Append(ctx context.Context, p *poll.Poll) error {
	if s.failing.Load() {
		return errStoreDown
	}
	return s.PollStore.Append(ctx, p)
}

func (s *flakyStore) UpdatePoll(ctx context.Context, id string, mutate poll.Mutator) (*poll.Poll, error) {
	if s.failing.Load() {
		return nil, errStoreDown
	}
	return s.PollStore.UpdatePoll(ctx, id, mutate)
}

// recordingSink collects activity.
type recordingSink struct {
	mu       sync.Mutex
	activity []poll.Activity
	err      error
}

func (s *recordingSink) Record(ctx context.Context, a poll.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, a)
	return s.err
}

func (s *recordingSink) kinds() []poll.ActivityKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]poll.ActivityKind, len(s.activity))
	for i, a := range s.activity {
		out[i] = a.Kind
	}
	return out
}

// blockingSink holds every Record call until release is closed.
type blockingSink struct {
	release <-chan struct{}
	calls   atomic.Int32
}

func (s *blockingSink) Record(ctx context.Context, a poll.Activity) error {
	<-s.release
	s.calls.Add(1)
	return nil
}

func colorRequest(timer int) poll.CreateRequest {
	return poll.CreateRequest{
		Question: "Color?",
		Options:  []poll.OptionInput{{Text: "Red"}, {Text: "Blue"}},
		Timer:    poll.TimerSeconds(timer),
		Owner:    "teacher_1",
	}
}
