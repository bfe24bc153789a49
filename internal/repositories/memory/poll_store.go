package memory

import (
	"context"
	"sync"

	"poll-service/internal/poll"
)

// PollStore keeps polls in process memory in insertion order. It is used for tests and
// throwaway runs (DB_DRIVER=memory).
type PollStore struct {
	mu    sync.RWMutex
	polls map[string]*poll.Poll
	order []string
}

func NewPollStore() *PollStore {
	return &PollStore{
		polls: make(map[string]*poll.Poll),
	}
}

func (s *PollStore) Load(ctx context.Context) ([]poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]poll.Poll, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.polls[id].Clone())
	}
	return out, nil
}

func (s *PollStore) Append(ctx context.Context, p *poll.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.polls[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.polls[p.ID] = p.Clone()
	return nil
}

func (s *PollStore) UpdatePoll(ctx context.Context, id string, mutate poll.Mutator) (*poll.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.polls[id]
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	working := stored.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	s.polls[id] = working
	return working.Clone(), nil
}

func (s *PollStore) Get(ctx context.Context, id string) (*poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.polls[id]
	if !ok {
		return nil, poll.ErrPollNotFound
	}
	return p.Clone(), nil
}

func (s *PollStore) ListByOwner(ctx context.Context, owner string) ([]poll.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]poll.Poll, 0)
	for _, id := range s.order {
		if p := s.polls[id]; p.Owner == owner {
			out = append(out, *p.Clone())
		}
	}
	return out, nil
}
