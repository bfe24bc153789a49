package poll

import "context"

// Mutator edits a poll in place inside Store.UpdatePoll. Returning an error aborts the update.
type Mutator func(p *Poll) error

// Store is the durable log of poll records. Polls are appended once and updated in place;
// they are never deleted.
//
// Implementations return ErrPollNotFound for unknown ids and must hand out copies, never
// references to their own state. Errors returned by a Mutator are passed through unchanged.
type Store interface {
	Load(ctx context.Context) ([]Poll, error)
	Append(ctx context.Context, p *Poll) error
	UpdatePoll(ctx context.Context, id string, mutate Mutator) (*Poll, error)
	Get(ctx context.Context, id string) (*Poll, error)
	ListByOwner(ctx context.Context, owner string) ([]Poll, error)
}
