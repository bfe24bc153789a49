package poll

import "context"

// Aggregator applies single votes to a poll's option counts.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Apply adds one vote to the option whose text matches optionText exactly and returns
// the full tally. The updated record is persisted before Apply returns.
//
// Callers must hold the poll's lock (ActivePoll.Serialize) so the read-modify-write of
// the counter is never interleaved with another vote or with finalization.
func (g *Aggregator) Apply(ctx context.Context, a *ActivePoll, optionText string) (Tally, error) {
	if a.Closed() {
		return nil, ErrPollClosed
	}
	if a.record != nil && a.record.OptionIndex(optionText) < 0 {
		return nil, ErrOptionNotFound
	}

	updated, err := g.store.UpdatePoll(ctx, a.ID, func(p *Poll) error {
		if p.Closed {
			return ErrPollClosed
		}
		i := p.OptionIndex(optionText)
		if i < 0 {
			return ErrOptionNotFound
		}
		p.Options[i].Votes++
		return nil
	})
	if err != nil {
		return nil, persistenceErr("apply vote", err)
	}

	a.record = updated
	return updated.Tally(), nil
}
