package poll

import (
	"errors"
	"fmt"
)

var (
	ErrPollNotFound     = errors.New("poll not found")
	ErrOptionNotFound   = errors.New("option not found")
	ErrPollClosed       = errors.New("poll is closed")
	ErrAlreadyFinalized = errors.New("poll already finalized")
	ErrInvalidPoll      = errors.New("invalid poll")
	ErrPersistence      = errors.New("poll store failure")
	ErrEngineStopped    = errors.New("poll engine stopped")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPoll, fmt.Sprintf(format, args...))
}

// persistenceErr wraps a store error unless it already carries one of the
// domain sentinels returned from a mutator.
func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPollNotFound) || errors.Is(err, ErrPollClosed) || errors.Is(err, ErrOptionNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
