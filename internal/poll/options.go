package poll

import (
	"time"

	"github.com/google/uuid"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDefaultTimer sets the timer applied when a poll is created with timer 0.
func WithDefaultTimer(seconds int) EngineOption {
	return func(e *Engine) {
		e.defaultTimer = seconds
	}
}

// WithTimerUnit sets the length of one timer tick. Production uses time.Second.
func WithTimerUnit(unit time.Duration) EngineOption {
	return func(e *Engine) {
		if unit > 0 {
			e.timerUnit = unit
		}
	}
}

// WithSinks adds activity observers.
func WithSinks(sinks ...ActivitySink) EngineOption {
	return func(e *Engine) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

const (
	defaultTimerSeconds = 60
	defaultStoreTimeout = 10 * time.Second
)

func defaultID() string {
	return uuid.New().String()
}
