package dispatch

import (
	"errors"
	"time"
)

var ErrInterrupted = errors.New("dispatch interrupted")

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 5 * time.Second
	DefaultThrottle    = 30 * time.Second
)

type State string

const (
	StatePending      State = "pending"
	StateSkipped      State = "skipped"
	StateSending      State = "sending"
	StateSent         State = "sent"
	StateFailed       State = "failed"
	StateRenderFailed State = "render_failed"
)

// Counters accumulate per-run outcomes. For a run that was not interrupted
// Successes+Failures+Skips == Total, where Total is the number of
// recipients handed to Run.
type Counters struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Skips     int `json:"skips"`
	Total     int `json:"total"`
}

// Processed is the number of recipients that reached a final state.
func (c Counters) Processed() int { return c.Successes + c.Failures + c.Skips }

// Result describes a finished (or interrupted) run.
type Result struct {
	RunID       string
	Campaign    string
	Counters    Counters
	StartedAt   time.Time
	FinishedAt  time.Time
	Interrupted bool
	Persisted   bool
}

// Outcome is the event payload for one recipient transition.
type Outcome struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	State    State  `json:"state"`
	Attempt  int    `json:"attempt,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration time.Duration
}
