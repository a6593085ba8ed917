package command

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the terminal state of one Execute call.
type Outcome int

const (
	// OutcomeSucceeded means the event was appended and State is current.
	OutcomeSucceeded Outcome = iota + 1

	// OutcomeRejected means the command failed validation. Nothing was
	// appended and retrying the same command will fail the same way.
	OutcomeRejected

	// OutcomeExhausted means the retry budget ran out before a definitive
	// result. The command may be retried as a whole.
	OutcomeExhausted

	// OutcomeFailed means a non-retryable error that is not a validation
	// failure: a corrupt history, a faulty definition, or an error the
	// fail-fast predicate selected.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRejected:
		return "rejected"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of executing a command.
type Result[S any] struct {
	Outcome Outcome

	// State is the post-command state; set only on OutcomeSucceeded.
	State S

	// Err explains every outcome other than OutcomeSucceeded.
	Err error

	// Attempts is the number of read-fold-append cycles made. It is
	// diagnostic only.
	Attempts int
}

// Unwrap returns the state on success and the error otherwise.
func (r Result[S]) Unwrap() (S, error) {
	if r.Outcome == OutcomeSucceeded {
		return r.State, nil
	}
	var zero S
	if r.Err == nil {
		return zero, fmt.Errorf("command %s", r.Outcome)
	}
	return zero, r.Err
}

// ErrExhausted matches every *ExhaustedError.
var ErrExhausted = errors.New("could not complete command, retry later")

// ExhaustedError reports a retry budget that ran out.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration

	// Last is the error of the final attempt.
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts in %s: %v", ErrExhausted, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Last}
}
