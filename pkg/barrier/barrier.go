package barrier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultInterval is the poll period used by the supervisor
const DefaultInterval = 10 * time.Millisecond

// ErrFailed is returned when every item settled and at least one failed
var ErrFailed = errors.New("barrier: one or more processes failed")

// Class is the terminal classification of a polled item
type Class int

const (
	Pending Class = iota
	Success
	Failure
)

func (c Class) String() string {
	switch c {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result summarises one poll
type Result struct {
	Pending int
	Success int
	Failure int
}

// Settled reports whether no item is pending
func (r Result) Settled() bool {
	return r.Pending == 0
}

// Tally classifies every item once
func Tally[T any](items []T, classify func(T) Class) Result {
	var res Result
	for _, item := range items {
		switch classify(item) {
		case Success:
			res.Success++
		case Failure:
			res.Failure++
		default:
			res.Pending++
		}
	}
	return res
}

// Wait polls items every interval until none is pending. It returns nil when
// all succeeded and an error wrapping ErrFailed when at least one failed.
// There is no internal timeout; ctx is the only way to abandon the wait.
// An empty set resolves immediately.
func Wait[T any](ctx context.Context, interval time.Duration, items func() []T, classify func(T) Class) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	check := func() (bool, error) {
		res := Tally(items(), classify)
		if !res.Settled() {
			return false, nil
		}
		if res.Failure > 0 {
			return true, fmt.Errorf("%w: %d of %d", ErrFailed, res.Failure, res.Failure+res.Success)
		}
		return true, nil
	}

	// Check immediately
	if done, err := check(); done {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if done, err := check(); done {
				return err
			}
		}
	}
}
