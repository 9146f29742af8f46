package syncer

import (
	"context"
	"errors"
)

// ErrLoopStopped is returned when submitting to a loop whose Run has returned.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs the steps of one coordinator in submission order, one at a time. Frames from one connection are
// submitted in the order they were read, so per-peer order is kept.
type Loop struct {
	events chan func()
	done   chan struct{}
}

func NewLoop(size int) *Loop {
	return &Loop{
		events: make(chan func(), size),
		done:   make(chan struct{}),
	}
}

// Run executes steps until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.events:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Submit queues fn without waiting for it to run.
func (l *Loop) Submit(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.events <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do queues fn and waits until it has run.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Submit(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
