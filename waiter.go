package coflow

import (
	"context"
	"errors"
	"sync"

	"github.com/webriots/coflow/faults"
)

// Waiter is whatever is waiting on a handle, a combinator or an async
// sequence. A *Task suspends its coroutine and lets the scheduler run
// other tasks; the value returned by Blocking parks a plain goroutine.
type Waiter interface {
	// park arms a wake-up, suspends until wake is called or the waiter
	// gives up, then disarms. It returns a non-nil error only when the
	// waiter gave up.
	park(arm func(wake func()) (disarm func())) error
}

// Blocking returns a Waiter for code running outside any scheduler.
// It gives up with Canceled or DeadlineExceeded when ctx ends.
func Blocking(ctx context.Context) Waiter {
	return blocking{ctx: ctx}
}

type blocking struct {
	ctx context.Context
}

func (b blocking) park(arm func(wake func()) func()) error {
	if err := contextErr(b.ctx); err != nil {
		return err
	}

	woken := make(chan struct{})
	var once sync.Once
	disarm := arm(func() { once.Do(func() { close(woken) }) })
	defer disarm()

	select {
	case <-woken:
		return nil
	case <-b.ctx.Done():
		return contextErr(b.ctx)
	}
}

func contextErr(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return faults.DeadlineExceeded("wait").WithCause(context.Cause(ctx))
	default:
		return faults.Canceled("wait").WithCause(context.Cause(ctx))
	}
}
