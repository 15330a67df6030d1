package seq

import (
	"github.com/webriots/coro"

	"github.com/webriots/coflow/faults"
)

// Generate creates a sequence from a producer function. Each
// enumeration runs fn in its own coroutine; fn runs until its next
// yield only when the evaluator asks for an item, so producers with
// side effects (or that never return) are safe to compose with Take.
//
// yield reports whether the consumer wants more items. If fn returns
// an error it is surfaced from Next after the items already yielded.
func Generate[T any](fn func(yield func(T) bool) error) *Seq[T] {
	return source(func() Evaluator[T] {
		return &generator[T]{fn: fn}
	})
}

type generator[T any] struct {
	fn      func(yield func(T) bool) error
	resume  func(struct{}) (T, bool)
	cancel  func()
	err     error
	done    bool
	stopped bool
}

func (g *generator[T]) start() {
	g.resume, g.cancel = coro.New(
		func(yield func(T) struct{}, _ func() struct{}) (z T) {
			g.err = g.fn(func(v T) bool {
				yield(v)
				return !g.stopped
			})
			return
		},
	)
}

func (g *generator[T]) Next() (val T, ok bool, err error) {
	var zero T
	if g.done {
		return zero, false, nil
	}
	if g.resume == nil {
		g.start()
	}

	defer func() {
		if r := recover(); r != nil {
			g.done, g.stopped = true, true
			val, ok = zero, false
			err = faults.OperatorFault(KindSource.String(), faults.NewPanicError(r))
		}
	}()

	val, ok = g.resume(struct{}{})
	if ok {
		return val, true, nil
	}

	g.done = true
	if g.err != nil {
		return zero, false, faults.OperatorFault(KindSource.String(), g.err)
	}
	return zero, false, nil
}

func (g *generator[T]) finish() {
	if g.done {
		return
	}
	g.done = true
	g.stopped = true
	if g.cancel != nil {
		g.cancel()
	}
}

func (g *generator[T]) Close() error {
	g.finish()
	return nil
}
