package coflow

import (
	"sync"
	"time"

	"github.com/webriots/coflow/cancel"
	"github.com/webriots/coflow/faults"
	"github.com/webriots/coflow/seq"
)

// AsyncEvaluator pulls items from an AsyncSeq. Each pull may suspend
// the waiter passed to Next. An AsyncEvaluator belongs to a single
// consumer and is not safe for concurrent use.
type AsyncEvaluator[T any] interface {
	// Next returns the next item, suspending w until one is available.
	// Returns (zero, false, nil) when the sequence is exhausted.
	Next(w Waiter) (T, bool, error)
	// Close stops the producer and releases the evaluator. It is safe
	// to call more than once.
	Close() error
}

// AsyncSeq is a pull-driven sequence whose items may take time to
// produce. Like seq.Seq it is immutable and does no work until an
// evaluator pulls from it, and every Evaluate starts afresh.
type AsyncSeq[T any] struct {
	open func() AsyncEvaluator[T]
	ctrl *cancel.Controller
}

func newAsync[T any](open func() AsyncEvaluator[T]) *AsyncSeq[T] {
	return &AsyncSeq[T]{open: open}
}

// WithController returns a copy of s bound to ctrl. Once ctrl signals,
// the next pull, or the pull currently waiting, fails with Canceled.
func (s *AsyncSeq[T]) WithController(ctrl *cancel.Controller) *AsyncSeq[T] {
	return &AsyncSeq[T]{open: s.open, ctrl: ctrl}
}

// Evaluate starts a new enumeration. Once Next returns an error the
// evaluator keeps returning it.
func (s *AsyncSeq[T]) Evaluate() AsyncEvaluator[T] {
	return &asyncEvaluator[T]{src: s.open(), ctrl: s.ctrl}
}

type asyncEvaluator[T any] struct {
	src    AsyncEvaluator[T]
	ctrl   *cancel.Controller
	err    error
	done   bool
	closed bool
}

func (e *asyncEvaluator[T]) Next(w Waiter) (T, bool, error) {
	var zero T
	if e.err != nil {
		return zero, false, e.err
	}
	if e.done {
		return zero, false, nil
	}
	if e.ctrl != nil {
		if e.ctrl.IsSignaled() {
			return zero, false, e.fail(canceledBy(e.ctrl))
		}
		w = controlled{Waiter: w, ctrl: e.ctrl}
	}

	val, ok, err := e.src.Next(w)
	if err != nil {
		return zero, false, e.fail(err)
	}
	if !ok {
		e.done = true
		_ = e.Close()
		return zero, false, nil
	}
	return val, true, nil
}

func (e *asyncEvaluator[T]) fail(err error) error {
	e.err = err
	_ = e.Close()
	return err
}

func (e *asyncEvaluator[T]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.src.Close()
}

// controlled also stops waiting when ctrl signals.
type controlled struct {
	Waiter
	ctrl *cancel.Controller
}

func (c controlled) park(arm func(wake func()) func()) error {
	err := c.Waiter.park(func(wake func()) func() {
		disarm := arm(wake)
		reg := c.ctrl.OnSignal(wake)
		return func() {
			reg.Remove()
			disarm()
		}
	})
	if err != nil {
		return err
	}
	if c.ctrl.IsSignaled() {
		return canceledBy(c.ctrl)
	}
	return nil
}

func canceledBy(ctrl *cancel.Controller) error {
	return faults.Canceled("AsyncSeq").WithCause(ctrl.Err())
}

func sleep(w Waiter, d time.Duration) error {
	return w.park(func(wake func()) func() {
		timer := time.AfterFunc(d, wake)
		return func() { timer.Stop() }
	})
}

// --- Sources ---

// FromSeq adapts a synchronous sequence. Its pulls never suspend.
func FromSeq[T any](s *seq.Seq[T]) *AsyncSeq[T] {
	return newAsync(func() AsyncEvaluator[T] {
		return &syncEval[T]{ev: s.Evaluate()}
	})
}

type syncEval[T any] struct {
	ev seq.Evaluator[T]
}

func (e *syncEval[T]) Next(Waiter) (T, bool, error) { return e.ev.Next() }

func (e *syncEval[T]) Close() error { return e.ev.Close() }

// Interval yields 0, 1, ..., n-1, waiting d before each item. A
// negative n never ends.
func Interval(d time.Duration, n int) *AsyncSeq[int] {
	return newAsync(func() AsyncEvaluator[int] {
		return &intervalEval{d: d, n: n}
	})
}

type intervalEval struct {
	d    time.Duration
	n, i int
}

func (e *intervalEval) Next(w Waiter) (int, bool, error) {
	if e.n >= 0 && e.i >= e.n {
		return 0, false, nil
	}
	if e.d > 0 {
		if err := sleep(w, e.d); err != nil {
			return 0, false, err
		}
	}
	v := e.i
	e.i++
	return v, true, nil
}

func (e *intervalEval) Close() error { return nil }

// Yielder hands items from a producer to the consumer of a Produce
// sequence.
type Yielder[T any] struct {
	req  chan struct{}
	stop chan struct{}

	mu     sync.Mutex
	item   T
	has    bool
	done   bool
	err    error
	notify func()
}

// Yield hands v to the consumer and blocks until the consumer asks
// for the next item. It returns a Canceled error once the consumer
// has closed its evaluator; the producer should then return.
func (y *Yielder[T]) Yield(v T) error {
	y.mu.Lock()
	y.item, y.has = v, true
	notify := y.notify
	y.notify = nil
	y.mu.Unlock()

	if notify != nil {
		notify()
	}

	select {
	case <-y.req:
		return nil
	case <-y.stop:
		return faults.Canceled("Yield")
	}
}

// Sleep pauses the producer for d, returning early with a Canceled
// error if the consumer closes its evaluator.
func (y *Yielder[T]) Sleep(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-y.stop:
		return faults.Canceled("Sleep")
	}
}

// Stopped is closed when the consumer closes its evaluator.
func (y *Yielder[T]) Stopped() <-chan struct{} { return y.stop }

func (y *Yielder[T]) finish(err error) {
	y.mu.Lock()
	y.done, y.err = true, err
	notify := y.notify
	y.notify = nil
	y.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Produce returns a sequence fed by fn running on its own goroutine.
// Each evaluation starts a new producer on its first pull; after every
// Yield the producer blocks until the next pull, so it never runs
// ahead of the consumer. An error returned by fn, or a panic, ends
// the sequence with an OperatorFault.
func Produce[T any](fn func(y *Yielder[T]) error) *AsyncSeq[T] {
	return newAsync(func() AsyncEvaluator[T] {
		return &produceEval[T]{
			fn: fn,
			y: &Yielder[T]{
				req:  make(chan struct{}, 1),
				stop: make(chan struct{}),
			},
		}
	})
}

type produceEval[T any] struct {
	fn        func(*Yielder[T]) error
	y         *Yielder[T]
	started   bool
	requested bool
	closed    bool
}

func (e *produceEval[T]) run() {
	y := e.y
	select {
	case <-y.req:
	case <-y.stop:
		y.finish(nil)
		return
	}
	_, err := faults.Invoke("Produce", func() (struct{}, error) {
		return struct{}{}, e.fn(y)
	})
	y.finish(err)
}

func (e *produceEval[T]) Next(w Waiter) (T, bool, error) {
	var zero T
	if e.closed {
		return zero, false, nil
	}
	if !e.started {
		e.started = true
		go e.run()
	}
	if !e.requested {
		e.requested = true
		e.y.req <- struct{}{}
	}

	y := e.y
	for {
		y.mu.Lock()
		if y.has {
			val := y.item
			y.item, y.has = zero, false
			y.mu.Unlock()
			e.requested = false
			return val, true, nil
		}
		if y.done {
			err := y.err
			y.mu.Unlock()
			return zero, false, err
		}
		y.mu.Unlock()

		if err := w.park(e.arm); err != nil {
			return zero, false, err
		}
	}
}

func (e *produceEval[T]) arm(wake func()) func() {
	y := e.y
	y.mu.Lock()
	if y.has || y.done {
		y.mu.Unlock()
		wake()
		return func() {}
	}
	y.notify = wake
	y.mu.Unlock()

	return func() {
		y.mu.Lock()
		y.notify = nil
		y.mu.Unlock()
	}
}

func (e *produceEval[T]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.y.stop)
	return nil
}

// --- Operators ---

// Filter keeps the items for which pred returns true.
func (s *AsyncSeq[T]) Filter(pred func(T) bool) *AsyncSeq[T] {
	return newAsync(func() AsyncEvaluator[T] {
		return &asyncFilterEval[T]{src: s.Evaluate(), pred: pred}
	})
}

type asyncFilterEval[T any] struct {
	src  AsyncEvaluator[T]
	pred func(T) bool
}

func (e *asyncFilterEval[T]) Next(w Waiter) (T, bool, error) {
	var zero T
	for {
		val, ok, err := e.src.Next(w)
		if err != nil || !ok {
			return zero, false, err
		}
		keep, err := faults.Invoke("Filter", func() (bool, error) { return e.pred(val), nil })
		if err != nil {
			return zero, false, err
		}
		if keep {
			return val, true, nil
		}
	}
}

func (e *asyncFilterEval[T]) Close() error { return e.src.Close() }

// MapAsync transforms each item with fn.
func MapAsync[T, U any](s *AsyncSeq[T], fn func(T) (U, error)) *AsyncSeq[U] {
	return newAsync(func() AsyncEvaluator[U] {
		return &asyncMapEval[T, U]{src: s.Evaluate(), fn: fn}
	})
}

type asyncMapEval[T, U any] struct {
	src AsyncEvaluator[T]
	fn  func(T) (U, error)
}

func (e *asyncMapEval[T, U]) Next(w Waiter) (U, bool, error) {
	var zero U
	val, ok, err := e.src.Next(w)
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := faults.Invoke("Map", func() (U, error) { return e.fn(val) })
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (e *asyncMapEval[T, U]) Close() error { return e.src.Close() }

// Take yields at most n items and never pulls past the nth.
func (s *AsyncSeq[T]) Take(n int) *AsyncSeq[T] {
	return newAsync(func() AsyncEvaluator[T] {
		return &asyncTakeEval[T]{src: s.Evaluate(), left: n}
	})
}

type asyncTakeEval[T any] struct {
	src  AsyncEvaluator[T]
	left int
}

func (e *asyncTakeEval[T]) Next(w Waiter) (T, bool, error) {
	var zero T
	if e.left <= 0 {
		return zero, false, e.src.Close()
	}
	val, ok, err := e.src.Next(w)
	if err != nil || !ok {
		return zero, false, err
	}
	e.left--
	return val, true, nil
}

func (e *asyncTakeEval[T]) Close() error { return e.src.Close() }

// --- Terminals ---

// ToSlice drains the sequence into a slice, suspending w between items.
func (s *AsyncSeq[T]) ToSlice(w Waiter) ([]T, error) {
	var out []T
	err := s.ForEach(w, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// ForEach calls fn for every item until the sequence ends or fn
// returns an error.
func (s *AsyncSeq[T]) ForEach(w Waiter, fn func(T) error) error {
	ev := s.Evaluate()
	defer ev.Close()

	for {
		val, ok, err := ev.Next(w)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := faults.Invoke("ForEach", func() (struct{}, error) {
			return struct{}{}, fn(val)
		}); err != nil {
			return err
		}
	}
}
