package coflow

import (
	"sync"
	"sync/atomic"

	"github.com/webriots/coflow/cancel"
)

// State is the lifecycle position of a task handle. States only move
// forward: Pending, Running, then exactly one terminal state.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Faulted
	Canceled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Faulted:
		return "Faulted"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is Completed, Faulted or Canceled.
func (s State) Terminal() bool {
	return s >= Completed
}

// Handle observes a spawned task. It is safe for concurrent use.
type Handle[T any] struct {
	id   string
	name string
	ctrl *cancel.Controller

	mu      sync.Mutex
	state   State
	val     T
	err     error
	order   uint64
	done    chan struct{}
	waiters []*subscription
}

type subscription struct {
	fn func()
}

func newHandle[T any](id, name string, ctrl *cancel.Controller) *Handle[T] {
	return &Handle[T]{
		id:   id,
		name: name,
		ctrl: ctrl,
		done: make(chan struct{}),
	}
}

// ID returns the task identifier.
func (h *Handle[T]) ID() string { return h.id }

// Name returns the task name given at spawn time.
func (h *Handle[T]) Name() string { return h.name }

// Controller returns the controller the task observes.
func (h *Handle[T]) Controller() *cancel.Controller { return h.ctrl }

// Cancel signals the task's controller. The task stops at its next
// suspension point or when it checks its controller.
func (h *Handle[T]) Cancel() { h.ctrl.Signal() }

// State returns the current lifecycle state.
func (h *Handle[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the handle reaches a terminal state.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Value returns the result of a Completed task. ok is false in every
// other state.
func (h *Handle[T]) Value() (val T, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Completed {
		return val, false
	}
	return h.val, true
}

// Err returns the failure of a Faulted task or the cancellation error
// of a Canceled one. It is nil otherwise.
func (h *Handle[T]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait suspends w until the handle settles and returns its outcome.
// If w gives up first, Wait returns w's error and the handle keeps
// running.
func (h *Handle[T]) Wait(w Waiter) (T, error) {
	if err := await(w, []settler{h}, func() bool { return h.State().Terminal() }); err != nil {
		var zero T
		return zero, err
	}
	state, val, err := h.outcome()
	if state != Completed {
		var zero T
		return zero, err
	}
	return val, nil
}

func (h *Handle[T]) outcome() (State, T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.val, h.err
}

func (h *Handle[T]) start() bool {
	return h.transition(Running, func() {})
}

func (h *Handle[T]) complete(val T) bool {
	return h.transition(Completed, func() { h.val = val })
}

func (h *Handle[T]) fault(err error) bool {
	return h.transition(Faulted, func() { h.err = err })
}

func (h *Handle[T]) cancel(err error) bool {
	return h.transition(Canceled, func() { h.err = err })
}

// transition moves the handle to state to and runs set while holding
// the lock. Backward moves and moves out of a terminal state are
// refused. Waiters are notified outside the lock.
func (h *Handle[T]) transition(to State, set func()) bool {
	h.mu.Lock()
	if h.state.Terminal() || to <= h.state {
		h.mu.Unlock()
		return false
	}
	h.state = to
	set()
	var waiters []*subscription
	if to.Terminal() {
		h.order = settleOrder.Add(1)
		waiters = h.waiters
		h.waiters = nil
		close(h.done)
	}
	h.mu.Unlock()

	for _, w := range waiters {
		w.fn()
	}
	return true
}

// settleOrder stamps handles as they settle so WhenAny can tell which
// finished first.
var settleOrder atomic.Uint64

// settledAt returns the handle's position in the global settle order,
// or zero if it has not settled.
func (h *Handle[T]) settledAt() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.order
}

// subscribe registers fn to run once when the handle settles. It
// returns false without registering if the handle has already
// settled.
func (h *Handle[T]) subscribe(fn func()) (func(), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return func() {}, false
	}
	sub := &subscription{fn: fn}
	h.waiters = append(h.waiters, sub)
	return func() { h.unsubscribe(sub) }, true
}

func (h *Handle[T]) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.waiters {
		if w == sub {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

// settler is the type-erased view combinators wait on.
type settler interface {
	State() State
	settledAt() uint64
	subscribe(fn func()) (func(), bool)
}

// await parks w until ready holds, re-checking each time one of
// handles settles. ready is checked again after subscribing so a
// handle settling in between still wakes the waiter.
func await(w Waiter, handles []settler, ready func() bool) error {
	for !ready() {
		err := w.park(func(wake func()) func() {
			unsubs := make([]func(), 0, len(handles))
			for _, h := range handles {
				unsub, _ := h.subscribe(wake)
				unsubs = append(unsubs, unsub)
			}
			if ready() {
				wake()
			}
			return func() {
				for _, unsub := range unsubs {
					unsub()
				}
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}
