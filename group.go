package coflow

import (
	"errors"
	"fmt"

	"github.com/webriots/coflow/faults"
)

// TaskError attributes a failure to one handle of a combinator.
type TaskError struct {
	Index int
	ID    string
	Name  string
	State State
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q (#%d) %s: %v", e.Name, e.Index, e.State, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// CauseOf unwraps a *TaskError to the task's own error. Other errors
// are returned unchanged.
func CauseOf(err error) error {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Err
	}
	return err
}

// WhenAll waits until every handle has settled. If all completed it
// returns their values in handle order. Otherwise the error is a
// *faults.AggregateError: Errors holds a *TaskError for each faulted
// handle and Canceled one for each canceled handle, both in handle
// order. The returned slice still carries the values of the handles
// that completed.
//
// If w gives up first, WhenAll returns w's error and leaves the
// handles running.
func WhenAll[T any](w Waiter, handles ...*Handle[T]) ([]T, error) {
	settlers := settlersOf(handles)
	err := await(w, settlers, func() bool {
		for _, h := range handles {
			if !h.State().Terminal() {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	results := make([]T, len(handles))
	var agg faults.AggregateError
	for i, h := range handles {
		state, val, err := h.outcome()
		switch state {
		case Completed:
			results[i] = val
		case Faulted:
			agg.Errors = append(agg.Errors, taskError(i, h, state, err))
		case Canceled:
			agg.Canceled = append(agg.Canceled, taskError(i, h, state, err))
		}
	}
	if agg.Empty() {
		return results, nil
	}
	return results, &agg
}

// WhenAny waits until at least one handle has settled and returns the
// handle that settled first together with the others in argument
// order. Losers are left running; cancel them through their controllers if
// they are no longer needed.
func WhenAny[T any](w Waiter, handles ...*Handle[T]) (*Handle[T], []*Handle[T], error) {
	if len(handles) == 0 {
		return nil, nil, faults.InvalidArgument("WhenAny", "no handles")
	}

	settlers := settlersOf(handles)
	first := -1
	err := await(w, settlers, func() bool {
		first = earliest(settlers)
		return first >= 0
	})
	if err != nil {
		return nil, nil, err
	}

	rest := make([]*Handle[T], 0, len(handles)-1)
	rest = append(rest, handles[:first]...)
	rest = append(rest, handles[first+1:]...)
	return handles[first], rest, nil
}

// earliest returns the index of the handle that settled first, or -1
// if none has.
func earliest(settlers []settler) int {
	first := -1
	var best uint64
	for i, h := range settlers {
		if at := h.settledAt(); at != 0 && (first < 0 || at < best) {
			first, best = i, at
		}
	}
	return first
}

func settlersOf[T any](handles []*Handle[T]) []settler {
	out := make([]settler, len(handles))
	for i, h := range handles {
		out[i] = h
	}
	return out
}

func taskError[T any](i int, h *Handle[T], state State, err error) *TaskError {
	return &TaskError{Index: i, ID: h.id, Name: h.name, State: state, Err: err}
}

// Group is a read-only ordered view over handles. It does not own
// them; canceling the group signals each handle's controller.
type Group[T any] struct {
	handles []*Handle[T]
}

// NewGroup returns a Group over handles.
func NewGroup[T any](handles ...*Handle[T]) Group[T] {
	return Group[T]{handles: append([]*Handle[T](nil), handles...)}
}

// Handles returns a copy of the grouped handles.
func (g Group[T]) Handles() []*Handle[T] {
	return append([]*Handle[T](nil), g.handles...)
}

// Len returns the number of handles.
func (g Group[T]) Len() int { return len(g.handles) }

// States returns the current state of every handle in order.
func (g Group[T]) States() []State {
	out := make([]State, len(g.handles))
	for i, h := range g.handles {
		out[i] = h.State()
	}
	return out
}

// Cancel signals every handle's controller.
func (g Group[T]) Cancel() {
	for _, h := range g.handles {
		h.Cancel()
	}
}

// WhenAll is WhenAll over the group.
func (g Group[T]) WhenAll(w Waiter) ([]T, error) {
	return WhenAll(w, g.handles...)
}

// WhenAny is WhenAny over the group.
func (g Group[T]) WhenAny(w Waiter) (*Handle[T], []*Handle[T], error) {
	return WhenAny(w, g.handles...)
}
