package seq

import (
	"github.com/webriots/coflow/faults"
)

// Kind identifies the operator a pipeline stage applies.
type Kind uint8

const (
	KindSource Kind = iota
	KindFilter
	KindMap
	KindTake
	KindSkip
	KindDistinct
	KindGroupBy
	KindZip
	KindFlattenMany
	KindTakeWhile
	KindSkipWhile
	KindTap
	KindOrderBy
	KindConcat
	KindSetOp
)

var kindNames = [...]string{
	KindSource:      "Source",
	KindFilter:      "Filter",
	KindMap:         "Map",
	KindTake:        "Take",
	KindSkip:        "Skip",
	KindDistinct:    "Distinct",
	KindGroupBy:     "GroupBy",
	KindZip:         "Zip",
	KindFlattenMany: "FlattenMany",
	KindTakeWhile:   "TakeWhile",
	KindSkipWhile:   "SkipWhile",
	KindTap:         "Tap",
	KindOrderBy:     "OrderBy",
	KindConcat:      "Concat",
	KindSetOp:       "SetOp",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Node is the type-erased view of a pipeline stage.
type Node interface {
	// Kind returns the operator the stage applies.
	Kind() Kind
	// Upstream returns the stages this one pulls from. A source has
	// none.
	Upstream() []Node
}

// Evaluator pulls items from a pipeline one at a time.
type Evaluator[T any] interface {
	// Next returns the next item. Returns (zero, false, nil) when the
	// sequence is exhausted.
	Next() (T, bool, error)
	// Close releases any resources held by the evaluator. It is safe to
	// call more than once.
	Close() error
}

// Seq is an immutable pipeline stage. Composing an operator onto a Seq
// returns a new Seq and performs no work; operators run only while an
// [Evaluator] pulls through them.
type Seq[T any] struct {
	kind     Kind
	upstream []Node
	open     func() Evaluator[T]
}

// Kind returns the operator this stage applies.
func (s *Seq[T]) Kind() Kind { return s.kind }

// Upstream returns the stages this one pulls from.
func (s *Seq[T]) Upstream() []Node {
	return append([]Node(nil), s.upstream...)
}

// Evaluate starts a new enumeration. Every call gets its own state; no
// cursor or seen-set is shared between evaluators of the same Seq.
//
// Once Next returns an error the evaluator keeps returning that error.
// The caller must Close the evaluator unless it ran to exhaustion.
func (s *Seq[T]) Evaluate() Evaluator[T] {
	return &evaluator[T]{src: s.open()}
}

func derive[T any](kind Kind, upstream []Node, open func() Evaluator[T]) *Seq[T] {
	return &Seq[T]{kind: kind, upstream: upstream, open: open}
}

func source[T any](open func() Evaluator[T]) *Seq[T] {
	return &Seq[T]{kind: KindSource, open: open}
}

// evaluator is the caller-facing wrapper: it latches the first fault and
// releases the chain once it finishes.
type evaluator[T any] struct {
	src    Evaluator[T]
	err    error
	done   bool
	closed bool
}

func (e *evaluator[T]) Next() (T, bool, error) {
	var zero T
	if e.err != nil {
		return zero, false, e.err
	}
	if e.done {
		return zero, false, nil
	}
	val, ok, err := e.src.Next()
	if err != nil {
		e.err = err
		_ = e.Close()
		return zero, false, err
	}
	if !ok {
		e.done = true
		_ = e.Close()
		return zero, false, nil
	}
	return val, true, nil
}

func (e *evaluator[T]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.src.Close()
}

func invoke[R any](op string, fn func() (R, error)) (R, error) {
	return faults.Invoke(op, fn)
}

func test[T any](op string, pred func(T) bool, val T) (bool, error) {
	return invoke(op, func() (bool, error) { return pred(val), nil })
}
