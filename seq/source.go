package seq

import (
	"iter"
)

// NextFunc produces one item per call. It returns (zero, false, nil)
// when exhausted.
type NextFunc[T any] func() (T, bool, error)

// Of creates a sequence over the given items.
func Of[T any](items ...T) *Seq[T] {
	return FromSlice(items)
}

// FromSlice creates a sequence over items. The slice is read at
// enumeration time, not copied.
func FromSlice[T any](items []T) *Seq[T] {
	return source(func() Evaluator[T] {
		return &sliceEval[T]{items: items}
	})
}

// Range creates the sequence start, start+1, ..., start+count-1.
func Range(start, count int) *Seq[int] {
	return source(func() Evaluator[int] {
		return &rangeEval{next: start, end: start + count}
	})
}

// Repeat creates an infinite sequence of v.
func Repeat[T any](v T) *Seq[T] {
	return FromFunc(func() NextFunc[T] {
		return func() (T, bool, error) { return v, true, nil }
	})
}

// Iterate creates the infinite sequence seed, next(seed),
// next(next(seed)), ...
func Iterate[T any](seed T, next func(T) T) *Seq[T] {
	return FromFunc(func() NextFunc[T] {
		cur, started := seed, false
		return func() (T, bool, error) {
			if started {
				v, err := invoke(KindSource.String(), func() (T, error) { return next(cur), nil })
				if err != nil {
					return v, false, err
				}
				cur = v
			}
			started = true
			return cur, true, nil
		}
	})
}

// FromFunc creates a sequence from a factory. open is called once per
// enumeration and must return a fresh NextFunc.
func FromFunc[T any](open func() NextFunc[T]) *Seq[T] {
	return source(func() Evaluator[T] {
		return &funcEval[T]{open: open}
	})
}

// FromIter adapts a standard library iterator.
func FromIter[T any](it iter.Seq[T]) *Seq[T] {
	return Generate(func(yield func(T) bool) error {
		it(yield)
		return nil
	})
}

type sliceEval[T any] struct {
	items []T
	index int
}

func (it *sliceEval[T]) Next() (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceEval[T]) Close() error { return nil }

type rangeEval struct {
	next, end int
}

func (it *rangeEval) Next() (int, bool, error) {
	if it.next >= it.end {
		return 0, false, nil
	}
	v := it.next
	it.next++
	return v, true, nil
}

func (it *rangeEval) Close() error { return nil }

type funcEval[T any] struct {
	open func() NextFunc[T]
	next NextFunc[T]
}

func (it *funcEval[T]) Next() (T, bool, error) {
	if it.next == nil {
		next, err := invoke(KindSource.String(), func() (NextFunc[T], error) { return it.open(), nil })
		if err != nil {
			var zero T
			return zero, false, err
		}
		it.next = next
	}
	var ok bool
	val, err := invoke(KindSource.String(), func() (T, error) {
		v, more, err := it.next()
		ok = more
		return v, err
	})
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return val, true, nil
}

func (it *funcEval[T]) Close() error { return nil }
