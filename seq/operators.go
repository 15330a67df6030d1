package seq

// Filter keeps the items for which pred holds, preserving order.
func (s *Seq[T]) Filter(pred func(T) bool) *Seq[T] {
	return derive(KindFilter, []Node{s}, func() Evaluator[T] {
		return &filterEval[T]{src: s.open(), pred: pred}
	})
}

// Take yields at most n items. Once n items have been yielded the
// upstream is not pulled again.
func (s *Seq[T]) Take(n int) *Seq[T] {
	return derive(KindTake, []Node{s}, func() Evaluator[T] {
		return &takeEval[T]{src: s.open(), n: n}
	})
}

// Skip drops the first n items.
func (s *Seq[T]) Skip(n int) *Seq[T] {
	return derive(KindSkip, []Node{s}, func() Evaluator[T] {
		return &skipEval[T]{src: s.open(), n: n}
	})
}

// TakeWhile yields items while pred holds and stops at the first item
// for which it does not.
func (s *Seq[T]) TakeWhile(pred func(T) bool) *Seq[T] {
	return derive(KindTakeWhile, []Node{s}, func() Evaluator[T] {
		return &takeWhileEval[T]{src: s.open(), pred: pred}
	})
}

// SkipWhile drops items while pred holds, then yields the rest.
func (s *Seq[T]) SkipWhile(pred func(T) bool) *Seq[T] {
	return derive(KindSkipWhile, []Node{s}, func() Evaluator[T] {
		return &skipWhileEval[T]{src: s.open(), pred: pred}
	})
}

// Tap calls fn for each item as it passes through, without altering it.
func (s *Seq[T]) Tap(fn func(T)) *Seq[T] {
	return derive(KindTap, []Node{s}, func() Evaluator[T] {
		return &tapEval[T]{src: s.open(), fn: fn}
	})
}

// Map transforms each item with fn. A non-nil error from fn stops the
// enumeration with an OperatorFault.
func Map[T, U any](s *Seq[T], fn func(T) (U, error)) *Seq[U] {
	return derive(KindMap, []Node{s}, func() Evaluator[U] {
		return &mapEval[T, U]{src: s.open(), fn: fn}
	})
}

// Zip pulls a and b in lockstep and combines their items with fn. It
// ends as soon as either side is exhausted; b is not pulled once a is.
func Zip[A, B, C any](a *Seq[A], b *Seq[B], fn func(A, B) (C, error)) *Seq[C] {
	return derive(KindZip, []Node{a, b}, func() Evaluator[C] {
		return &zipEval[A, B, C]{left: a.open(), right: b.open(), fn: fn}
	})
}

// FlattenMany maps each item to a sub-sequence and yields the
// sub-sequence's items in order. Each sub-sequence is drained before the
// next upstream item is pulled. A nil sub-sequence is treated as empty.
func FlattenMany[T, U any](s *Seq[T], fn func(T) (*Seq[U], error)) *Seq[U] {
	return derive(KindFlattenMany, []Node{s}, func() Evaluator[U] {
		return &flattenEval[T, U]{src: s.open(), fn: fn}
	})
}

// Concat yields every item of each sequence in turn.
func Concat[T any](seqs ...*Seq[T]) *Seq[T] {
	up := make([]Node, len(seqs))
	for i, s := range seqs {
		up[i] = s
	}
	return derive(KindConcat, up, func() Evaluator[T] {
		return &concatEval[T]{seqs: seqs}
	})
}

// --- Evaluator implementations ---

type filterEval[T any] struct {
	src  Evaluator[T]
	pred func(T) bool
}

func (it *filterEval[T]) Next() (T, bool, error) {
	var zero T
	for {
		val, ok, err := it.src.Next()
		if err != nil || !ok {
			return zero, false, err
		}
		keep, err := test(KindFilter.String(), it.pred, val)
		if err != nil {
			return zero, false, err
		}
		if keep {
			return val, true, nil
		}
	}
}

func (it *filterEval[T]) Close() error { return it.src.Close() }

type mapEval[T, U any] struct {
	src Evaluator[T]
	fn  func(T) (U, error)
}

func (it *mapEval[T, U]) Next() (U, bool, error) {
	var zero U
	val, ok, err := it.src.Next()
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := invoke(KindMap.String(), func() (U, error) { return it.fn(val) })
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapEval[T, U]) Close() error { return it.src.Close() }

type takeEval[T any] struct {
	src   Evaluator[T]
	n     int
	taken int
}

func (it *takeEval[T]) Next() (T, bool, error) {
	var zero T
	if it.taken >= it.n {
		return zero, false, it.src.Close()
	}
	val, ok, err := it.src.Next()
	if err != nil || !ok {
		return zero, false, err
	}
	it.taken++
	return val, true, nil
}

func (it *takeEval[T]) Close() error { return it.src.Close() }

type skipEval[T any] struct {
	src     Evaluator[T]
	n       int
	skipped bool
}

func (it *skipEval[T]) Next() (T, bool, error) {
	var zero T
	if !it.skipped {
		it.skipped = true
		for i := 0; i < it.n; i++ {
			_, ok, err := it.src.Next()
			if err != nil || !ok {
				return zero, false, err
			}
		}
	}
	return it.src.Next()
}

func (it *skipEval[T]) Close() error { return it.src.Close() }

type takeWhileEval[T any] struct {
	src  Evaluator[T]
	pred func(T) bool
	done bool
}

func (it *takeWhileEval[T]) Next() (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	val, ok, err := it.src.Next()
	if err != nil || !ok {
		return zero, false, err
	}
	keep, err := test(KindTakeWhile.String(), it.pred, val)
	if err != nil {
		return zero, false, err
	}
	if !keep {
		it.done = true
		return zero, false, it.src.Close()
	}
	return val, true, nil
}

func (it *takeWhileEval[T]) Close() error { return it.src.Close() }

type skipWhileEval[T any] struct {
	src      Evaluator[T]
	pred     func(T) bool
	yielding bool
}

func (it *skipWhileEval[T]) Next() (T, bool, error) {
	var zero T
	for {
		val, ok, err := it.src.Next()
		if err != nil || !ok {
			return zero, false, err
		}
		if it.yielding {
			return val, true, nil
		}
		skip, err := test(KindSkipWhile.String(), it.pred, val)
		if err != nil {
			return zero, false, err
		}
		if !skip {
			it.yielding = true
			return val, true, nil
		}
	}
}

func (it *skipWhileEval[T]) Close() error { return it.src.Close() }

type tapEval[T any] struct {
	src Evaluator[T]
	fn  func(T)
}

func (it *tapEval[T]) Next() (T, bool, error) {
	var zero T
	val, ok, err := it.src.Next()
	if err != nil || !ok {
		return zero, false, err
	}
	if _, err := invoke(KindTap.String(), func() (struct{}, error) {
		it.fn(val)
		return struct{}{}, nil
	}); err != nil {
		return zero, false, err
	}
	return val, true, nil
}

func (it *tapEval[T]) Close() error { return it.src.Close() }

type zipEval[A, B, C any] struct {
	left  Evaluator[A]
	right Evaluator[B]
	fn    func(A, B) (C, error)
}

func (it *zipEval[A, B, C]) Next() (C, bool, error) {
	var zero C
	a, ok, err := it.left.Next()
	if err != nil || !ok {
		return zero, false, err
	}
	b, ok, err := it.right.Next()
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := invoke(KindZip.String(), func() (C, error) { return it.fn(a, b) })
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (it *zipEval[A, B, C]) Close() error {
	lerr := it.left.Close()
	rerr := it.right.Close()
	if lerr != nil {
		return lerr
	}
	return rerr
}

type flattenEval[T, U any] struct {
	src     Evaluator[T]
	fn      func(T) (*Seq[U], error)
	current Evaluator[U]
}

func (it *flattenEval[T, U]) Next() (U, bool, error) {
	var zero U
	for {
		if it.current != nil {
			val, ok, err := it.current.Next()
			if err != nil {
				return zero, false, err
			}
			if ok {
				return val, true, nil
			}
			_ = it.current.Close()
			it.current = nil
		}

		val, ok, err := it.src.Next()
		if err != nil || !ok {
			return zero, false, err
		}
		sub, err := invoke(KindFlattenMany.String(), func() (*Seq[U], error) { return it.fn(val) })
		if err != nil {
			return zero, false, err
		}
		if sub != nil {
			it.current = sub.open()
		}
	}
}

func (it *flattenEval[T, U]) Close() error {
	if it.current != nil {
		_ = it.current.Close()
		it.current = nil
	}
	return it.src.Close()
}

type concatEval[T any] struct {
	seqs    []*Seq[T]
	index   int
	current Evaluator[T]
}

func (it *concatEval[T]) Next() (T, bool, error) {
	var zero T
	for {
		if it.current == nil {
			if it.index >= len(it.seqs) {
				return zero, false, nil
			}
			it.current = it.seqs[it.index].open()
			it.index++
		}
		val, ok, err := it.current.Next()
		if err != nil {
			return zero, false, err
		}
		if ok {
			return val, true, nil
		}
		_ = it.current.Close()
		it.current = nil
	}
}

func (it *concatEval[T]) Close() error {
	if it.current != nil {
		err := it.current.Close()
		it.current = nil
		return err
	}
	return nil
}
