package seq

import (
	"cmp"
	"errors"

	"github.com/webriots/coflow/faults"
)

// Number is the set of types the numeric reducers accept.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// drive runs a private evaluator, calling fn for each item until fn
// returns false or the sequence ends. The evaluator is always closed.
func drive[T any](s *Seq[T], fn func(T) (bool, error)) error {
	ev := s.Evaluate()
	defer ev.Close()
	for {
		val, ok, err := ev.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		more, err := fn(val)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func always[T any](T) bool { return true }

// ToSlice runs the pipeline and returns all items.
func (s *Seq[T]) ToSlice() ([]T, error) {
	var out []T
	err := drive(s, func(v T) (bool, error) {
		out = append(out, v)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach calls fn for each item. A non-nil error from fn stops the
// enumeration and is returned as an OperatorFault.
func (s *Seq[T]) ForEach(fn func(T) error) error {
	return drive(s, func(v T) (bool, error) {
		_, err := invoke("ForEach", func() (struct{}, error) { return struct{}{}, fn(v) })
		return err == nil, err
	})
}

// Count returns the number of items.
func (s *Seq[T]) Count() (int, error) {
	n := 0
	err := drive(s, func(T) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// First returns the first item satisfying pred, or the first item if
// pred is nil. It stops pulling as soon as it has a match.
func (s *Seq[T]) First(pred func(T) bool) (T, error) {
	if pred == nil {
		pred = always[T]
	}
	var (
		out   T
		found bool
	)
	err := drive(s, func(v T) (bool, error) {
		ok, err := test("First", pred, v)
		if err != nil || !ok {
			return true, err
		}
		out, found = v, true
		return false, nil
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, faults.NotFound("First")
	}
	return out, nil
}

// Last returns the last item satisfying pred, or the last item if pred
// is nil.
func (s *Seq[T]) Last(pred func(T) bool) (T, error) {
	if pred == nil {
		pred = always[T]
	}
	var (
		out   T
		found bool
	)
	err := drive(s, func(v T) (bool, error) {
		ok, err := test("Last", pred, v)
		if ok {
			out, found = v, true
		}
		return true, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if !found {
		return out, faults.NotFound("Last")
	}
	return out, nil
}

// Single returns the only item satisfying pred. It fails with NotFound
// when nothing matches and with InvalidArgument when more than one item
// does.
func (s *Seq[T]) Single(pred func(T) bool) (T, error) {
	if pred == nil {
		pred = always[T]
	}
	var (
		out   T
		found bool
		extra bool
	)
	err := drive(s, func(v T) (bool, error) {
		ok, err := test("Single", pred, v)
		if err != nil || !ok {
			return true, err
		}
		if found {
			extra = true
			return false, nil
		}
		out, found = v, true
		return true, nil
	})
	var zero T
	switch {
	case err != nil:
		return zero, err
	case extra:
		return zero, faults.InvalidArgument("Single", "more than one matching element")
	case !found:
		return zero, faults.NotFound("Single")
	}
	return out, nil
}

// ElementAt returns the item at index i.
func (s *Seq[T]) ElementAt(i int) (T, error) {
	var zero T
	if i < 0 {
		return zero, faults.InvalidArgument("ElementAt", "negative index")
	}
	v, err := s.Skip(i).First(nil)
	if errors.Is(err, faults.ErrNotFound) {
		return zero, faults.NotFound("ElementAt").WithDetail("index", i)
	}
	return v, err
}

// Any reports whether some item satisfies pred, stopping at the first
// that does. A nil pred asks whether the sequence is non-empty.
func (s *Seq[T]) Any(pred func(T) bool) (bool, error) {
	if pred == nil {
		pred = always[T]
	}
	found := false
	err := drive(s, func(v T) (bool, error) {
		ok, err := test("Any", pred, v)
		if err != nil {
			return false, err
		}
		found = ok
		return !ok, nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// All reports whether every item satisfies pred, stopping at the first
// that does not. It is true for an empty sequence. A nil pred accepts
// every item, so All then only surfaces upstream faults.
func (s *Seq[T]) All(pred func(T) bool) (bool, error) {
	if pred == nil {
		pred = always[T]
	}
	all := true
	err := drive(s, func(v T) (bool, error) {
		ok, err := test("All", pred, v)
		if err != nil {
			return false, err
		}
		all = ok
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return all, nil
}

// Reduce folds the sequence into one value, starting from seed.
func Reduce[T, R any](s *Seq[T], seed R, fn func(R, T) (R, error)) (R, error) {
	acc := seed
	err := drive(s, func(v T) (bool, error) {
		next, err := invoke("Reduce", func() (R, error) { return fn(acc, v) })
		if err != nil {
			return false, err
		}
		acc = next
		return true, nil
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return acc, nil
}

// Sum adds up proj over every item. It is zero for an empty sequence.
func Sum[T any, N Number](s *Seq[T], proj func(T) N) (N, error) {
	var sum N
	err := drive(s, func(v T) (bool, error) {
		x, err := invoke("Sum", func() (N, error) { return proj(v), nil })
		sum += x
		return err == nil, err
	})
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// Average returns the mean of proj over every item. It fails with
// NotFound for an empty sequence.
func Average[T any, N Number](s *Seq[T], proj func(T) N) (float64, error) {
	var (
		sum float64
		n   int
	)
	err := drive(s, func(v T) (bool, error) {
		x, err := invoke("Average", func() (N, error) { return proj(v), nil })
		if err != nil {
			return false, err
		}
		sum += float64(x)
		n++
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, faults.Empty("Average")
	}
	return sum / float64(n), nil
}

// Max returns the largest value of proj. It fails with NotFound for an
// empty sequence.
func Max[T any, N cmp.Ordered](s *Seq[T], proj func(T) N) (N, error) {
	return extreme(s, "Max", proj, func(a, b N) bool { return cmp.Less(a, b) })
}

// Min returns the smallest value of proj. It fails with NotFound for an
// empty sequence.
func Min[T any, N cmp.Ordered](s *Seq[T], proj func(T) N) (N, error) {
	return extreme(s, "Min", proj, func(a, b N) bool { return cmp.Less(b, a) })
}

func extreme[T any, N cmp.Ordered](s *Seq[T], op string, proj func(T) N, replace func(cur, cand N) bool) (N, error) {
	var (
		best N
		have bool
	)
	err := drive(s, func(v T) (bool, error) {
		x, err := invoke(op, func() (N, error) { return proj(v), nil })
		if err != nil {
			return false, err
		}
		if !have || replace(best, x) {
			best, have = x, true
		}
		return true, nil
	})
	var zero N
	if err != nil {
		return zero, err
	}
	if !have {
		return zero, faults.Empty(op)
	}
	return best, nil
}
