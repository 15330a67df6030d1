package seq

import (
	"cmp"
	"slices"
)

// Group is one key of a [GroupBy] result with its members in upstream
// order.
type Group[K comparable, T any] struct {
	Key   K
	Items []T
}

// Seq returns the group's members as a sequence.
func (g Group[K, T]) Seq() *Seq[T] { return FromSlice(g.Items) }

// Len returns the number of members.
func (g Group[K, T]) Len() int { return len(g.Items) }

// Distinct drops items equal to one already yielded.
func Distinct[T comparable](s *Seq[T]) *Seq[T] {
	return distinctBy(s, func(v T) T { return v })
}

// DistinctBy drops items whose key equals the key of an item already
// yielded.
func DistinctBy[T any, K comparable](s *Seq[T], key func(T) K) *Seq[T] {
	return distinctBy(s, key)
}

func distinctBy[T any, K comparable](s *Seq[T], key func(T) K) *Seq[T] {
	return derive(KindDistinct, []Node{s}, func() Evaluator[T] {
		return &distinctEval[T, K]{src: s.open(), key: key, seen: make(map[K]struct{})}
	})
}

// GroupBy groups items by key. It drains the whole upstream before
// yielding the first group; groups come out in the order their key was
// first seen.
func GroupBy[T any, K comparable](s *Seq[T], key func(T) K) *Seq[Group[K, T]] {
	return derive(KindGroupBy, []Node{s}, func() Evaluator[Group[K, T]] {
		return &groupEval[T, K]{src: s.open(), key: key}
	})
}

// OrderBy sorts items by key, keeping upstream order among equal keys.
// It drains the whole upstream before yielding.
func OrderBy[T any, K cmp.Ordered](s *Seq[T], key func(T) K) *Seq[T] {
	return orderBy(s, key, false)
}

// OrderByDescending is OrderBy with the key order reversed. Equal keys
// keep upstream order.
func OrderByDescending[T any, K cmp.Ordered](s *Seq[T], key func(T) K) *Seq[T] {
	return orderBy(s, key, true)
}

// OrderByFunc sorts items with compare, keeping upstream order among
// items it reports equal. compare returns a negative number when a
// sorts before b, so secondary keys chain with cmp.Or:
//
//	OrderByFunc(students, func(a, b Student) int {
//		return cmp.Or(cmp.Compare(b.Grade, a.Grade), cmp.Compare(a.Age, b.Age))
//	})
func OrderByFunc[T any](s *Seq[T], compare func(a, b T) int) *Seq[T] {
	return derive(KindOrderBy, []Node{s}, func() Evaluator[T] {
		return &sortEval[T]{src: s.open(), compare: compare}
	})
}

func orderBy[T any, K cmp.Ordered](s *Seq[T], key func(T) K, desc bool) *Seq[T] {
	return derive(KindOrderBy, []Node{s}, func() Evaluator[T] {
		return &orderEval[T, K]{src: s.open(), key: key, desc: desc}
	})
}

// Union yields the distinct items of a followed by the distinct items
// of b not already yielded.
func Union[T comparable](a, b *Seq[T]) *Seq[T] {
	return derive(KindSetOp, []Node{a, b}, func() Evaluator[T] {
		return &distinctEval[T, T]{
			src:  &concatEval[T]{seqs: []*Seq[T]{a, b}},
			key:  func(v T) T { return v },
			seen: make(map[T]struct{}),
		}
	})
}

// Intersect yields the distinct items of a that also occur in b, in a's
// order. b is drained on the first pull.
func Intersect[T comparable](a, b *Seq[T]) *Seq[T] {
	return derive(KindSetOp, []Node{a, b}, func() Evaluator[T] {
		return &setEval[T]{src: a.open(), other: b, keep: true}
	})
}

// Except yields the distinct items of a that do not occur in b, in a's
// order. b is drained on the first pull.
func Except[T comparable](a, b *Seq[T]) *Seq[T] {
	return derive(KindSetOp, []Node{a, b}, func() Evaluator[T] {
		return &setEval[T]{src: a.open(), other: b, keep: false}
	})
}

type distinctEval[T any, K comparable] struct {
	src  Evaluator[T]
	key  func(T) K
	seen map[K]struct{}
}

func (it *distinctEval[T, K]) Next() (T, bool, error) {
	var zero T
	for {
		val, ok, err := it.src.Next()
		if err != nil || !ok {
			return zero, false, err
		}
		k, err := invoke(KindDistinct.String(), func() (K, error) { return it.key(val), nil })
		if err != nil {
			return zero, false, err
		}
		if _, dup := it.seen[k]; dup {
			continue
		}
		it.seen[k] = struct{}{}
		return val, true, nil
	}
}

func (it *distinctEval[T, K]) Close() error { return it.src.Close() }

type groupEval[T any, K comparable] struct {
	src     Evaluator[T]
	key     func(T) K
	groups  []Group[K, T]
	index   int
	drained bool
}

func (it *groupEval[T, K]) drain() error {
	slot := make(map[K]int)
	for {
		val, ok, err := it.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		k, err := invoke(KindGroupBy.String(), func() (K, error) { return it.key(val), nil })
		if err != nil {
			return err
		}
		i, seen := slot[k]
		if !seen {
			i = len(it.groups)
			slot[k] = i
			it.groups = append(it.groups, Group[K, T]{Key: k})
		}
		it.groups[i].Items = append(it.groups[i].Items, val)
	}
}

func (it *groupEval[T, K]) Next() (Group[K, T], bool, error) {
	var zero Group[K, T]
	if !it.drained {
		it.drained = true
		if err := it.drain(); err != nil {
			return zero, false, err
		}
	}
	if it.index >= len(it.groups) {
		return zero, false, nil
	}
	g := it.groups[it.index]
	it.index++
	return g, true, nil
}

func (it *groupEval[T, K]) Close() error { return it.src.Close() }

type keyed[T any, K cmp.Ordered] struct {
	key K
	val T
}

type orderEval[T any, K cmp.Ordered] struct {
	src     Evaluator[T]
	key     func(T) K
	desc    bool
	items   []keyed[T, K]
	index   int
	drained bool
}

func (it *orderEval[T, K]) drain() error {
	for {
		val, ok, err := it.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		k, err := invoke(KindOrderBy.String(), func() (K, error) { return it.key(val), nil })
		if err != nil {
			return err
		}
		it.items = append(it.items, keyed[T, K]{key: k, val: val})
	}
	slices.SortStableFunc(it.items, func(a, b keyed[T, K]) int {
		if it.desc {
			return cmp.Compare(b.key, a.key)
		}
		return cmp.Compare(a.key, b.key)
	})
	return nil
}

func (it *orderEval[T, K]) Next() (T, bool, error) {
	var zero T
	if !it.drained {
		it.drained = true
		if err := it.drain(); err != nil {
			return zero, false, err
		}
	}
	if it.index >= len(it.items) {
		return zero, false, nil
	}
	v := it.items[it.index].val
	it.index++
	return v, true, nil
}

func (it *orderEval[T, K]) Close() error { return it.src.Close() }

type sortEval[T any] struct {
	src     Evaluator[T]
	compare func(a, b T) int
	items   []T
	index   int
	drained bool
}

func (it *sortEval[T]) drain() error {
	for {
		val, ok, err := it.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		it.items = append(it.items, val)
	}
	_, err := invoke(KindOrderBy.String(), func() (struct{}, error) {
		slices.SortStableFunc(it.items, it.compare)
		return struct{}{}, nil
	})
	return err
}

func (it *sortEval[T]) Next() (T, bool, error) {
	var zero T
	if !it.drained {
		it.drained = true
		if err := it.drain(); err != nil {
			return zero, false, err
		}
	}
	if it.index >= len(it.items) {
		return zero, false, nil
	}
	v := it.items[it.index]
	it.index++
	return v, true, nil
}

func (it *sortEval[T]) Close() error { return it.src.Close() }

type setEval[T comparable] struct {
	src   Evaluator[T]
	other *Seq[T]
	keep  bool
	set   map[T]struct{}
	seen  map[T]struct{}
}

func (it *setEval[T]) load() error {
	it.set = make(map[T]struct{})
	it.seen = make(map[T]struct{})
	other := it.other.open()
	defer other.Close()
	for {
		val, ok, err := other.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		it.set[val] = struct{}{}
	}
}

func (it *setEval[T]) Next() (T, bool, error) {
	var zero T
	if it.set == nil {
		if err := it.load(); err != nil {
			return zero, false, err
		}
	}
	for {
		val, ok, err := it.src.Next()
		if err != nil || !ok {
			return zero, false, err
		}
		if _, dup := it.seen[val]; dup {
			continue
		}
		if _, in := it.set[val]; in != it.keep {
			continue
		}
		it.seen[val] = struct{}{}
		return val, true, nil
	}
}

func (it *setEval[T]) Close() error { return it.src.Close() }
