// Package seq provides lazy, composable, pull-based sequence pipelines.
//
// A [Seq] is an immutable pipeline stage. Attaching an operator returns
// a new Seq and does no work: operator functions run only while an
// [Evaluator] pulls items through them, one item at a time, in source
// order. Every call to [Seq.Evaluate] (and every terminal reducer) starts
// a fresh enumeration with its own state, so a chain can be enumerated
// any number of times and re-runs every side effect from scratch.
//
// # Operators
//
// Streaming, order-preserving:
//
//   - Filter, Map, Tap: per-item predicates and transforms
//   - Take, Skip, TakeWhile, SkipWhile: index or predicate bounded; Take
//     stops pulling upstream once satisfied
//   - Distinct, DistinctBy: drop repeats, never reorder
//   - Zip: lockstep over two sequences, ends with the shorter
//   - FlattenMany: depth-first flattening of per-item sub-sequences
//   - Concat, Union, Intersect, Except
//
// Draining (consume the whole upstream before the first item):
//
//   - GroupBy: groups in first-seen key order, members in upstream order
//   - OrderBy, OrderByDescending: stable sorts
//
// # Terminals
//
// ToSlice, ForEach, Count, First, Last, Single, ElementAt, Any, All,
// Reduce, Sum, Average, Max and Min each drive a private evaluator and
// close it before returning. First, Any and All short-circuit.
//
// # Failures
//
// An error returned by an operator, or a panic inside one, stops the
// pull that ran it and surfaces as a [faults.OperatorFault] naming the
// stage. An evaluator that has failed keeps returning the same error;
// start over from the Seq, which is unaffected.
//
//	evens := seq.Range(1, 10).Filter(func(n int) bool { return n%2 == 0 })
//	squares := seq.Map(evens, func(n int) (int, error) { return n * n, nil })
//	first2, err := squares.Take(2).ToSlice() // [4 16]
package seq
