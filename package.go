// Package coflow coordinates cooperative tasks and lazy sequences.
//
// Key components:
//
//   - Scheduler: runs tasks as coroutines on a single loop goroutine
//     that starts when work is ready and exits when the run queue
//     drains.
//
//   - Task: the running side of a spawned operation. It exposes its
//     cancellation controller and the suspension points Yield and
//     Sleep.
//
//   - Handle: the observing side. Its state moves from Pending to
//     Running to exactly one of Completed, Faulted or Canceled.
//
//   - WhenAll, WhenAny and Group: combinators that wait on handles
//     through a Waiter, either a *Task or Blocking(ctx).
//
//   - AsyncSeq: a pull-driven sequence whose pulls may suspend the
//     consumer.
//
// Lazy synchronous pipelines live in package seq, cancellation
// controllers in package cancel and the error taxonomy in package
// faults.
package coflow
