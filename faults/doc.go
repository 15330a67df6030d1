// Package faults defines the error taxonomy shared by coflow packages.
//
// Every failure is an [*Error] carrying a [Code]. Callers test with
// [errors.Is] against the sentinels ([ErrNotFound], [ErrCanceled],
// [ErrDeadlineExceeded], [ErrOperatorFault], [ErrInvalidArgument]);
// matching is by code, so a constructed NotFound("First") is
// errors.Is(err, ErrNotFound). Deadline errors also match ErrCanceled.
//
// Batch failures are reported as [*AggregateError], which keeps faults
// and cancellations in separate lists. Recovered panics are reported as
// [*PanicError] with the stack captured at the point of recovery.
package faults
