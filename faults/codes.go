package faults

// Code is a machine-readable failure category.
type Code string

const (
	// CodeOperatorFault indicates a caller-supplied operator failed or panicked.
	CodeOperatorFault Code = "OPERATOR_FAULT"
	// CodeNotFound indicates a single-result reducer found no matching element.
	CodeNotFound Code = "NOT_FOUND"
	// CodeAggregate indicates one or more tasks in a batch failed.
	CodeAggregate Code = "AGGREGATE_FAILURE"
	// CodeCanceled indicates work stopped after observing a cancellation signal.
	CodeCanceled Code = "CANCELED"
	// CodeDeadlineExceeded indicates a deadline fired. It is a kind of cancellation.
	CodeDeadlineExceeded Code = "DEADLINE_EXCEEDED"
	// CodeInvalidArgument indicates a call was made with unusable arguments.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// IsCancellation reports whether the code describes a cancellation.
func IsCancellation(code Code) bool {
	return code == CodeCanceled || code == CodeDeadlineExceeded
}
