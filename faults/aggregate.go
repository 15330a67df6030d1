package faults

import (
	"fmt"
	"strings"
)

// AggregateError bundles the failures of a batch operation. Errors holds
// one entry per faulted unit and Canceled one entry per canceled unit,
// both in the batch's order.
type AggregateError struct {
	Errors   []error
	Canceled []error
}

// Error lists every fault.
func (e *AggregateError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(CodeAggregate))
	fmt.Fprintf(&sb, ": %d faulted, %d canceled", len(e.Errors), len(e.Canceled))
	for _, err := range e.Errors {
		sb.WriteString("; ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes both faults and cancellations to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors)+len(e.Canceled))
	out = append(out, e.Errors...)
	return append(out, e.Canceled...)
}

// Is matches ErrAggregate. Canceled and faulted members are reached
// through Unwrap.
func (e *AggregateError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == CodeAggregate
}

// Faulted reports whether at least one unit faulted.
func (e *AggregateError) Faulted() bool { return len(e.Errors) > 0 }

// Empty reports whether nothing was recorded.
func (e *AggregateError) Empty() bool {
	return len(e.Errors) == 0 && len(e.Canceled) == 0
}

// ErrAggregate is the sentinel for errors.Is checks against AggregateError.
var ErrAggregate = &Error{Code: CodeAggregate, Message: "batch failed"}
