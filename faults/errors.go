package faults

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is the failure type shared by the sequence engine, the
// cancellation controller and the task coordinator.
type Error struct {
	// Code is the failure category.
	Code Code
	// Message is a human-readable description.
	Message string
	// Op names the operation or pipeline stage that failed.
	Op string
	// Details carries additional context.
	Details map[string]any
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Code))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, " (cause: %v)", e.Cause)
	}
	return sb.String()
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code. A deadline error also
// matches the canceled sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == CodeCanceled && e.Code == CodeDeadlineExceeded
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "no matching element"}
	ErrCanceled         = &Error{Code: CodeCanceled, Message: "operation canceled"}
	ErrDeadlineExceeded = &Error{Code: CodeDeadlineExceeded, Message: "deadline exceeded"}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrOperatorFault    = &Error{Code: CodeOperatorFault, Message: "operator failed"}
)

// --- Constructors ---

// OperatorFault wraps an error raised by a caller-supplied operator
// at the named stage.
func OperatorFault(op string, cause error) *Error {
	return &Error{Code: CodeOperatorFault, Message: "operator failed", Op: op, Cause: cause}
}

// NotFound reports that op found no matching element.
func NotFound(op string) *Error {
	return &Error{Code: CodeNotFound, Message: "no matching element", Op: op}
}

// Empty reports that op needs at least one element.
func Empty(op string) *Error {
	return &Error{Code: CodeNotFound, Message: "sequence contains no elements", Op: op}
}

// Canceled reports that op stopped after observing a signal.
func Canceled(op string) *Error {
	return &Error{Code: CodeCanceled, Message: "operation canceled", Op: op}
}

// DeadlineExceeded reports that op stopped because a deadline fired.
func DeadlineExceeded(op string) *Error {
	return &Error{Code: CodeDeadlineExceeded, Message: "deadline exceeded", Op: op}
}

// InvalidArgument reports an unusable argument to op.
func InvalidArgument(op, reason string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: reason, Op: op}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCanceled reports whether err is a cancellation, including
// deadline expiry.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, ErrCanceled)
}

// Invoke runs a caller-supplied function. A returned error becomes an
// OperatorFault attributed to op; a panic becomes an OperatorFault
// wrapping a *PanicError.
func Invoke[R any](op string, fn func() (R, error)) (r R, err error) {
	defer func() {
		if v := recover(); v != nil {
			var zero R
			r, err = zero, OperatorFault(op, NewPanicError(v))
		}
	}()
	r, err = fn()
	if err != nil {
		var zero R
		return zero, OperatorFault(op, err)
	}
	return r, nil
}

// PanicError wraps a recovered panic value together with the goroutine
// stack trace captured at the point of the panic.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

// Error returns the panic value and the stack trace.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}
