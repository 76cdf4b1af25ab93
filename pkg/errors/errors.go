// Package errors augments the standard errors
// provided by fmt (https://golang.org/src/fmt/errors.go)
// with a Wrap() method to wrap errors without resorting
// to fmt.Errorf("%w", err).
package errors

import (
	stderr "errors"
)

var _ error = New("")

// New sentinel Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// Wrapping never mutates the sentinel: each call to Wrap yields a fresh error
// which still satisfies Is(sentinel). Sentinels are therefore safe to share
// between goroutines.
type Error struct {
	msg  string
	err  error
	kind *Error
}

// Error message, including the wrapped cause if any
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error
func (e *Error) Wrap(err error) *Error {
	kind := e
	if e.kind != nil {
		kind = e.kind
	}
	return &Error{msg: e.msg, err: err, kind: kind}
}

// WrapMessage wraps a nested error with some extra context
func (e *Error) WrapMessage(msg string, err error) *Error {
	w := e.Wrap(err)
	w.msg = e.msg + ": " + msg
	return w
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target {
		return true
	}
	return e.kind != nil && e.kind == target
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}
