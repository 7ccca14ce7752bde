package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"
)

// PlatformError is the interface satisfied by every structured error produced
// by this module. Use errors.As with a PlatformError variable to inspect one.
type PlatformError interface {
	error

	// Code returns the machine readable error code.
	Code() ErrorCode

	// Context returns a copy of the key/value pairs attached to the error.
	Context() map[string]interface{}

	// Retryable reports whether the operation may succeed if attempted again.
	Retryable() bool

	// Status returns the HTTP-like status associated with the error.
	Status() int

	// Unwrap returns the wrapped cause, if any.
	Unwrap() error
}

// platformError is the concrete PlatformError implementation.
type platformError struct {
	code    ErrorCode
	message string
	status  int
	context map[string]interface{}
	cause   error
}

// Error implements the error interface.
func (e *platformError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.code))
	b.WriteString("] ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *platformError) Code() ErrorCode { return e.code }

func (e *platformError) Context() map[string]interface{} {
	if e.context == nil {
		return map[string]interface{}{}
	}
	return maps.Clone(e.context)
}

func (e *platformError) Retryable() bool { return e.code.Retryable() }

func (e *platformError) Status() int {
	if e.status != 0 {
		return e.status
	}
	return e.code.Status()
}

func (e *platformError) Unwrap() error { return e.cause }

// New creates a PlatformError with the given code and message.
//
//nolint:ireturn // PlatformError is the public contract of this package.
func New(code ErrorCode, message string) PlatformError {
	return &platformError{code: code, message: message}
}

// Newf creates a PlatformError with a formatted message.
//
//nolint:ireturn // PlatformError is the public contract of this package.
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return &platformError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. It returns nil when err is nil.
//
//nolint:ireturn // PlatformError is the public contract of this package.
func Wrap(err error, code ErrorCode, message string) PlatformError {
	if err == nil {
		return nil
	}
	return &platformError{code: code, message: message, cause: err}
}

// WrapWithContext wraps err with a code, message and structured context.
// A nil err still produces an error so callers can attach context to
// failures that have no underlying cause.
//
//nolint:ireturn // PlatformError is the public contract of this package.
func WrapWithContext(err error, code ErrorCode, message string, context map[string]interface{}) PlatformError {
	pe := &platformError{code: code, message: message, cause: err}
	if len(context) > 0 {
		pe.context = maps.Clone(context)
	}
	return pe
}

// WithStatus returns a copy of err that reports the given status instead of
// the one derived from its code.
//
//nolint:ireturn // PlatformError is the public contract of this package.
func WithStatus(err PlatformError, status int) PlatformError {
	return &platformError{
		code:    err.Code(),
		message: messageOf(err),
		status:  status,
		context: err.Context(),
		cause:   err.Unwrap(),
	}
}

func messageOf(err PlatformError) string {
	if pe, ok := err.(*platformError); ok {
		return pe.message
	}
	return err.Error()
}

// GetCode returns the code of the first PlatformError in err's chain,
// or CodeUnknown when there is none.
func GetCode(err error) ErrorCode {
	var pe PlatformError
	if As(err, &pe) {
		return pe.Code()
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(PlatformError); ok && pe.Code() == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	var pe PlatformError
	if As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// HTTPStatus returns the status of the first PlatformError in err's chain,
// 500 for other non-nil errors and 200 for nil.
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	var pe PlatformError
	if As(err, &pe) {
		return pe.Status()
	}
	return 500
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }
