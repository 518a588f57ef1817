package env

import (
	stderrors "errors"
)

// Error is a host error object. It doubles as a Go error so callbacks can
// return it directly.
type Error struct {
	Name    string
	Message string
	Stack   string
	dom     bool
}

// NewError creates an error object with the given constructor name.
func NewError(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

// TypeError creates a TypeError.
func TypeError(message string) *Error { return NewError("TypeError", message) }

// ReferenceError creates a ReferenceError.
func ReferenceError(message string) *Error { return NewError("ReferenceError", message) }

// RangeError creates a RangeError.
func RangeError(message string) *Error { return NewError("RangeError", message) }

// EvalError creates an EvalError.
func EvalError(message string) *Error { return NewError("EvalError", message) }

// DOMException creates a DOM exception such as SyntaxError or
// NoModificationAllowedError.
func DOMException(name, message string) *Error {
	return &Error{Name: name, Message: message, dom: true}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// StringTag implements Tagger.
func (e *Error) StringTag() string {
	if e.dom {
		return "DOMException"
	}
	return "Error"
}

// FromError converts a Go error into a host error value. Host errors found in
// err's chain are returned as is.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return NewError("Error", err.Error())
}
