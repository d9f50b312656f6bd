package sdcard

import "fmt"

// Unit is the payload type of results that carry no value.
type Unit = struct{}

// Result is the uniform success-or-failure carrier returned by every
// fallible card operation.
//
// A Result is either a success holding a value, or a failure holding a
// CardError; no operation signals failure through sentinel values or output
// parameters. Callers must branch on IsOK or IsError before touching the
// payload: Value on an error result is a programming error and panics.
type Result[T any] struct {
	value T
	err   *CardError
}

// Ok returns a success result carrying value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// OkUnit returns a success result with no payload.
func OkUnit() Result[Unit] {
	return Result[Unit]{}
}

// Fail returns a failure result of the given kind.
func Fail[T any](kind ErrorKind, message string) Result[T] {
	return Result[T]{err: &CardError{Kind: kind, Message: message}}
}

// FailErr returns a failure result carrying err. err must be non-nil.
func FailErr[T any](err *CardError) Result[T] {
	if err == nil {
		panic("sdcard: FailErr with nil error")
	}
	return Result[T]{err: err}
}

// IsOK reports whether the result is a success.
func (r Result[T]) IsOK() bool { return r.err == nil }

// IsError reports whether the result is a failure.
func (r Result[T]) IsError() bool { return r.err != nil }

// Kind returns the result's error kind; KindSuccess for a success result.
func (r Result[T]) Kind() ErrorKind {
	if r.err == nil {
		return KindSuccess
	}
	return r.err.Kind
}

// Message returns the failure message, or "" for a success result.
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Message
}

// Err returns the carried CardError, or nil for a success result.
func (r Result[T]) Err() *CardError { return r.err }

// Value returns the success payload. It panics if the result is a failure;
// callers must check IsOK first.
func (r Result[T]) Value() T {
	if r.err != nil {
		panic(fmt.Sprintf("sdcard: Value on error result: %s: %s",
			r.err.Kind, r.err.Error()))
	}
	return r.value
}

// ValueOr returns the success payload, or def if the result is a failure.
func (r Result[T]) ValueOr(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}
