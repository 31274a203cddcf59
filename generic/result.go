package generic

import "fmt"

// Result pairs a value with the error from producing it, so that both can travel over a single channel.
type Result[T any] struct {
	Value T
	Error error
}

// NewResult wraps a (T, error) return value as a Result[T].
func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

func (r Result[T]) IsOk() bool {
	return r.Error == nil
}

func (r Result[T]) IsErr() bool {
	return r.Error != nil
}

// Parts splits the Result[T] back into a (T, error) pair.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}

// Unwrap_ panics if err is not nil, for registration calls where an error is a programming mistake.
func Unwrap_(err error) {
	if err != nil {
		panic(fmt.Errorf("tried to Unwrap_() an Err: %w", err))
	}
}
