package analyst

import (
	"context"
	"fmt"
	"time"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

// Outcome is the result of one collaborator call: either a value or a failure.
type Outcome[T any] struct {
	value T
	err   error
}

// Succeeded wraps a successful value.
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{value: v}
}

// Failed wraps a failure. A nil error is reported as ErrInternal.
func Failed[T any](err error) Outcome[T] {
	if err == nil {
		err = apperr.ErrInternal
	}
	return Outcome[T]{err: err}
}

// Ok reports whether the call succeeded.
func (o Outcome[T]) Ok() bool {
	return o.err == nil
}

// Err returns the failure, or nil.
func (o Outcome[T]) Err() error {
	return o.err
}

// Value returns the value and whether the call succeeded.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.err == nil
}

// OrElse returns the value, or the fallback computed from the failure.
func (o Outcome[T]) OrElse(fallback func(error) T) T {
	if o.err != nil {
		return fallback(o.err)
	}
	return o.value
}

// invoke runs fn under a timeout and captures panics, so a collaborator can
// never escape its step with anything other than a Failed outcome.
func invoke[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (out Outcome[T]) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out = Failed[T](fmt.Errorf("%w: collaborator panic: %v", apperr.ErrInternal, r))
		}
	}()

	v, err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return Failed[T](err)
	}
	return Succeeded(v)
}
