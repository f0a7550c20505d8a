package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Within runs fn with a context that expires after d. When the budget runs
// out before the parent context ends, the error is reported as ErrTimeout.
// A non-positive d runs fn with the parent context unchanged.
func Within[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(tctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return v, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	return v, err
}

// Await waits up to d for a value on ch. It returns ErrTimeout when the
// budget runs out, ErrClosed when ch is closed, and ctx.Err() when ctx ends.
// A non-positive d waits until ctx ends.
func Await[T any](ctx context.Context, d time.Duration, ch <-chan T) (T, error) {
	var zero T

	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case v, ok := <-ch:
		if !ok {
			return zero, ErrClosed
		}
		return v, nil
	case <-expired:
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
