package stream

import (
	"context"
	"time"
)

// Filter forwards the values of in that satisfy keep. The output channel
// is closed when ctx is done or in is closed.
func Filter[T any](ctx context.Context, in <-chan T, keep func(T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				if !keep(v) {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Debounce emits one trigger after in has been quiet for window following
// at least one value. Every new value restarts the window, so a burst of
// values yields a single trigger. A trigger that has not been consumed yet
// absorbs later ones. The output channel is closed when ctx is done or in
// is closed; a window still running at that point is discarded.
func Debounce[T any](ctx context.Context, in <-chan T, window time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)

		// Timers are synchronous since Go 1.23: Stop and Reset never leave
		// a stale tick behind, so the channel needs no draining.
		timer := time.NewTimer(window)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-in:
				if !ok {
					return
				}
				timer.Reset(window)
			case <-timer.C:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
