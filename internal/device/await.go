package device

import (
	"context"
	"errors"
	"fmt"
)

// Await runs a blocking transport call and returns early when ctx is done.
// BLE stacks rarely accept a context, so the call keeps running in its own
// goroutine and its late result is discarded.
func Await[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return zero, ctx.Err()
	}
}
