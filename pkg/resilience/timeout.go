package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithDeadline runs fn under a context that expires after d and labels a
// deadline failure with name. fn must honour its context; unlike a
// goroutine race, nothing is leaked when it does.
func WithDeadline[T any](ctx context.Context, d time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	out, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return out, fmt.Errorf("%s: exceeded %v: %w", name, d, err)
	}
	return out, err
}
