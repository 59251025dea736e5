package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/edenschool/examparse/pkg/errors"
)

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. A run that overruns is reported as ErrTimeout so the
// manifest records it as an error for that file only; fn's goroutine is
// left to observe ctx.Done and exit on its own.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return apperrors.Newf(apperrors.ErrTimeout, apperrors.StatusError, "%s exceeded %v", name, timeout)
	}
}
