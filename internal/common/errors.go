package common

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidOrderItem    = errors.New("invalid order item")
	ErrNoMatchFound        = errors.New("no catalog match found")
	ErrNoSupplierAvailable = errors.New("no supplier available")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// ItemError reports a failure while processing one order item of a batch.
type ItemError struct {
	Index int
	Item  string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%q): %v", e.Index+1, e.Item, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Call runs fn under a timeout. Deadline expiry and any other store error are
// reported as ErrStoreUnavailable; cancellation of the parent context is passed through.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	v, err := fn(callCtx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return v, ctx.Err()
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return v, err
	}
	if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
		return v, fmt.Errorf("%w: timed out after %s", ErrStoreUnavailable, timeout)
	}
	return v, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
