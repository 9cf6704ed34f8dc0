package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallTimeoutBecomesStoreUnavailable(t *testing.T) {
	_, err := Call(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestCallWrapsStoreErrors(t *testing.T) {
	_, err := Call(context.Background(), time.Second, func(context.Context) (string, error) {
		return "", errors.New("disk I/O error")
	})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestCallPassesParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Call(ctx, time.Second, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestCallReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestItemErrorUnwraps(t *testing.T) {
	err := &ItemError{Index: 1, Item: "OPI", Err: ErrNoMatchFound}
	assert.ErrorIs(t, err, ErrNoMatchFound)
	assert.Contains(t, err.Error(), "item 2")
}
