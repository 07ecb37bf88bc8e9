package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/databridge/internal/ports"
)

var fast = ports.RetryPolicy{
	MaxRetries:      3,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	Multiplier:      2,
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var waits int
	err := Do(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error, time.Duration) { waits++ })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, waits)
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fast, func() error {
		calls++
		return boom
	}, nil)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, fast.MaxRetries+1, calls)
}

func TestDoZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), ports.RetryPolicy{}, func() error {
		calls++
		return errors.New("nope")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	bad := errors.New("bad request")
	err := Do(context.Background(), fast, func() error {
		calls++
		return Permanent(bad)
	}, nil)

	require.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := ports.RetryPolicy{MaxRetries: 100, InitialInterval: time.Hour, MaxInterval: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, slow, func() error { return errors.New("down") }, nil)
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
