package http

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightTracker_Count(t *testing.T) {
	var tr InFlightTracker
	tr.Increment()
	tr.Increment()
	tr.Decrement()
	assert.Equal(t, int64(1), tr.Count())
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	var tr InFlightTracker
	tr.Increment()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.Decrement()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.WaitForZero(ctx, 5*time.Millisecond))
}

func TestInFlightTracker_WaitForZeroTimeout(t *testing.T) {
	var tr InFlightTracker
	tr.Increment()
	defer tr.Decrement()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.WaitForZero(ctx, 5*time.Millisecond), context.DeadlineExceeded)
}
