package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	short := f.NewTimer(time.Second)
	long := f.NewTimer(3 * time.Second)

	f.Advance(time.Second)
	select {
	case <-short.C():
	default:
		t.Fatal("short timer did not fire")
	}
	select {
	case <-long.C():
		t.Fatal("long timer fired early")
	default:
	}
	assert.Equal(t, 1, f.Pending())

	f.Advance(2 * time.Second)
	select {
	case <-long.C():
	default:
		t.Fatal("long timer did not fire")
	}
	assert.Equal(t, 0, f.Pending())
}

func TestFake_StopRemovesTimer(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tm := f.NewTimer(time.Second)
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	assert.Equal(t, 0, f.Pending())
}

func TestSleep_ReturnsAfterAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	done := make(chan error, 1)
	go func() { done <- Sleep(context.Background(), f, 2*time.Second) }()

	f.BlockUntil(1)
	f.Advance(2 * time.Second)
	require.NoError(t, <-done)
}

func TestSleep_ContextCancelled(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Sleep(ctx, f, time.Hour) }()

	f.BlockUntil(1)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, f.Pending(), "timer must be released on cancellation")
}
