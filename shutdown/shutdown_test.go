package shutdown_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/relay/shutdown"
)

func TestWatchClosesWhenContextCancelled(t *testing.T) {
	s := shutdown.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := s.Watch(ctx)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch channel did not close after context cancellation")
	}
}

func TestDrainPassesBoundedContext(t *testing.T) {
	s := shutdown.New(1)
	var sawDeadline bool
	err := s.Drain(func(ctx context.Context) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawDeadline)
}

func TestDrainPropagatesShutdownError(t *testing.T) {
	s := shutdown.New(1)
	boom := errors.New("boom")
	err := s.Drain(func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
