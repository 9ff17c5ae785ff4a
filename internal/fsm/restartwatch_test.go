package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcobbs/xoe/internal/restartsignal"
)

func TestWithRestartWatchCancelsOnRestartRequest(t *testing.T) {
	t.Parallel()
	parent := context.Background()
	var restart restartsignal.Signal

	ctx, cancel := withRestartWatch(parent, &restart)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before restart was requested")
	case <-time.After(50 * time.Millisecond):
	}

	restart.Request()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after restart request")
	}
}

func TestWithRestartWatchCancelsWithParent(t *testing.T) {
	t.Parallel()
	parent, parentCancel := context.WithCancel(context.Background())
	var restart restartsignal.Signal

	ctx, cancel := withRestartWatch(parent, &restart)
	defer cancel()

	parentCancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context did not observe parent cancellation")
	}
}

func TestIsRestartExit(t *testing.T) {
	t.Parallel()

	t.Run("restart requested", func(t *testing.T) {
		ctx := context.Background()
		restartCtx, cancel := context.WithCancel(context.Background())
		var restart restartsignal.Signal
		restart.Request()
		cancel()

		assert.True(t, isRestartExit(ctx, restartCtx, &restart))
	})

	t.Run("parent cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		restartCtx, restartCancel := context.WithCancel(ctx)
		restartCancel()
		var restart restartsignal.Signal
		restart.Request()

		assert.False(t, isRestartExit(ctx, restartCtx, &restart))
	})

	t.Run("pipeline exited on its own", func(t *testing.T) {
		ctx := context.Background()
		restartCtx, cancel := context.WithCancel(context.Background())
		cancel()
		var restart restartsignal.Signal

		assert.False(t, isRestartExit(ctx, restartCtx, &restart))
	})

	t.Run("nothing cancelled", func(t *testing.T) {
		ctx := context.Background()
		restartCtx := context.Background()
		var restart restartsignal.Signal

		require.False(t, isRestartExit(ctx, restartCtx, &restart))
	})
}
