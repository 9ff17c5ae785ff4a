package fsm

import (
	"context"
	"time"

	"github.com/hcobbs/xoe/internal/restartsignal"
)

// restartPollInterval is the cadence role loops poll the Restart
// Signal at, matching the "1 Hz wake of the serial-bridge supervisor"
// quiescence point.
const restartPollInterval = 1 * time.Second

// withRestartWatch derives a context that is cancelled either when
// parent is cancelled or when restart's flag is observed set, whichever
// comes first. Role loops pass the derived context to their underlying
// pipeline/server Run methods so a management "restart" command stops
// them exactly like a parent cancellation would.
func withRestartWatch(parent context.Context, restart *restartsignal.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(restartPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if restart.IsRequested() {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}

// isRestartExit reports whether a role's pipeline/server returned
// because the Restart Signal fired, as opposed to the parent context
// being cancelled (process shutdown) or the pipeline exiting on its own
// because of a fatal error.
func isRestartExit(ctx, restartCtx context.Context, restart *restartsignal.Signal) bool {
	return ctx.Err() == nil && restartCtx.Err() != nil && restart.IsRequested()
}
