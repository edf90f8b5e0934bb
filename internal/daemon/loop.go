package daemon

import (
	"context"
	"errors"
	"time"

	"curator/internal/logging"
	"curator/internal/workflow"
)

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)

	d.runCycle(ctx, "startup")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(d.debounce)
	debounce.Stop()
	defer debounce.Stop()

	pending := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runCycle(ctx, "interval")
		case reason := <-d.trigger:
			if pending == "" {
				d.logger.Debug("cycle trigger received", logging.String("reason", reason))
			}
			pending = reason
			debounce.Reset(d.debounce)
		case <-debounce.C:
			reason := pending
			pending = ""
			d.runCycle(ctx, reason)
			ticker.Reset(d.interval)
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	_, err := d.workflow.RunCycle(ctx)
	switch {
	case err == nil:
		d.logger.Debug("cycle finished", logging.String("reason", reason))
	case errors.Is(err, workflow.ErrCycleInProgress):
		d.logger.Debug("cycle already in progress; skipping", logging.String("reason", reason))
	case ctx.Err() != nil:
	default:
		// RunCycle already logged the failure with full context.
		d.logger.Debug("cycle ended with error", logging.String("reason", reason), logging.Error(err))
	}
}
