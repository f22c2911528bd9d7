package app

import (
	"context"
	"time"

	logx "remindbot/pkg/logx"
)

const (
	outcomePruneSchedule = "@every 1h"
	dedupPruneSchedule   = "@every 10m"
)

// registerHousekeeping adds the recurring prune jobs. The reconcile sweep is
// registered by the reminder service itself.
func (a *App) registerHousekeeping() error {
	if a.store != nil && a.retention > 0 {
		retention := a.retention
		err := a.sched.AddSchedule("storage.prune_outcomes", outcomePruneSchedule, 30*time.Second, func(ctx context.Context) error {
			n, err := a.store.PruneOutcomes(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				a.log.Info("outcome history pruned", logx.Int64("rows", n), logx.Duration("retention", retention))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return a.sched.AddSchedule("notifier.prune_dedup", dedupPruneSchedule, 30*time.Second, func(ctx context.Context) error {
		if err := a.notif.Prune(ctx); err != nil {
			return err
		}
		if a.store == nil {
			return nil
		}
		n, err := a.store.PruneDedup(ctx)
		if err == nil && n > 0 {
			a.log.Debug("dedup rows pruned", logx.Int64("rows", n))
		}
		return err
	})
}
