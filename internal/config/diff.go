package config

import (
	"reflect"
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging. Secrets (bot token, pprof token) are never
// included; only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// HTTP (never log pprof token)
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Int("http.port", newCfg.HTTP.Port),
			logx.Bool("http.pprof_enabled", newCfg.HTTP.Pprof.Enabled),
			logx.Bool("http.pprof_token_set", strings.TrimSpace(newCfg.HTTP.Pprof.Token) != ""),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) ||
		strings.TrimSpace(oldCfg.Scheduler.MisfireTolerance) != strings.TrimSpace(newCfg.Scheduler.MisfireTolerance) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.misfire_tolerance", strings.TrimSpace(newCfg.Scheduler.MisfireTolerance)),
		)
	}

	if oTE, nTE := deref(oldCfg.TaskEngine), deref(newCfg.TaskEngine); oTE != nTE {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
			logx.Int("task_engine.history_size", nTE.HistorySize),
		)
	}

	if oR, nR := deref(oldCfg.Reminder), deref(newCfg.Reminder); oR != nR {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.Int("reminder.max_retries", nR.MaxRetries),
			logx.String("reminder.retry_delay", strings.TrimSpace(nR.RetryDelay)),
			logx.Int("reminder.max_per_owner", nR.MaxPerOwner),
			logx.String("reminder.reconcile_every", strings.TrimSpace(nR.ReconcileEvery)),
		)
	}

	if oN, nN := deref(oldCfg.Notifier), deref(newCfg.Notifier); oN != nN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", nN.RatePerSec),
			logx.String("notifier.dedup_window", strings.TrimSpace(nN.DedupWindow)),
			logx.Int("notifier.dedup_max_entries", nN.DedupMaxEntries),
			logx.Bool("notifier.persist_dedup", nN.PersistDedup),
		)
	}

	// Storage: the path itself may be sensitive, log only whether it is set.
	oS, nS := deref(oldCfg.Storage), deref(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.retention", strings.TrimSpace(nS.Retention)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports changed sections that only take effect after a
// restart. Logging, notifier and the telegram owner list are applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "logging", "notifier":
		default:
			out = append(out, c)
		}
	}
	return out
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
