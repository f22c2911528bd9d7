package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/httpd"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

// Config is validated by config.Validate before it reaches these mappers,
// so duration errors here only surface on programmer mistakes.

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	retention, err := config.ParseDurationField("storage.retention", sc.Retention)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy, Retention: retention}, true, nil
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	if te == nil {
		return engine.Config{}, nil
	}
	d, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: d,
		HistorySize:    te.HistorySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tol, err := config.ParseDurationOrDefault("scheduler.misfire_tolerance", cfg.Scheduler.MisfireTolerance, scheduler.DefaultMisfireTolerance)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone), MisfireTolerance: tol}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{DedupWindow: time.Minute}, nil
	}
	timeout, err := config.ParseDurationField("notifier.send_timeout", nc.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:      nc.RatePerSec,
		SendTimeout:     timeout,
		DedupWindow:     window,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
		HistorySize:     nc.HistorySize,
	}, nil
}

// reminderSetup is what the reminder service needs from config: its own
// Config plus the parser placeholder.
type reminderSetup struct {
	cfg         reminder.Config
	placeholder string
}

func mapReminderConfig(cfg *config.Config, misfire time.Duration) (reminderSetup, error) {
	rc := config.ReminderConfig{}
	if cfg.Reminder != nil {
		rc = *cfg.Reminder
	}
	var (
		out reminderSetup
		err error
	)
	out.placeholder = rc.EventPlaceholder
	out.cfg.MisfireTolerance = misfire
	out.cfg.MaxPerOwner = rc.MaxPerOwner

	retryDelay, err := config.ParseDurationOrDefault("reminder.retry_delay", rc.RetryDelay, reminder.DefaultRetryDelay)
	if err != nil {
		return out, err
	}
	maxRetries := rc.MaxRetries
	if maxRetries == 0 {
		maxRetries = reminder.DefaultMaxRetries
	}
	out.cfg.Retry = reminder.RetryPolicy{MaxRetries: maxRetries, Delay: retryDelay}

	if out.cfg.SendTimeout, err = config.ParseDurationField("reminder.send_timeout", rc.SendTimeout); err != nil {
		return out, err
	}
	if out.cfg.ListWindow, err = config.ParseDurationField("reminder.list_window", rc.ListWindow); err != nil {
		return out, err
	}
	if out.cfg.OverdueGrace, err = config.ParseDurationField("reminder.overdue_grace", rc.OverdueGrace); err != nil {
		return out, err
	}
	// an explicit "0s" disables the sweep; omitted means the default
	if strings.TrimSpace(rc.ReconcileEvery) == "" {
		out.cfg.ReconcileEvery = time.Minute
	} else if out.cfg.ReconcileEvery, err = config.ParseDurationField("reminder.reconcile_every", rc.ReconcileEvery); err != nil {
		return out, err
	}
	return out, nil
}

func mapHTTPConfig(cfg *config.Config) (httpd.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpd.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpd.Config{}, err
	}
	port := hc.Port
	if port == 0 {
		port = config.DefaultPort
	}
	return httpd.Config{
		Addr:        httpd.ListenAddr(port),
		ReadTimeout: read,
		IdleTimeout: idle,
		Pprof: httpd.PprofConfig{
			Enabled: hc.Pprof.Enabled,
			Prefix:  hc.Pprof.Prefix,
			Token:   hc.Pprof.Token,
		},
	}, nil
}
