package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`

	// Scheduler controls one-shot reminder timers and housekeeping jobs.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of due timers.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Reminder *ReminderConfig `json:"reminder,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may use /status. Reminders are open to every user.
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warn+ log lines to a chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HTTPConfig controls the health listener. PORT in the environment wins
// over Port.
//
// Security note:
//   - pprof is mounted under Pprof.Prefix only when Pprof.Enabled is set.
//   - Set Pprof.Token when the listener is reachable from outside.
type HTTPConfig struct {
	Port  int         `json:"port,omitempty"` // default: 8080
	Pprof PprofConfig `json:"pprof,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token   string `json:"token,omitempty"`  // optional bearer token (do not log)
}

type SchedulerConfig struct {
	// Timezone is an IANA name. Reminder phrases are interpreted in it.
	// BOT_TIMEZONE in the environment wins.
	Timezone string `json:"timezone,omitempty"`

	// MisfireTolerance is how late a timer may start before it is treated
	// as a failed attempt. Default "10s".
	MisfireTolerance string `json:"misfire_tolerance,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "30s"
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// ReminderConfig controls the reminder lifecycle.
//
// Defaults:
//   - max_retries: 2
//   - retry_delay: "5m"
//   - send_timeout: "30s"
//   - list_window: "24h" (at least "1h")
//   - max_per_owner: 0 (no cap)
//   - reconcile_every: "1m" ("0s" disables the sweep)
//   - overdue_grace: "2m"
type ReminderConfig struct {
	MaxRetries     int    `json:"max_retries,omitempty"`
	RetryDelay     string `json:"retry_delay,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	ListWindow     string `json:"list_window,omitempty"`
	MaxPerOwner    int    `json:"max_per_owner,omitempty"`
	ReconcileEvery string `json:"reconcile_every,omitempty"`
	OverdueGrace   string `json:"overdue_grace,omitempty"`
	// EventPlaceholder replaces an empty event text. Default "提醒事项".
	EventPlaceholder string `json:"event_placeholder,omitempty"`
}

// NotifierConfig controls outbound delivery.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	RatePerSec      int    `json:"rate_per_sec"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

// StorageConfig controls the optional outcome log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db", "retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	Retention   string `json:"retention,omitempty"`
}
