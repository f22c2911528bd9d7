package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNegativeDuration = errors.New("duration must be >= 0")
	ErrDurationTooShort = errors.New("duration too short")
)

// FieldError reports a rejected config value by its dotted key.
type FieldError struct {
	Path  string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %q: %v", e.Path, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// parseDuration accepts Go duration strings plus whole days ("30d").
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

// ParseDurationField parses raw for the key at path. Blank means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, &FieldError{Path: path, Value: raw, Err: fmt.Errorf("invalid duration: %w", err)}
	}
	if d < 0 {
		return 0, &FieldError{Path: path, Value: raw, Err: ErrNegativeDuration}
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for blank or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// durationRule is one duration key. min applies only to non-blank values;
// blank keeps the runtime default.
type durationRule struct {
	path string
	get  func(*Config) (string, bool)
	min  time.Duration
}

var durationRules = []durationRule{
	{path: "telegram.poll_timeout", get: func(c *Config) (string, bool) { return c.Telegram.PollTimeout, true }, min: time.Second},
	{path: "http.read_timeout", get: func(c *Config) (string, bool) { return c.HTTP.ReadTimeout, true }},
	{path: "http.idle_timeout", get: func(c *Config) (string, bool) { return c.HTTP.IdleTimeout, true }},
	{path: "scheduler.misfire_tolerance", get: func(c *Config) (string, bool) { return c.Scheduler.MisfireTolerance, true }},
	{path: "task_engine.default_timeout", get: func(c *Config) (string, bool) {
		if c.TaskEngine == nil {
			return "", false
		}
		return c.TaskEngine.DefaultTimeout, true
	}},
	{path: "reminder.retry_delay", get: reminderField(func(r *ReminderConfig) string { return r.RetryDelay })},
	{path: "reminder.send_timeout", get: reminderField(func(r *ReminderConfig) string { return r.SendTimeout })},
	// /list reports its window in whole hours.
	{path: "reminder.list_window", get: reminderField(func(r *ReminderConfig) string { return r.ListWindow }), min: time.Hour},
	{path: "reminder.reconcile_every", get: reminderField(func(r *ReminderConfig) string { return r.ReconcileEvery })},
	{path: "reminder.overdue_grace", get: reminderField(func(r *ReminderConfig) string { return r.OverdueGrace })},
	{path: "notifier.send_timeout", get: notifierField(func(n *NotifierConfig) string { return n.SendTimeout })},
	{path: "notifier.dedup_window", get: notifierField(func(n *NotifierConfig) string { return n.DedupWindow })},
	{path: "storage.busy_timeout", get: storageField(func(s *StorageConfig) string { return s.BusyTimeout })},
	{path: "storage.retention", get: storageField(func(s *StorageConfig) string { return s.Retention })},
}

func reminderField(f func(*ReminderConfig) string) func(*Config) (string, bool) {
	return func(c *Config) (string, bool) {
		if c.Reminder == nil {
			return "", false
		}
		return f(c.Reminder), true
	}
}

func notifierField(f func(*NotifierConfig) string) func(*Config) (string, bool) {
	return func(c *Config) (string, bool) {
		if c.Notifier == nil {
			return "", false
		}
		return f(c.Notifier), true
	}
}

func storageField(f func(*StorageConfig) string) func(*Config) (string, bool) {
	return func(c *Config) (string, bool) {
		if c.Storage == nil {
			return "", false
		}
		return f(c.Storage), true
	}
}

// validateDurations checks every duration key in declaration order.
func validateDurations(cfg *Config) []error {
	var errs []error
	for _, r := range durationRules {
		raw, ok := r.get(cfg)
		if !ok {
			continue
		}
		d, err := ParseDurationField(r.path, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if r.min > 0 && d > 0 && d < r.min {
			errs = append(errs, &FieldError{Path: r.path, Value: raw, Err: fmt.Errorf("%w: minimum %s", ErrDurationTooShort, r.min)})
		}
	}
	return errs
}
