package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func envMap(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

const sampleYAML = `
telegram:
  token: "file-token"
  owner_user_ids: [1, 2]
logging:
  level: info
  console: true
scheduler:
  timezone: Asia/Shanghai
reminder:
  max_retries: 3
  retry_delay: 1m
storage:
  driver: sqlite
  path: ./remindbot.db
`

func TestParseYAMLWithEnvOverrides(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	m.lookupEnv = envMap(map[string]string{
		EnvToken:    "env-token",
		EnvPort:     "9090",
		EnvTimezone: "UTC",
	})

	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse err = %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env-token", cfg.Telegram.Token)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Scheduler.Timezone != "UTC" {
		t.Fatalf("timezone = %q, want UTC", cfg.Scheduler.Timezone)
	}
	if cfg.Reminder == nil || cfg.Reminder.MaxRetries != 3 || cfg.Reminder.RetryDelay != "1m" {
		t.Fatalf("reminder = %+v", cfg.Reminder)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
}

func TestParseIgnoresBadPortEnv(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "config.json", `{"telegram":{"token":"t"},"http":{"port":8081}}`))
	m.lookupEnv = envMap(map[string]string{EnvPort: "not-a-port"})
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse err = %v", err)
	}
	if cfg.HTTP.Port != 8081 {
		t.Fatalf("port = %d, want 8081", cfg.HTTP.Port)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, file, body, want string
	}{
		{"unknown field", "c.json", `{"telegram":{"token":"t"},"plugins":{}}`, "unknown field"},
		{"trailing data", "c.json", `{"telegram":{"token":"t"}} {}`, "trailing data"},
		{"missing token", "c.json", `{}`, "telegram.token is required"},
		{"bad timezone", "c.yml", "telegram: {token: t}\nscheduler: {timezone: Mars/Base}\n", "scheduler.timezone"},
		{"bad duration", "c.yaml", "telegram: {token: t}\nreminder: {retry_delay: soon}\n", "reminder.retry_delay"},
		{"negative duration", "c.yaml", "telegram: {token: t}\nnotifier: {dedup_window: -1s}\n", "must be >= 0"},
		{"unknown driver", "c.json", `{"telegram":{"token":"t"},"storage":{"driver":"redis"}}`, "unknown storage.driver"},
		{"sqlite without path", "c.json", `{"telegram":{"token":"t"},"storage":{"driver":"sqlite"}}`, "storage.path is required"},
		{"list window under an hour", "c.yaml", "telegram: {token: t}\nreminder: {list_window: 30m}\n", "reminder.list_window"},
		{"yaml sequence root", "c.yaml", "- telegram\n- token\n", "top level must be a mapping"},
		{"yaml two documents", "c.yaml", "telegram: {token: t}\n---\ntelegram: {token: u}\n", "trailing data"},
		{"yaml duplicate key", "c.yml", "telegram: {token: t}\ntelegram: {token: u}\n", "duplicate key telegram"},
		{"yaml empty", "c.yaml", "", "config file is empty"},
		{"log chat missing", "c.json", `{"telegram":{"token":"t"},"logging":{"telegram":{"enabled":true}}}`, "chat_id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, tt.file, tt.body))
			m.lookupEnv = envMap(nil)
			_, err := m.Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestTokenFromEnvOnly(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "c.json", `{}`))
	m.lookupEnv = envMap(map[string]string{EnvToken: "  from-env  "})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load err = %v", err)
	}
	if cfg.Telegram.Token != "from-env" || m.Get() != cfg {
		t.Fatalf("Load = %+v", cfg.Telegram)
	}
}

func TestPublishKeepsLatest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatalf("subscriber got the stale config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after Unsubscribe")
	}
	m.publish(a)
}

func TestReloadSkipsUnchangedAndRejected(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "c.json", `{"telegram":{"token":"t"}}`)
	m := NewConfigManager(path)
	m.lookupEnv = envMap(nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load err = %v", err)
	}
	ch := m.Subscribe(4)

	m.reload(context.Background())
	if len(ch) != 0 {
		t.Fatalf("unchanged config was published")
	}

	if err := os.WriteFile(path, []byte(`{"telegram":{"token":"t"},"http":{"port":1234}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.HTTP.Port == 1234 {
			return context.Canceled
		}
		return nil
	})
	m.reload(context.Background())
	if len(ch) != 0 || m.Get().HTTP.Port != 0 {
		t.Fatalf("rejected config was committed")
	}

	m.SetValidator(nil)
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		if cfg.HTTP.Port != 1234 {
			t.Fatalf("published port = %d", cfg.HTTP.Port)
		}
	default:
		t.Fatalf("changed config was not published")
	}
}

func TestWatchPublishesOnWrite(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "c.json", `{"telegram":{"token":"t"}}`)
	m := NewConfigManager(path)
	m.lookupEnv = envMap(nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load err = %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.HTTP.Port != 7000 {
				t.Fatalf("port = %d, want 7000", cfg.HTTP.Port)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// rewrite until the watcher is attached and sees it
			_ = os.WriteFile(path, []byte(`{"telegram":{"token":"t"},"http":{"port":7000}}`), 0o600)
		case <-deadline:
			t.Fatalf("no config published after write")
		}
	}
}

func TestLoadDotEnvSkipsMissing(t *testing.T) {
	t.Parallel()

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv(missing) = %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "b"},
		Scheduler: SchedulerConfig{Timezone: "UTC"},
		Reminder:  &ReminderConfig{MaxRetries: 1},
		HTTP:      HTTPConfig{Pprof: PprofConfig{Token: "secret"}},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if got := strings.Join(changed, ","); got != "http,reminder,scheduler,telegram" {
		t.Fatalf("changed = %q", got)
	}
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range attrs {
		f(ev)
	}
	ev.Msg("")
	if out := buf.String(); strings.Contains(out, `"b"`) || strings.Contains(out, "secret") {
		t.Fatalf("secret leaked in attrs: %s", out)
	}
	if got := strings.Join(RestartRequired(append(changed, "logging")), ","); got != "http,reminder,scheduler,telegram" {
		t.Fatalf("RestartRequired = %q", got)
	}

	if changed, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("empty = (%v, %v)", d, err)
	}
	if d, err := ParseDurationOrDefault("x", " 5m ", time.Minute); err != nil || d != 5*time.Minute {
		t.Fatalf("5m = (%v, %v)", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Minute); err == nil {
		t.Fatalf("negative accepted")
	}
}
