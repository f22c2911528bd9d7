package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvToken    = "TELEGRAM_BOT_TOKEN"
	EnvPort     = "PORT"
	EnvTimezone = "BOT_TIMEZONE"
)

// DefaultPort is the health listener port when neither PORT nor http.port is set.
const DefaultPort = 8080

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	if v, ok := lookup(EnvToken); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPort); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.HTTP.Port = n
		}
	}
	if v, ok := lookup(EnvTimezone); ok && strings.TrimSpace(v) != "" {
		cfg.Scheduler.Timezone = strings.TrimSpace(v)
	}
}
