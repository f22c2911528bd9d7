package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
	// Retention bounds the outcome history; 0 keeps everything.
	Retention time.Duration
}

// Outcome is the terminal result of one reminder.
type Outcome struct {
	At         time.Time
	ReminderID string
	OwnerID    int64
	ChatID     int64
	ThreadID   int
	State      string
	Attempts   int
	FireAt     time.Time
	Event      string
	Error      string
}
