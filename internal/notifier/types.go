package notifier

import (
	"time"

	"remindbot/internal/transport"
)

// Message is one outbound send.
type Message struct {
	To        transport.ChatTarget
	Text      string
	ParseMode string
	// DedupKey names the delivery for duplicate suppression. Distinct
	// deliveries that may share a text (e.g. two reminders with the same
	// event) must set it; empty falls back to the text.
	DedupKey string
}

type Config struct {
	RatePerSec      int
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	HistorySize     int
}

type HistoryItem struct {
	ID     string
	At     time.Time
	ChatID int64
	Text   string
	Error  string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	ID       string    `json:"id"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
