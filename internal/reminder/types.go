// Package reminder owns the reminder lifecycle: creation from free text,
// the one-shot fire, bounded retries and the terminal outcome.
//
// A reminder moves Scheduled → Firing → Delivered, or through RetryPending
// back to Scheduled on a failed attempt, until the retry budget is spent and
// it ends Failed. Terminal reminders are removed from the store at once.
package reminder

import (
	"errors"
	"fmt"
	"time"

	"remindbot/internal/transport"
)

type State int

const (
	StateScheduled State = iota
	StateFiring
	StateRetryPending
	StateDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateFiring:
		return "firing"
	case StateRetryPending:
		return "retry_pending"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == StateDelivered || s == StateFailed }

type Reminder struct {
	ID      string
	OwnerID int64
	Target  transport.ChatTarget

	// FireAt is the due time of the current attempt. OriginalAt is the
	// time the user asked for and never changes.
	FireAt     time.Time
	OriginalAt time.Time

	EventText  string
	RetryCount int
	State      State

	// JobID is the scheduler job of the current attempt.
	JobID     string
	CreatedAt time.Time
}

// Reminder ids are unique per owner and requested time, so asking twice for
// the same minute replaces the earlier reminder.
func ReminderID(ownerID int64, fireAt time.Time) string {
	return fmt.Sprintf("reminder_%d_%d", ownerID, fireAt.Unix())
}

var (
	ErrTooManyReminders = errors.New("too many pending reminders")
	ErrStoreRejected    = errors.New("reminder could not be stored")
	ErrLostTimer        = errors.New("timer lost: reminder overdue without a pending job")
	ErrHistoryDisabled  = errors.New("outcome history is not enabled")
)

// CreateRequest is one inbound message. Now is the receive time and is the
// reference for relative phrases.
type CreateRequest struct {
	OwnerID int64
	Target  transport.ChatTarget
	Text    string
	Now     time.Time
}

// dueRef travels with a scheduled job so the fire path can find the
// reminder without parsing job ids.
type dueRef struct {
	OwnerID int64
	ID      string
	Attempt int
}

// Stats are cumulative counters since process start.
type Stats struct {
	Pending   int
	Created   uint64
	Delivered uint64
	Retried   uint64
	Failed    uint64
	Misfired  uint64
}

// LifecycleEvent is the Data of every "reminder.*" bus event.
type LifecycleEvent struct {
	ID         string    `json:"id"`
	OwnerID    int64     `json:"owner_id"`
	JobID      string    `json:"job_id"`
	State      string    `json:"state"`
	RetryCount int       `json:"retry_count"`
	FireAt     time.Time `json:"fire_at"`
	Error      string    `json:"error,omitempty"`
}
