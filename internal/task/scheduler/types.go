package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/task/engine"
)

// DefaultMisfireTolerance is used when neither Config nor OnceOptions set one.
const DefaultMisfireTolerance = 10 * time.Second

var (
	ErrNoHandler    = errors.New("scheduler: no handler registered")
	ErrInvalidJobID = errors.New("scheduler: job id required")
	ErrInvalidTime  = errors.New("scheduler: fire time required")
)

type Config struct {
	Timezone         string // IANA name, e.g. "Asia/Shanghai"
	MisfireTolerance time.Duration
}

// Due describes a one-shot job at the moment it fires.
type Due struct {
	JobID   string
	FireAt  time.Time
	Payload any
}

// Handler runs a due one-shot job. ctx carries the engine's run timeout.
type Handler func(ctx context.Context, d Due) error

// FaultHandler receives one-shot jobs that could not run: a *MisfireError
// when the job started too late, or the engine's enqueue error.
type FaultHandler func(d Due, err error)

// MisfireError reports a job that was picked up after FireAt+Tolerance.
type MisfireError struct {
	Late      time.Duration
	Tolerance time.Duration
}

func (e *MisfireError) Error() string {
	return fmt.Sprintf("misfire: started %s late (tolerance %s)", e.Late, e.Tolerance)
}

// OnceOptions tunes a single one-shot job.
type OnceOptions struct {
	Tolerance time.Duration // 0 means Config.MisfireTolerance
	Timeout   time.Duration // 0 means the engine default
	Payload   any
}

// Enqueuer is the part of the task engine the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type onceDef struct {
	fireAt time.Time
	opt    OnceOptions
	ver    uint64
	timer  *time.Timer
}

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running          bool
	Timezone         string
	MisfireTolerance time.Duration
	PendingOnce      int
	NextOnce         time.Time
	Schedules        []ScheduleInfo
	EnqueueFailures  uint64
}
