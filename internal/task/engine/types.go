package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the task execution engine. Timers live in the scheduler;
// the engine only runs what the scheduler hands it.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout bounds Task.Run when Task.Timeout is 0.
	DefaultTimeout time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// RunState tracks whether a task name is queued or running. A task with
// SkipIfRunning is refused while its name holds the state.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

func (s *RunState) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0
}

// Task is a unit of work executed by the engine.
//
// When DueAt is set, a task that a worker picks up later than
// DueAt+Tolerance is not run; OnLate receives the lateness instead.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error

	DueAt     time.Time
	Tolerance time.Duration
	OnLate    func(late time.Duration)

	SkipIfRunning bool
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is published on the bus for task lifecycle events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Completed        uint64
	Failed           uint64
	Misfired         uint64
	DroppedQueueFull uint64

	DefaultTimeout time.Duration
	History        []HistoryItem
}
