package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine Enqueuer

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	handler Handler
	onFault FaultHandler

	enqMu        sync.Mutex
	lastEnqWarn  map[string]time.Time
	enqueueFails uint64

	// one-shot definitions outlive Stop; timers exist only while running
	tmu     sync.Mutex
	running bool
	once    map[string]*onceDef
	verSeq  uint64
}

func New(cfg Config, eng Enqueuer, log logx.Logger, bus eventbus.Bus) *Service {
	s := &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		bus:    bus,
		engine: eng,
		// SecondOptional accepts both 5-field and 6-field cron specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastEnqWarn: map[string]time.Time{},
		once:        map[string]*onceDef{},
	}
	s.loc = s.loadLocation()
	return s
}

// Handle registers the one-shot job handler and the fault handler. It must
// be called before the first job fires.
func (s *Service) Handle(h Handler, f FaultHandler) {
	s.mu.Lock()
	s.handler = h
	s.onFault = f
	s.mu.Unlock()
}

// Location is the timezone used for cron specs and for user-facing times.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if !tzChanged {
		return
	}
	s.loc = s.loadLocation()
	if s.c != nil {
		s.restartCronLocked()
	}
}

// Start starts cron triggering and arms timers for one-shot jobs scheduled
// while stopped.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	loc, schedules := s.loc, len(s.defs)
	s.mu.Unlock()

	s.tmu.Lock()
	s.running = true
	for id, d := range s.once {
		s.armLocked(id, d)
	}
	pending := len(s.once)
	s.tmu.Unlock()

	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", schedules), logx.Int("pending_once", pending))
}

// Stop stops cron and disarms one-shot timers. Definitions are kept and
// re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	s.running = false
	for _, d := range s.once {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
	s.tmu.Unlock()

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:          s.c != nil,
		Timezone:         s.loc.String(),
		MisfireTolerance: s.tolerance(0),
	}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	snap.PendingOnce = len(s.once)
	for _, d := range s.once {
		if snap.NextOnce.IsZero() || d.fireAt.Before(snap.NextOnce) {
			snap.NextOnce = d.fireAt
		}
	}
	s.tmu.Unlock()

	snap.EnqueueFailures = atomic.LoadUint64(&s.enqueueFails)
	return snap
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// tolerance resolves a per-job tolerance. Call with s.mu held or on a
// copied config.
func (s *Service) tolerance(perJob time.Duration) time.Duration {
	if perJob > 0 {
		return perJob
	}
	if s.cfg.MisfireTolerance > 0 {
		return s.cfg.MisfireTolerance
	}
	return DefaultMisfireTolerance
}
