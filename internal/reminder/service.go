package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder/timeparse"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Notifier delivers text to a chat. Any error counts as a failed attempt;
// the reason is logged but never changes the retry policy.
type Notifier interface {
	Send(ctx context.Context, msg notifier.Message) error
}

// Scheduler is the part of the scheduler service the reminder lifecycle
// drives.
type Scheduler interface {
	Handle(h scheduler.Handler, f scheduler.FaultHandler)
	ScheduleOnce(jobID string, fireAt time.Time, opt scheduler.OnceOptions) error
	Cancel(jobID string) bool
	Pending(jobID string) bool
	AddInterval(name string, every, timeout time.Duration, job func(ctx context.Context) error) error
}

// OutcomeLog records terminal outcomes. It is optional.
type OutcomeLog interface {
	AppendOutcome(ctx context.Context, o storage.Outcome) error
	RecentOutcomes(ctx context.Context, ownerID int64, limit int) ([]storage.Outcome, error)
}

type Config struct {
	Retry RetryPolicy
	// SendTimeout bounds one delivery attempt.
	SendTimeout time.Duration
	// MisfireTolerance overrides the scheduler default when > 0.
	MisfireTolerance time.Duration
	ListWindow       time.Duration
	// MaxPerOwner caps pending reminders per owner; 0 means no cap.
	MaxPerOwner int
	// ReconcileEvery is the period of the sweep that catches reminders
	// whose timer was lost. 0 disables it.
	ReconcileEvery time.Duration
	OverdueGrace   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	c.Retry = c.Retry.withDefaults()
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.ListWindow <= 0 {
		c.ListWindow = 24 * time.Hour
	}
	if c.OverdueGrace <= 0 {
		c.OverdueGrace = 2 * time.Minute
	}
	return c
}

type Service struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	parser *timeparse.Parser
	store  *Store
	sch    Scheduler
	notify Notifier
	out    OutcomeLog
	loc    *time.Location

	now func() time.Time

	created   atomic.Uint64
	delivered atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
	misfired  atomic.Uint64
}

type Option func(*Service)

// WithOutcomeLog records delivered and failed reminders for /history.
func WithOutcomeLog(o OutcomeLog) Option { return func(s *Service) { s.out = o } }

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires the service and registers it as the scheduler's one-shot
// handler.
func New(cfg Config, parser *timeparse.Parser, store *Store, sch Scheduler, n Notifier, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if parser == nil {
		parser = timeparse.New()
	}
	if store == nil {
		store = NewStore()
	}
	s := &Service{
		cfg:    cfg.withDefaults(),
		log:    log.With(logx.String("comp", "reminder")),
		parser: parser,
		store:  store,
		sch:    sch,
		notify: n,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	sch.Handle(s.handleDue, s.handleFault)
	return s
}

// Start registers the reconcile sweep.
func (s *Service) Start() error {
	if s.cfg.ReconcileEvery <= 0 {
		return nil
	}
	return s.sch.AddInterval("reminder.reconcile", s.cfg.ReconcileEvery, 10*time.Second, s.Reconcile)
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) ListWindow() time.Duration { return s.cfg.ListWindow }

// Create parses req.Text against req.Now and schedules the reminder. A
// parse rejection is returned as one of the timeparse errors.
func (s *Service) Create(req CreateRequest) (Reminder, error) {
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	m, err := s.parser.Explain(req.Text, now.In(s.loc))
	if err != nil {
		return Reminder{}, err
	}

	if s.cfg.MaxPerOwner > 0 && s.store.Count(req.OwnerID) >= s.cfg.MaxPerOwner {
		id := ReminderID(req.OwnerID, m.FireAt)
		if _, exists := s.store.Get(req.OwnerID, id); !exists {
			return Reminder{}, ErrTooManyReminders
		}
	}

	r := Reminder{
		ID:         ReminderID(req.OwnerID, m.FireAt),
		OwnerID:    req.OwnerID,
		Target:     req.Target,
		FireAt:     m.FireAt,
		OriginalAt: m.FireAt,
		EventText:  m.EventText,
		State:      StateScheduled,
		CreatedAt:  now,
	}
	r.JobID = r.ID

	if prev, replaced := s.store.Insert(r); replaced && prev.JobID != r.JobID {
		s.sch.Cancel(prev.JobID)
	}
	if err := s.schedule(r); err != nil {
		s.store.Remove(r.OwnerID, r.ID)
		return Reminder{}, fmt.Errorf("%w: %v", ErrStoreRejected, err)
	}

	s.created.Add(1)
	s.log.Info("reminder scheduled",
		logx.String("id", r.ID),
		logx.Int64("owner", r.OwnerID),
		logx.Time("fire_at", r.FireAt),
		logx.String("tier", m.Tier.String()),
	)
	s.publish("reminder.scheduled", r, nil)
	return r, nil
}

// Upcoming lists the owner's reminders due within the list window from now,
// plus the owner's total so callers can tell "none at all" from "none soon".
func (s *Service) Upcoming(ownerID int64, now time.Time) (list []Reminder, total int) {
	return s.store.ListInRange(ownerID, now, now.Add(s.cfg.ListWindow)), s.store.Count(ownerID)
}

// History returns the owner's most recent terminal outcomes.
func (s *Service) History(ctx context.Context, ownerID int64, limit int) ([]storage.Outcome, error) {
	if s.out == nil {
		return nil, ErrHistoryDisabled
	}
	return s.out.RecentOutcomes(ctx, ownerID, limit)
}

func (s *Service) Stats() Stats {
	return Stats{
		Pending:   s.store.Len(),
		Created:   s.created.Load(),
		Delivered: s.delivered.Load(),
		Retried:   s.retried.Load(),
		Failed:    s.failed.Load(),
		Misfired:  s.misfired.Load(),
	}
}

func (s *Service) schedule(r Reminder) error {
	return s.sch.ScheduleOnce(r.JobID, r.FireAt, scheduler.OnceOptions{
		Tolerance: s.cfg.MisfireTolerance,
		Timeout:   s.cfg.SendTimeout,
		Payload:   dueRef{OwnerID: r.OwnerID, ID: r.ID, Attempt: r.RetryCount},
	})
}

// claim moves the reminder behind d from Scheduled to Firing. Only the job
// of the current attempt can claim it, which makes stale and duplicate
// fires no-ops.
func (s *Service) claim(d scheduler.Due) (Reminder, bool) {
	ref, ok := d.Payload.(dueRef)
	if !ok {
		s.log.Error("due job without reminder payload", logx.String("job_id", d.JobID))
		return Reminder{}, false
	}
	return s.store.Update(ref.OwnerID, ref.ID, func(r *Reminder) bool {
		if r.JobID != d.JobID || r.State != StateScheduled {
			return false
		}
		r.State = StateFiring
		return true
	})
}

func (s *Service) handleDue(ctx context.Context, d scheduler.Due) error {
	r, ok := s.claim(d)
	if !ok {
		s.log.Debug("stale fire ignored", logx.String("job_id", d.JobID))
		return nil
	}

	// Keyed by job id: two reminders with the same text in one chat are
	// separate deliveries, a repeated run of one attempt is not.
	err := s.notify.Send(ctx, notifier.Message{
		To:        r.Target,
		Text:      deliveryText(r),
		ParseMode: transport.ParseModeHTML,
		DedupKey:  r.JobID,
	})
	if errors.Is(err, notifier.ErrDuplicate) {
		// this job id was already sent, e.g. before a restart
		s.log.Info("delivery already sent", logx.String("id", r.ID), logx.String("job_id", r.JobID))
		err = nil
	}
	if err == nil {
		s.finish(r, StateDelivered, nil)
		return nil
	}
	s.log.Warn("delivery failed",
		logx.String("id", r.ID),
		logx.String("job_id", r.JobID),
		logx.Int("retry_count", r.RetryCount),
		logx.Err(err),
	)
	s.failAttempt(r, err)
	return err
}

// handleFault turns a job the scheduler could not run into a failed
// attempt, so a misfire or a full queue never drops a reminder silently.
func (s *Service) handleFault(d scheduler.Due, cause error) {
	r, ok := s.claim(d)
	if !ok {
		return
	}
	var me *scheduler.MisfireError
	if errors.As(cause, &me) {
		s.misfired.Add(1)
	}
	s.log.Warn("attempt not run",
		logx.String("id", r.ID),
		logx.String("job_id", r.JobID),
		logx.Int("retry_count", r.RetryCount),
		logx.Err(cause),
	)
	s.failAttempt(r, cause)
}

// failAttempt applies the retry policy to a claimed reminder.
func (s *Service) failAttempt(r Reminder, cause error) {
	dec := s.cfg.Retry.decide(r, s.now())
	if !dec.retry {
		s.finish(r, StateFailed, cause)
		return
	}

	next, ok := s.store.Update(r.OwnerID, r.ID, func(x *Reminder) bool {
		if x.JobID != r.JobID || x.State != StateFiring {
			return false
		}
		x.State = StateRetryPending
		x.RetryCount = dec.retryCount
		x.JobID = dec.jobID
		x.FireAt = dec.fireAt
		return true
	})
	if !ok {
		return
	}
	s.retried.Add(1)
	s.publish("reminder.retry", next, cause)

	if err := s.schedule(next); err != nil {
		s.log.Error("retry schedule failed", logx.String("id", next.ID), logx.String("job_id", next.JobID), logx.Err(err))
		next.State = StateFiring
		s.finish(next, StateFailed, err)
		return
	}
	s.store.Update(next.OwnerID, next.ID, func(x *Reminder) bool {
		if x.JobID != next.JobID || x.State != StateRetryPending {
			return false
		}
		x.State = StateScheduled
		return true
	})
	s.log.Info("retry scheduled",
		logx.String("id", next.ID),
		logx.String("job_id", next.JobID),
		logx.Int("retry_count", next.RetryCount),
		logx.Time("fire_at", next.FireAt),
	)
}

// finish records a terminal state and drops the reminder from the store.
// The terminal-failure notice is best effort: its own failure is logged and
// never retried.
func (s *Service) finish(r Reminder, st State, cause error) {
	if !s.store.Remove(r.OwnerID, r.ID) {
		return
	}
	r.State = st

	switch st {
	case StateDelivered:
		s.delivered.Add(1)
		s.log.Info("reminder delivered", logx.String("id", r.ID), logx.Int("retry_count", r.RetryCount))
	case StateFailed:
		s.failed.Add(1)
		s.log.Error("reminder failed", logx.String("id", r.ID), logx.Int("retry_count", r.RetryCount), logx.Err(cause))
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
		err := s.notify.Send(ctx, notifier.Message{
			To:        transport.ChatTarget{ChatID: r.OwnerID},
			Text:      terminalNoticeText(r),
			ParseMode: transport.ParseModeHTML,
			DedupKey:  r.ID + "_failed",
		})
		cancel()
		if err != nil {
			s.log.Warn("terminal notice failed", logx.String("id", r.ID), logx.Err(err))
		}
	}

	s.publish("reminder."+st.String(), r, cause)
	s.recordOutcome(r, cause)
}

func (s *Service) recordOutcome(r Reminder, cause error) {
	if s.out == nil {
		return
	}
	o := storage.Outcome{
		At:         s.now(),
		ReminderID: r.ID,
		OwnerID:    r.OwnerID,
		ChatID:     r.Target.ChatID,
		ThreadID:   r.Target.ThreadID,
		State:      r.State.String(),
		Attempts:   r.RetryCount + 1,
		FireAt:     r.OriginalAt,
		Event:      r.EventText,
	}
	if cause != nil {
		o.Error = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.out.AppendOutcome(ctx, o); err != nil {
		s.log.Warn("outcome log append failed", logx.String("id", r.ID), logx.Err(err))
	}
}

// Reconcile fails the current attempt of every reminder that is overdue
// while no timer is pending for it. It runs as a recurring housekeeping job.
func (s *Service) Reconcile(ctx context.Context) error {
	for _, r := range s.store.Overdue(s.now(), s.cfg.OverdueGrace) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.sch.Pending(r.JobID) {
			continue
		}
		s.handleFault(scheduler.Due{
			JobID:   r.JobID,
			FireAt:  r.FireAt,
			Payload: dueRef{OwnerID: r.OwnerID, ID: r.ID, Attempt: r.RetryCount},
		}, ErrLostTimer)
	}
	return nil
}

func (s *Service) publish(typ string, r Reminder, cause error) {
	if s.bus == nil {
		return
	}
	ev := LifecycleEvent{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		JobID:      r.JobID,
		State:      r.State.String(),
		RetryCount: r.RetryCount,
		FireAt:     r.FireAt,
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
