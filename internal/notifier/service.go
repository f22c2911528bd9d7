package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var (
	ErrNoSender  = errors.New("notifier: no sender")
	ErrDuplicate = errors.New("notifier: duplicate suppressed")
)

// Sender is the outbound half of a transport adapter.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Service is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	sender  Sender
	bus     eventbus.Bus
	store   storage.Store
	cfg     Config
	limiter *rate.Limiter

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		store:  store,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers msg and reports the outcome. A duplicate of a message
// already sent inside the dedup window is not sent and returns ErrDuplicate.
func (s *Service) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	if sender == nil {
		return ErrNoSender
	}
	if ctx == nil {
		ctx = context.Background()
	}
	to, text := msg.To, msg.Text

	key := dedupKey(msg)
	if cfg.DedupWindow > 0 && !s.dedupAllow(ctx, key, cfg) {
		s.publish("notifier.deduped", NotificationEvent{ChatID: to.ChatID, ThreadID: to.ThreadID, Key: key})
		s.log.Debug("duplicate suppressed", logx.Int64("chat_id", to.ChatID), logx.String("key", key))
		return ErrDuplicate
	}

	if err := lim.Wait(ctx); err != nil {
		s.forget(key)
		return fmt.Errorf("notifier: rate limit: %w", err)
	}

	id := uuid.NewString()
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	_, err := sender.SendText(callCtx, to, text, &transport.SendOptions{ParseMode: msg.ParseMode, DisablePreview: true})
	cancel()

	ev := NotificationEvent{ID: id, ChatID: to.ChatID, ThreadID: to.ThreadID, Key: key}
	if err != nil {
		s.forget(key)
		ev.Error = err.Error()
		s.appendHistory(HistoryItem{ID: id, At: time.Now(), ChatID: to.ChatID, Text: text, Error: err.Error()}, cfg.HistorySize)
		s.publish("notifier.failed", ev)
		s.log.Debug("send failed", logx.String("delivery_id", id), logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return fmt.Errorf("notifier: delivery %s: %w", id, err)
	}

	s.appendHistory(HistoryItem{ID: id, At: time.Now(), ChatID: to.ChatID, Text: text}, cfg.HistorySize)
	s.publish("notifier.sent", ev)
	if cfg.DedupWindow > 0 && cfg.PersistDedup && s.store != nil {
		pctx, pcancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if perr := s.store.PutDedup(pctx, key, time.Now().Add(cfg.DedupWindow)); perr != nil {
			s.log.Debug("dedup persist failed", logx.Err(perr))
		}
		pcancel()
	}
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	ev.At = time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// dedupKey is the delivery identity: the explicit DedupKey when set,
// otherwise the message text. Both are scoped to the target chat.
func dedupKey(msg Message) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d:%d|", msg.To.ChatID, msg.To.ThreadID)
	if msg.DedupKey != "" {
		_, _ = h.Write([]byte("key|" + msg.DedupKey))
	} else {
		_, _ = h.Write([]byte("text|" + msg.Text))
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow claims key for the window. A failed send releases the claim
// through forget so the caller's retry is not suppressed.
func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config) bool {
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(cfg.DedupWindow)
	s.pruneLocked(now, cfg.DedupMaxEntries)
	return true
}

func (s *Service) pruneLocked(now time.Time, maxEntries int) {
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Remove entries with earliest expiry until within cap.
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
}

// Prune drops expired dedup entries. Run periodically by housekeeping.
func (s *Service) Prune(ctx context.Context) error {
	s.mu.Lock()
	max := s.cfg.DedupMaxEntries
	s.mu.Unlock()

	s.dmu.Lock()
	before := len(s.dedup)
	s.pruneLocked(time.Now(), max)
	removed := before - len(s.dedup)
	s.dmu.Unlock()

	if removed > 0 {
		s.log.Debug("dedup pruned", logx.Int("removed", removed))
	}
	return nil
}

func (s *Service) forget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}
