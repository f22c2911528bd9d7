package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	opts  []transport.SendOptions
	fail  error
	block bool
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if f.block {
		<-ctx.Done()
		return transport.MessageRef{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return transport.MessageRef{}, f.fail
	}
	f.sent = append(f.sent, text)
	if opt != nil {
		f.opts = append(f.opts, *opt)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestSendDeliversWithParseMode(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, "notifier.")
	defer unsub()

	s := New(Config{RatePerSec: 100}, fs, logx.Nop(), bus, nil)
	if err := s.Send(context.Background(), Message{To: transport.ChatTarget{ChatID: 7}, Text: "<b>hi</b>", ParseMode: transport.ParseModeHTML}); err != nil {
		t.Fatalf("Send err = %v", err)
	}
	if fs.count() != 1 || fs.opts[0].ParseMode != transport.ParseModeHTML {
		t.Fatalf("sent = %v opts = %+v", fs.sent, fs.opts)
	}

	ev := <-events
	if ev.Type != "notifier.sent" {
		t.Fatalf("event = %q, want notifier.sent", ev.Type)
	}
	if id := ev.Data.(NotificationEvent).ID; len(id) != 36 {
		t.Fatalf("delivery id = %q, want a uuid", id)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].Text != "<b>hi</b>" {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendReportsFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("telegram: bad gateway")
	s := New(Config{RatePerSec: 100, DedupWindow: time.Minute}, &fakeSender{fail: boom}, logx.Nop(), nil, nil)

	for i := 0; i < 2; i++ {
		err := s.Send(context.Background(), Message{To: transport.ChatTarget{ChatID: 7}, Text: "hi"})
		if !errors.Is(err, boom) {
			t.Fatalf("attempt %d err = %v, want %v", i, err, boom)
		}
		if !strings.Contains(err.Error(), "delivery ") {
			t.Fatalf("err = %q, want delivery id", err)
		}
	}
}

func TestSendDedupWindow(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{RatePerSec: 100, DedupWindow: time.Minute}, fs, logx.Nop(), nil, nil)
	ctx := context.Background()

	tests := []struct {
		msg     Message
		wantErr error
	}{
		{Message{To: transport.ChatTarget{ChatID: 1}, Text: "same"}, nil},
		{Message{To: transport.ChatTarget{ChatID: 1}, Text: "same"}, ErrDuplicate},
		{Message{To: transport.ChatTarget{ChatID: 2}, Text: "same"}, nil},
		{Message{To: transport.ChatTarget{ChatID: 1, ThreadID: 3}, Text: "same"}, nil},
	}
	for i, tt := range tests {
		if err := s.Send(ctx, tt.msg); !errors.Is(err, tt.wantErr) {
			t.Fatalf("send %d err = %v, want %v", i, err, tt.wantErr)
		}
	}
	if got := fs.count(); got != 3 {
		t.Fatalf("sent = %d, want 3", got)
	}
}

func TestSendDedupKeyIsDeliveryIdentity(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{RatePerSec: 100, DedupWindow: time.Minute}, fs, logx.Nop(), nil, nil)
	ctx := context.Background()
	to := transport.ChatTarget{ChatID: -100}

	// equal text, distinct deliveries: both go out
	if err := s.Send(ctx, Message{To: to, Text: "开会", DedupKey: "job-a"}); err != nil {
		t.Fatalf("job-a err = %v", err)
	}
	if err := s.Send(ctx, Message{To: to, Text: "开会", DedupKey: "job-b"}); err != nil {
		t.Fatalf("job-b err = %v", err)
	}
	// the same delivery again is suppressed
	if err := s.Send(ctx, Message{To: to, Text: "开会", DedupKey: "job-a"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("repeat err = %v, want ErrDuplicate", err)
	}
	if got := fs.count(); got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
}

func TestSendTimeout(t *testing.T) {
	t.Parallel()

	s := New(Config{RatePerSec: 100, SendTimeout: 20 * time.Millisecond}, &fakeSender{block: true}, logx.Nop(), nil, nil)
	start := time.Now()
	err := s.Send(context.Background(), Message{To: transport.ChatTarget{ChatID: 1}, Text: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("send was not bounded by the timeout")
	}
}

func TestSendWithoutSender(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop(), nil, nil)
	if err := s.Send(context.Background(), Message{To: transport.ChatTarget{ChatID: 1}, Text: "x"}); !errors.Is(err, ErrNoSender) {
		t.Fatalf("err = %v, want ErrNoSender", err)
	}
}

func TestPruneCapsEntries(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop(), nil, nil)
	now := time.Now()
	s.dedup["expired"] = now.Add(-time.Second)
	s.dedup["a"] = now.Add(time.Minute)
	s.dedup["b"] = now.Add(2 * time.Minute)
	s.dedup["c"] = now.Add(3 * time.Minute)

	s.pruneLocked(now, 2)
	if _, ok := s.dedup["a"]; ok || len(s.dedup) != 2 {
		t.Fatalf("dedup = %v, want b and c", s.dedup)
	}
}

func TestPruneDropsExpired(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, logx.Nop(), nil, nil)
	s.dedup["old"] = time.Now().Add(-time.Minute)
	s.dedup["live"] = time.Now().Add(time.Minute)
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("Prune err = %v", err)
	}
	if _, ok := s.dedup["old"]; ok || len(s.dedup) != 1 {
		t.Fatalf("dedup = %v, want only live", s.dedup)
	}
}
