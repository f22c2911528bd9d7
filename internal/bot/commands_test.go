package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/reminder/timeparse"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
)

var cst = time.FixedZone("CST", 8*3600)

type fakeReminders struct {
	created   []reminder.CreateRequest
	createErr error
	upcoming  []reminder.Reminder
	total     int
	history   []storage.Outcome
	histErr   error
	histLimit int
}

func (f *fakeReminders) Create(req reminder.CreateRequest) (reminder.Reminder, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return reminder.Reminder{}, f.createErr
	}
	return reminder.Reminder{FireAt: time.Date(2025, 1, 15, 10, 0, 0, 0, cst), EventText: "项目会议"}, nil
}

func (f *fakeReminders) Upcoming(ownerID int64, now time.Time) ([]reminder.Reminder, int) {
	return f.upcoming, f.total
}

func (f *fakeReminders) History(ctx context.Context, ownerID int64, limit int) ([]storage.Outcome, error) {
	f.histLimit = limit
	return f.history, f.histErr
}

func (f *fakeReminders) Stats() reminder.Stats { return reminder.Stats{Pending: 2, Delivered: 5} }
func (f *fakeReminders) Location() *time.Location { return cst }
func (f *fakeReminders) ListWindow() time.Duration { return 24 * time.Hour }

type replies struct{ texts []string }

func (r *replies) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (r *replies) Stop(ctx context.Context) error { return nil }
func (r *replies) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil || opt.ParseMode != kit.ParseModeHTML {
		return kit.MessageRef{}, errors.New("want HTML parse mode")
	}
	r.texts = append(r.texts, text)
	return kit.MessageRef{}, nil
}

func request(ad kit.Adapter, text string, args ...string) *router.Request {
	return &router.Request{Chat: kit.ChatTarget{ChatID: 9}, FromID: 42, Text: text, Args: args, Adapter: ad}
}

func TestFreeTextCreatesReminder(t *testing.T) {
	t.Parallel()

	f := &fakeReminders{}
	ad := &replies{}
	c := New(f, Status{})
	if err := c.handleText(context.Background(), request(ad, "明天10点 项目会议")); err != nil {
		t.Fatalf("handleText err = %v", err)
	}
	if len(f.created) != 1 || f.created[0].OwnerID != 42 || f.created[0].Target.ChatID != 9 || f.created[0].Now.IsZero() {
		t.Fatalf("created = %+v", f.created)
	}
	if len(ad.texts) != 1 || !strings.Contains(ad.texts[0], "2025-01-15 10:00") {
		t.Fatalf("reply = %q", ad.texts)
	}
}

func TestFreeTextParsesAtReceiveTime(t *testing.T) {
	t.Parallel()

	received := time.Date(2025, 1, 14, 8, 0, 0, 0, cst)
	handled := received.Add(10 * time.Minute)

	tests := []struct {
		name string
		date time.Time
		want time.Time
	}{
		{"message date", received, received},
		{"no date", time.Time{}, handled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeReminders{}
			c := New(f, Status{})
			c.now = func() time.Time { return handled }

			req := request(&replies{}, "1小时后 开会")
			req.Update = kit.Update{Message: &kit.Message{ChatID: 9, FromID: 42, Text: req.Text, Date: tt.date}}
			if err := c.handleText(context.Background(), req); err != nil {
				t.Fatalf("handleText err = %v", err)
			}
			if len(f.created) != 1 || !f.created[0].Now.Equal(tt.want) {
				t.Fatalf("CreateRequest.Now = %v, want %v", f.created, tt.want)
			}
		})
	}
}

func TestFreeTextRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		want    string
		wantErr bool
	}{
		{timeparse.ErrNoTimeExpression, "无法解析", false},
		{timeparse.ErrNotInFuture, "已经过去", false},
		{reminder.ErrTooManyReminders, "太多", false},
		{reminder.ErrStoreRejected, "设置失败", true},
	}
	for _, tt := range tests {
		ad := &replies{}
		c := New(&fakeReminders{createErr: tt.err}, Status{})
		err := c.handleText(context.Background(), request(ad, "whatever"))
		if (err != nil) != tt.wantErr {
			t.Fatalf("%v: err = %v, wantErr %v", tt.err, err, tt.wantErr)
		}
		if len(ad.texts) != 1 || !strings.Contains(ad.texts[0], tt.want) {
			t.Fatalf("%v: reply = %q, want %q", tt.err, ad.texts, tt.want)
		}
	}
}

func TestListUsesUpcomingText(t *testing.T) {
	t.Parallel()

	ad := &replies{}
	c := New(&fakeReminders{total: 1}, Status{})
	_ = c.handleList(context.Background(), request(ad, ""))
	if ad.texts[0] != "📭 未来24小时内暂无提醒事项" {
		t.Fatalf("reply = %q", ad.texts[0])
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC)
	f := &fakeReminders{history: []storage.Outcome{
		{State: "delivered", FireAt: at, Event: "a<b", Attempts: 1},
		{State: "failed", FireAt: at, Event: "x", Attempts: 3},
	}}
	ad := &replies{}
	c := New(f, Status{})

	_ = c.handleHistory(context.Background(), request(ad, "", "500"))
	if f.histLimit != maxHistoryLimit {
		t.Fatalf("limit = %d, want %d", f.histLimit, maxHistoryLimit)
	}
	got := ad.texts[0]
	if !strings.Contains(got, "1. ✅ <code>01-15 10:00</code> - a&lt;b") || !strings.Contains(got, "2. ❗") || !strings.Contains(got, "第3次") {
		t.Fatalf("history = %q", got)
	}

	_ = c.handleHistory(context.Background(), request(ad, "", "abc"))
	if !strings.Contains(ad.texts[1], "用法") {
		t.Fatalf("bad arg reply = %q", ad.texts[1])
	}

	f.histErr = reminder.ErrHistoryDisabled
	_ = c.handleHistory(context.Background(), request(ad, ""))
	if !strings.Contains(ad.texts[2], "未启用") || f.histLimit != defaultHistoryLimit {
		t.Fatalf("disabled reply = %q limit %d", ad.texts[2], f.histLimit)
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 15, 10, 0, 0, 0, cst)
	got := statusText(reminder.Stats{Pending: 2, Delivered: 5}, Status{
		StartedAt: now.Add(-90 * time.Second),
		Scheduler: func() scheduler.Snapshot { return scheduler.Snapshot{Running: true, Timezone: "Asia/Shanghai", PendingOnce: 2} },
		Engine:    func() engine.Snapshot { return engine.Snapshot{Running: true, QueueCap: 256} },
	}, now)
	for _, want := range []string{"运行时间：1m30s", "待发送：2", "已送达：5", "Asia/Shanghai", "队列 0/256"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status missing %q in %q", want, got)
		}
	}
}

func TestCommandList(t *testing.T) {
	t.Parallel()

	cmds := New(&fakeReminders{}, Status{}).List()
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
		if c.Name == "status" && c.Access != router.AccessOwnerOnly {
			t.Fatalf("/status must be owner-only")
		}
	}
	if got := strings.Join(names, ","); got != "start,help,list,history,status" {
		t.Fatalf("commands = %s", got)
	}
}
