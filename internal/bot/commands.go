// Package bot binds the reminder service to chat commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Reminders is the part of reminder.Service the commands use.
type Reminders interface {
	Create(req reminder.CreateRequest) (reminder.Reminder, error)
	Upcoming(ownerID int64, now time.Time) ([]reminder.Reminder, int)
	History(ctx context.Context, ownerID int64, limit int) ([]storage.Outcome, error)
	Stats() reminder.Stats
	Location() *time.Location
	ListWindow() time.Duration
}

// Status feeds /status. Any field may be nil.
type Status struct {
	Scheduler func() scheduler.Snapshot
	Engine    func() engine.Snapshot
	StartedAt time.Time
}

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
	historyEventRunes   = 60
)

type Commands struct {
	svc    Reminders
	status Status
	now    func() time.Time
}

func New(svc Reminders, status Status) *Commands {
	return &Commands{svc: svc, status: status, now: time.Now}
}

// Register installs the commands and the free-text handler on r.
func (c *Commands) Register(ctx context.Context, r *router.Router) {
	r.SetCommands(ctx, c.List(), c.handleText)
}

func (c *Commands) List() []router.Command {
	return []router.Command{
		{Name: "start", Description: "显示帮助信息", Handle: c.handleHelp},
		{Name: "help", Aliases: []string{"h"}, Description: "显示帮助信息", Handle: c.handleHelp},
		{Name: "list", Aliases: []string{"ls"}, Description: "查看未来24小时内的提醒", Handle: c.handleList},
		{Name: "history", Description: "查看最近的提醒结果", Handle: c.handleHistory},
		{Name: "status", Description: "运行状态", Access: router.AccessOwnerOnly, Handle: c.handleStatus},
	}
}

func (c *Commands) handleHelp(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, helpText)
}

func (c *Commands) handleList(ctx context.Context, req *router.Request) error {
	list, total := c.svc.Upcoming(req.FromID, c.now())
	return req.Reply(ctx, reminder.UpcomingText(list, total, c.svc.ListWindow(), c.svc.Location()))
}

func (c *Commands) handleHistory(ctx context.Context, req *router.Request) error {
	limit := defaultHistoryLimit
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return req.Reply(ctx, "用法：<code>/history [条数]</code>")
		}
		limit = min(n, maxHistoryLimit)
	}
	outs, err := c.svc.History(ctx, req.FromID, limit)
	if errors.Is(err, reminder.ErrHistoryDisabled) {
		return req.Reply(ctx, "ℹ️ 未启用历史记录")
	}
	if err != nil {
		_ = req.Reply(ctx, "❌ 读取历史记录失败，请稍后再试")
		return err
	}
	return req.Reply(ctx, historyText(outs, c.svc.Location()))
}

func (c *Commands) handleStatus(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, statusText(c.svc.Stats(), c.status, c.now()))
}

// receivedAt is the parse reference time: when the message reached
// Telegram, so queueing delay does not shift relative phrases.
func (c *Commands) receivedAt(req *router.Request) time.Time {
	if m := req.Update.Message; m != nil && !m.Date.IsZero() {
		return m.Date
	}
	return c.now()
}

// handleText turns any non-command message into a reminder.
func (c *Commands) handleText(ctx context.Context, req *router.Request) error {
	r, err := c.svc.Create(reminder.CreateRequest{
		OwnerID: req.FromID,
		Target:  req.Chat,
		Text:    req.Text,
		Now:     c.receivedAt(req),
	})
	if err != nil {
		req.Logger.Debug("reminder rejected", logx.Err(err))
		if errors.Is(err, reminder.ErrStoreRejected) {
			_ = req.Reply(ctx, "❌ 提醒设置失败，请稍后再试")
			return err
		}
		return req.Reply(ctx, reminder.RejectionText(err))
	}
	return req.Reply(ctx, reminder.ConfirmationText(r, c.svc.Location()))
}

const helpText = `🤖 <b>欢迎使用Telegram提醒机器人！</b>

📝 <b>使用方法：</b>
直接发送「时间 + 事件」消息，我会在指定时间提醒你！

⏰ <b>支持的时间格式：</b>
• 绝对时间：<code>2025-01-15 14:30</code> 或 <code>14:30</code>
• 相对时间：<code>1小时后</code> <code>明天上午9点</code> <code>下周一15:00</code>
• 天级提醒：<code>五天后</code> <code>3天后</code>
• 小时级提醒：<code>五小时后</code> <code>2小时后</code>
• 分钟级提醒：<code>5分钟后</code> <code>十分钟后</code> <code>30分钟后</code>
• English: <code>in 2 hours</code> <code>tomorrow at 3pm</code>

📋 <b>可用命令：</b>
• /start - 显示帮助信息
• /list - 查看未来24小时内的提醒
• /history - 查看最近的提醒结果

💡 <b>示例：</b>
• <code>明天10点 项目会议</code>
• <code>五小时后 睡觉</code>
• <code>五天后 续费提醒</code>
• <code>5分钟后 洗澡</code>
• <code>十分钟后 休息一下</code>
• <code>2025-01-15 14:30 重要会议</code>`

func historyText(outs []storage.Outcome, loc *time.Location) string {
	if len(outs) == 0 {
		return "📭 暂无提醒记录"
	}
	var b strings.Builder
	b.WriteString("🗂 <b>最近的提醒：</b>\n\n")
	for i, o := range outs {
		mark := "✅"
		if o.State != reminder.StateDelivered.String() {
			mark = "❗"
		}
		row := tgui.JoinH(" ",
			tgui.Esc(fmt.Sprintf("%d.", i+1)),
			tgui.Esc(mark),
			tgui.Code(o.FireAt.In(loc).Format("01-02 15:04")),
			tgui.Esc("-"),
			tgui.Esc(tgui.TruncRunes(o.Event, historyEventRunes)),
		)
		if o.Attempts > 1 {
			row += tgui.I(fmt.Sprintf("（第%d次）", o.Attempts))
		}
		b.WriteString(row.String() + "\n")
	}
	return tgui.TruncLines(strings.TrimRight(b.String(), "\n"), tgui.MaxMessageRunes, reminder.MoreNotice)
}

func statusText(st reminder.Stats, src Status, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 <b>运行状态</b>\n\n")
	if !src.StartedAt.IsZero() {
		fmt.Fprintf(&b, "运行时间：%s\n", now.Sub(src.StartedAt).Truncate(time.Second))
	}
	fmt.Fprintf(&b, "待发送：%d\n已创建：%d\n已送达：%d\n重试：%d\n失败：%d\n误点：%d\n",
		st.Pending, st.Created, st.Delivered, st.Retried, st.Failed, st.Misfired)
	if src.Scheduler != nil {
		s := src.Scheduler()
		fmt.Fprintf(&b, "\n⏱ 调度器：%s，时区 %s，定时器 %d", onOff(s.Running), tgui.Esc(s.Timezone), s.PendingOnce)
		if !s.NextOnce.IsZero() {
			fmt.Fprintf(&b, "，下次 <code>%s</code>", s.NextOnce.Format("01-02 15:04:05"))
		}
		b.WriteByte('\n')
	}
	if src.Engine != nil {
		e := src.Engine()
		fmt.Fprintf(&b, "⚙️ 执行器：%s，队列 %d/%d，执行中 %d，完成 %d，失败 %d\n",
			onOff(e.Running), e.QueueLen, e.QueueCap, e.InFlight, e.Completed, e.Failed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func onOff(b bool) string {
	if b {
		return "运行中"
	}
	return "已停止"
}
