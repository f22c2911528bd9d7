package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder/timeparse"
	"remindbot/pkg/tgui"
)

// Messages are sent with HTML parse mode; user text is always escaped.

func deliveryText(r Reminder) string {
	heading := tgui.B("提醒时间到了！")
	if r.RetryCount > 0 {
		heading = tgui.B("延迟提醒")
	}
	return "⏰ " + heading.String() + "\n\n📝 " + tgui.Esc(r.EventText).String()
}

func terminalNoticeText(r Reminder) string {
	return fmt.Sprintf("❗提醒发送失败（已重试%d次）：%s", r.RetryCount, tgui.Esc(r.EventText))
}

// ConfirmationText is the reply to a successfully created reminder.
func ConfirmationText(r Reminder, loc *time.Location) string {
	return "✅ 提醒已设置！\n\n" +
		"⏰ 时间：" + tgui.Code(r.FireAt.In(loc).Format("2006-01-02 15:04")).String() + "\n" +
		"📝 事件：" + tgui.Esc(r.EventText).String()
}

// RejectionText explains a parse failure with working examples.
func RejectionText(err error) string {
	head := "❌ 无法解析时间或事件，请检查格式"
	switch {
	case err == nil:
	case errors.Is(err, timeparse.ErrEventTooLong):
		head = "❌ 事件内容过长（最多200字节），请精简后再试"
	case errors.Is(err, timeparse.ErrNotInFuture):
		head = "❌ 提醒时间已经过去，请设置一个将来的时间"
	case errors.Is(err, ErrTooManyReminders):
		return "❌ 待办提醒太多了，请等部分提醒完成后再添加"
	}
	return head + "\n\n正确格式示例：\n" +
		"• <code>明天10点 项目会议</code>\n" +
		"• <code>五小时后 睡觉</code>\n" +
		"• <code>五天后 续费提醒</code>\n" +
		"• <code>5分钟后 休息</code>\n" +
		"• <code>2025-01-15 14:30 重要会议</code>"
}

// UpcomingText renders /list. total is how many reminders the owner has
// outside the window as well.
func UpcomingText(list []Reminder, total int, window time.Duration, loc *time.Location) string {
	if total == 0 {
		return "📭 暂无待办提醒事项"
	}
	label := windowLabel(window)
	if len(list) == 0 {
		return "📭 未来" + label + "内暂无提醒事项"
	}
	var b strings.Builder
	b.WriteString("📋 " + tgui.B("未来"+label+"内的提醒：").String() + "\n\n")
	for i, r := range list {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, tgui.Code(r.FireAt.In(loc).Format("01-02 15:04")), tgui.Esc(r.EventText))
	}
	return tgui.TruncLines(strings.TrimRight(b.String(), "\n"), tgui.MaxMessageRunes, MoreNotice)
}

// MoreNotice is the footer for a list cut to fit one message.
func MoreNotice(dropped int) string { return fmt.Sprintf("…另有%d条未显示", dropped) }

// windowLabel renders d as hours and minutes, truncated to the minute.
func windowLabel(d time.Duration) string {
	h, m := int(d/time.Hour), int(d%time.Hour/time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%d小时%d分钟", h, m)
	case h > 0:
		return fmt.Sprintf("%d小时", h)
	case m > 0:
		return fmt.Sprintf("%d分钟", m)
	default:
		return fmt.Sprintf("%d秒", int(d/time.Second))
	}
}
