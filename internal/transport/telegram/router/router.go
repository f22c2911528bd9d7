// Package router turns inbound chat messages into command handler calls.
//
// Slash commands are matched by name or alias; anything else goes to the
// fallback handler. Handlers run on a bounded worker pool under a supervisor.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string // "" for the fallback
	Args    []string
	// Text is the message text; for commands it is what follows the command word.
	Text   string
	ReqID  string
	Logger logx.Logger

	Adapter kit.Adapter
}

// Reply sends an HTML message back to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
	return err
}

type Router struct {
	mu       sync.RWMutex
	cmds     map[string]*Command // name and aliases
	list     []Command
	fallback *Command
	owners   []int64

	log     logx.Logger
	adapter kit.Adapter
	timeout time.Duration

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

type Option func(*Router)

// WithQueueSize bounds handler jobs waiting for a worker.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.jobs = make(chan func(), n)
		}
	}
}

// WithDefaultTimeout bounds handlers that set no Timeout.
func WithDefaultTimeout(d time.Duration) Option { return func(r *Router) { r.timeout = d } }

func New(log logx.Logger, adapter kit.Adapter, owners []int64, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cmds:    map[string]*Command{},
		owners:  append([]int64(nil), owners...),
		log:     log.With(logx.String("comp", "telegram.router")),
		adapter: adapter,
		timeout: 30 * time.Second,
		jobs:    make(chan func(), 256),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Router) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...)
}

// SetCommands replaces the registry. fallback, if non-nil, receives
// non-command text. The Telegram menu is refreshed in the background.
func (m *Router) SetCommands(ctx context.Context, cmds []Command, fallback HandlerFunc) {
	byName := map[string]*Command{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		list = append(list, cc)
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := byName[sa]; !exists {
					byName[sa] = &cc
				}
			}
		}
	}
	var fb *Command
	if fallback != nil {
		fb = &Command{Handle: fallback}
	}

	m.mu.Lock()
	m.cmds = byName
	m.list = list
	m.fallback = fb
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenuCommands(list)
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// Commands returns the registered commands in registration order.
func (m *Router) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Command(nil), m.list...)
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// Dispatch routes updates until ctx ends or updates is closed.
func (m *Router) Dispatch(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.runMu.Lock()
	m.sup, m.running = sup, true
	m.runMu.Unlock()

	m.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					// middleware already recovers; keep the worker alive regardless
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		m.runMu.Lock()
		m.running = false
		close(m.jobs)
		m.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Router) route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmds, fallback := m.cmds, m.fallback
	m.mu.RUnlock()

	if !strings.HasPrefix(text, "/") {
		if fallback == nil {
			return
		}
		m.enqueue(ctx, up, *fallback, "", text, nil)
		return
	}

	word, rest := splitCommand(text)
	cmd, ok := cmds[word]
	if !ok {
		// commands addressed to another bot in a group are not ours to answer
		if msg.IsGroup {
			return
		}
		_, _ = m.adapter.SendText(ctx, chat, "❓ 未知命令，发送 /help 查看用法", nil)
		return
	}
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, m.ownersSnapshot()) {
		_, _ = m.adapter.SendText(ctx, chat, "⛔ 仅限管理员使用", nil)
		return
	}
	m.enqueue(ctx, up, *cmd, cmd.Name, rest, strings.Fields(rest))
}

func (m *Router) enqueue(ctx context.Context, up kit.Update, cmd Command, name, text string, args []string) {
	msg := up.Message
	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		Text:    text,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.timeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)

	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, req.Chat, "⏳ 系统繁忙，请稍后再试", nil)
	}
}

// splitCommand returns the bare command word ("/list@my_bot x" -> "list")
// and the remaining text.
func splitCommand(text string) (string, string) {
	word, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(word, "\n\t"); i >= 0 {
		rest = word[i+1:] + " " + rest
		word = word[:i]
	}
	word = strings.TrimPrefix(word, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), strings.TrimSpace(rest)
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
