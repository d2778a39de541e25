package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	kit "keysendnotifier/internal/transport"
)

const (
	alertQueue      = 256
	alertLimit      = 3500
	alertFieldLimit = 600
)

type alert struct {
	to   kit.ChatTarget
	text string
}

// alertSink forwards log lines at or above a level to a Telegram chat. Lines
// are dropped, never queued behind the network, when the bucket or queue is full.
type alertSink struct {
	sender kit.Sender
	queue  chan alert

	mu       sync.Mutex
	chatID   int64
	threadID int
	min      Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc
	done     chan struct{}
}

func newAlertSink(sender kit.Sender) *alertSink {
	return &alertSink{sender: sender, queue: make(chan alert, alertQueue), min: LevelWarn}
}

func (a *alertSink) setChat(chatID int64) {
	a.mu.Lock()
	a.chatID = chatID
	a.mu.Unlock()
}

// setThread ignores 0 so a later call without a thread keeps the earlier one.
func (a *alertSink) setThread(threadID int) {
	if threadID == 0 {
		return
	}
	a.mu.Lock()
	a.threadID = threadID
	a.mu.Unlock()
}

func (a *alertSink) hasChat() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chatID != 0
}

// configure applies cfg and starts the worker once. It reports false when
// there is no sender to deliver through.
func (a *alertSink) configure(cfg TelegramConfig) bool {
	if a.sender == nil {
		return false
	}
	rps := max(1, cfg.RatePerSec)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.min = parseLevel(cfg.MinLevel, LevelWarn)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		a.threadID = cfg.ThreadID
	}
	if a.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		a.done = make(chan struct{})
		go a.run(ctx, a.done)
	}
	return true
}

func (a *alertSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	opts := &kit.SendOptions{DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-a.queue:
			_, _ = a.sender.SendText(ctx, it.to, it.text, opts)
		}
	}
}

func (a *alertSink) stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (a *alertSink) Write(p []byte) (int, error) { return a.WriteLevel(LevelInfo, p) }

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	to := kit.ChatTarget{ChatID: a.chatID, ThreadID: a.threadID}
	min, lim := a.min, a.limiter
	a.mu.Unlock()

	if to.ChatID == 0 || lim == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	if text := renderAlert(p); text != "" {
		select {
		case a.queue <- alert{to: to, text: text}:
		default:
		}
	}
	return len(p), nil
}

// renderAlert turns a JSON log line into "LEVEL message" followed by one
// "key: value" line per field, in the order they were logged.
func renderAlert(p []byte) string {
	line := bytes.TrimSpace(p)
	if !gjson.ValidBytes(line) {
		return clip(string(line), alertLimit)
	}
	doc := gjson.ParseBytes(line)

	var b strings.Builder
	if lvl := doc.Get(zerolog.LevelFieldName).String(); lvl != "" {
		b.WriteString(strings.ToUpper(lvl))
		b.WriteByte(' ')
	}
	b.WriteString(doc.Get(zerolog.MessageFieldName).String())
	doc.ForEach(func(k, v gjson.Result) bool {
		switch k.String() {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
			return true
		}
		b.WriteString("\n")
		b.WriteString(k.String())
		b.WriteString(": ")
		b.WriteString(clip(v.String(), alertFieldLimit))
		return true
	})
	return clip(b.String(), alertLimit)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
