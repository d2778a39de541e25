package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "keysendnotifier/internal/transport"
	logx "keysendnotifier/pkg/logx"
)

type Config struct {
	Token string
}

// Adapter is a send-only Telegram transport. It never starts the long poller:
// the bot only mirrors notifications and forwards alert logs.
type Adapter struct {
	log logx.Logger
	bot botAPI

	sent   atomic.Uint64
	failed atomic.Uint64
}

// botAPI is the subset of *tele.Bot used by the adapter.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: strings.TrimSpace(cfg.Token)})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	return &Adapter{log: log, bot: b}, nil
}

// Counters returns the number of chunks sent and failed since start.
func (a *Adapter) Counters() (sent, failed uint64) {
	return a.sent.Load(), a.failed.Load()
}

// textLimit stays under Telegram's 4096 character cap.
const textLimit = 4000

// chunkText cuts s into pieces of at most limit runes. A piece ends after the
// last newline in its window unless that would leave it under a third full.
func chunkText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	for s != "" {
		cut := runeOffset(s, limit)
		if cut < len(s) {
			if nl := strings.LastIndexByte(s[:cut], '\n'); nl >= 0 && utf8.RuneCountInString(s[:nl]) >= limit/3 {
				cut = nl + 1
			}
		}
		out = append(out, strings.TrimRight(s[:cut], "\n"))
		s = strings.TrimLeft(s[cut:], "\n")
	}
	return out
}

// runeOffset returns the byte offset just past the first n runes of s.
func runeOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}

// SendText delivers text in as many messages as needed and returns a
// reference to the first one.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
	}
	chat := &tele.Chat{ID: to.ChatID}
	chunks := chunkText(text, textLimit)

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			a.failed.Add(1)
			a.log.Debug("telegram send failed", logx.Int64("chat_id", to.ChatID), logx.Int("chunk", i+1), logx.Int("chunks", len(chunks)), logx.Err(err))
			return first, fmt.Errorf("telegram send %d/%d: %w", i+1, len(chunks), err)
		}
		a.sent.Add(1)
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}
