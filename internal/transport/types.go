package transport

import "context"

// ChatTarget addresses a chat (and optional forum topic) on a chat transport.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of a chat transport. The notifier mirror and the
// logx alert sink only ever send, so nothing here polls for updates.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
