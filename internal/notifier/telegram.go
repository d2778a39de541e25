package notifier

import (
	"context"
	"errors"

	kit "keysendnotifier/internal/transport"
)

// ChatSink mirrors notifications into a chat through a transport sender.
type ChatSink struct {
	sender kit.Sender
	target kit.ChatTarget
	opts   *kit.SendOptions
}

func NewChatSink(sender kit.Sender, target kit.ChatTarget) *ChatSink {
	return &ChatSink{
		sender: sender,
		target: target,
		// Sent as plain text: "**bold**" is not valid Telegram markdown.
		opts: &kit.SendOptions{DisablePreview: true},
	}
}

func (c *ChatSink) Name() string { return "telegram" }

func (c *ChatSink) Send(ctx context.Context, text string) error {
	if c.sender == nil {
		return errors.New("chat sink: no sender")
	}
	_, err := c.sender.SendText(ctx, c.target, text, c.opts)
	return err
}
