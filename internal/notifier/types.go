package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sink delivers a single text notification.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Named is implemented by sinks that want a stable name in logs and events.
type Named interface {
	Name() string
}

type Config struct {
	// RatePerSec paces primary sends. Zero disables pacing.
	RatePerSec int
	// HistorySize caps the in-memory history. Defaults to 100.
	HistorySize int
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// Counters are best-effort delivery totals.
type Counters struct {
	Sent         uint64 `json:"sent"`
	Failed       uint64 `json:"failed"`
	MirrorFailed uint64 `json:"mirror_failed"`
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	Sink  string    `json:"sink"`
	At    time.Time `json:"at"`
	Bytes int       `json:"bytes"`
	Error string    `json:"error,omitempty"`
}

var ErrDispatch = errors.New("notification dispatch failed")

// DispatchError reports a failed delivery through the primary sink.
type DispatchError struct {
	Sink string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%v via %s: %v", ErrDispatch, e.Sink, e.Err)
}

func (e *DispatchError) Unwrap() []error { return []error{ErrDispatch, e.Err} }
