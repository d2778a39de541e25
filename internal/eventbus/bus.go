// Package eventbus fans pipeline and notifier outcomes out to in-process
// subscribers. Publishing never blocks: a subscriber whose buffer is full
// misses the event and the miss is counted.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	TypeDispatched    = "pipeline.dispatched"
	TypeDropped       = "pipeline.dropped"
	TypeDispatchError = "pipeline.failed"
	TypeAliasFallback = "pipeline.alias_fallback"
	TypeTerminated    = "pipeline.terminated"

	TypeSent       = "notifier.sent"
	TypeSendFailed = "notifier.failed"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	// Subscribe receives every event, or only the listed types.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

type subscriber struct {
	ch    chan Event
	types map[string]bool
}

func (s *subscriber) wants(typ string) bool { return len(s.types) == 0 || s.types[typ] }

// Memory is the in-process Bus. It owns no goroutines.
type Memory struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64

	missed atomic.Uint64
}

func New() *Memory { return &Memory{subs: make(map[uint64]*subscriber)} }

func (b *Memory) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Holding the read lock keeps unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.missed.Add(1)
		}
	}
}

func (b *Memory) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[string]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Missed counts deliveries lost to full subscriber buffers.
func (b *Memory) Missed() uint64 { return b.missed.Load() }

// Nop drops everything. Components fall back to it when no bus is wired.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int, ...string) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
