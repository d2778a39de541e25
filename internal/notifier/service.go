package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"keysendnotifier/internal/eventbus"
	logx "keysendnotifier/pkg/logx"
)

const (
	defaultHistorySize = 100
	mirrorTimeout      = 10 * time.Second
)

type namedSink struct {
	name string
	sink Sink
}

// Service fans a notification out to the primary sink and the mirrors.
// It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	bus     eventbus.Bus
	primary namedSink
	mirrors []namedSink

	historySize int
	limiter     *rate.Limiter

	sent         atomic.Uint64
	failed       atomic.Uint64
	mirrorFailed atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, primary Sink, log logx.Logger, bus eventbus.Bus, mirrors ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	s := &Service{
		log:         log,
		bus:         bus,
		primary:     named(primary, "primary"),
		historySize: cfg.HistorySize,
	}
	for _, m := range mirrors {
		if m != nil {
			s.mirrors = append(s.mirrors, named(m, "mirror"))
		}
	}
	if cfg.RatePerSec > 0 {
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return s
}

func named(s Sink, def string) namedSink {
	if n, ok := s.(Named); ok && n.Name() != "" {
		return namedSink{name: n.Name(), sink: s}
	}
	return namedSink{name: def, sink: s}
}

// Send delivers text to the primary sink, then to every mirror. A primary
// failure is returned as *DispatchError. There are no retries.
func (s *Service) Send(ctx context.Context, text string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.fail(&DispatchError{Sink: s.primary.name, Err: err}, len(text))
		}
	}

	if err := s.primary.sink.Send(ctx, text); err != nil {
		return s.fail(&DispatchError{Sink: s.primary.name, Err: err}, len(text))
	}
	s.sent.Add(1)
	s.appendHistory(text)
	s.publish(eventbus.TypeSent, s.primary.name, len(text), nil)

	for _, m := range s.mirrors {
		mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		err := m.sink.Send(mctx, text)
		cancel()
		if err != nil {
			s.mirrorFailed.Add(1)
			s.log.Warn("mirror send failed", logx.String("sink", m.name), logx.Err(err))
			s.publish(eventbus.TypeSendFailed, m.name, len(text), err)
			continue
		}
		s.publish(eventbus.TypeSent, m.name, len(text), nil)
	}
	return nil
}

func (s *Service) fail(err *DispatchError, n int) error {
	s.failed.Add(1)
	s.publish(eventbus.TypeSendFailed, err.Sink, n, err.Err)
	return err
}

func (s *Service) publish(typ, sink string, n int, err error) {
	now := time.Now()
	ev := NotificationEvent{Sink: sink, At: now, Bytes: n}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) Counters() Counters {
	return Counters{
		Sent:         s.sent.Load(),
		Failed:       s.failed.Load(),
		MirrorFailed: s.mirrorFailed.Load(),
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

// LastSent returns the time of the most recent successful send.
func (s *Service) LastSent() (time.Time, bool) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if len(s.history) == 0 {
		return time.Time{}, false
	}
	return s.history[len(s.history)-1].At, true
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
	s.hmu.Unlock()
}
