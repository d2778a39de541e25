package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"keysendnotifier/internal/eventbus"
	"keysendnotifier/internal/keysend"
	logx "keysendnotifier/pkg/logx"
)

// Resolver maps a node pubkey to its alias.
type Resolver interface {
	Resolve(ctx context.Context, pubkey string) (string, error)
}

// Dispatcher delivers a formatted notification.
type Dispatcher interface {
	Send(ctx context.Context, text string) error
}

// Outcome is the bus payload for per-event results.
type Outcome struct {
	SettleIndex uint64 `json:"settle_index"`
	PaymentHash string `json:"payment_hash,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Pipeline struct {
	src  keysend.Source
	res  Resolver
	out  Dispatcher
	log  logx.Logger
	bus  eventbus.Bus
	subd func()

	state atomic.Int32
	stats counters
}

type Option func(*Pipeline)

func WithLogger(log logx.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithBus(bus eventbus.Bus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithOnSubscribed registers fn to run once the subscription is open.
func WithOnSubscribed(fn func()) Option {
	return func(p *Pipeline) { p.subd = fn }
}

func New(src keysend.Source, res Resolver, out Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{src: src, res: res, out: out, log: logx.Nop(), bus: eventbus.Nop{}}
	for _, o := range opts {
		o(p)
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	if p.bus == nil {
		p.bus = eventbus.Nop{}
	}
	return p
}

func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) Stats() Stats { return p.stats.snapshot() }

func (p *Pipeline) setState(s State) {
	if State(p.state.Swap(int32(s))) != s {
		p.log.Debug("pipeline state", logx.String("state", s.String()))
	}
}

// Run subscribes and processes events until the stream ends or ctx is done.
// Cancellation returns ctx.Err(); anything else is a *StreamTerminationError.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateSubscribing)
	events, errc, err := p.src.Subscribe(ctx)
	if err != nil {
		return p.terminate(ctx, err)
	}
	p.log.Info("subscribed to settlement events")
	if p.subd != nil {
		p.subd()
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if p.State() == StateSubscribing {
				p.setState(StateProcessing)
			}
			p.handle(ctx, ev)
		case err, ok := <-errc:
			if !ok {
				err = errSourceClosed
			}
			return p.terminate(ctx, err)
		}
	}
}

func (p *Pipeline) terminate(ctx context.Context, cause error) error {
	p.setState(StateTerminated)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.log.Error("settlement stream terminated", logx.Err(cause))
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeTerminated, Data: Outcome{Error: cause.Error()}})
	return &StreamTerminationError{Err: cause}
}

func (p *Pipeline) handle(ctx context.Context, ev keysend.SettlementEvent) {
	p.stats.seen.Add(1)
	if ev.State == keysend.StateSettled {
		p.stats.settled.Add(1)
	}
	h, ok := keysend.SelectHTLC(ev)
	if !ok {
		return
	}
	p.stats.keysend.Add(1)
	log := p.log.With(logx.Uint64("settle_index", ev.SettleIndex))
	out := Outcome{SettleIndex: ev.SettleIndex, PaymentHash: ev.PaymentHash}
	log.Debug("htlc chat found")

	payload, src, err := keysend.Extract(h)
	if err != nil {
		p.stats.dropped.Add(1)
		log.Warn("keysend message dropped", logx.Err(err))
		out.Error = err.Error()
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeDropped, Data: out})
		return
	}

	var name string
	if payload.SenderPubkey != "" {
		out.Sender = payload.SenderPubkey
		log.Debug("sender pubkey found", logx.String("from", string(src)), logx.String("pubkey", payload.SenderPubkey))
		name = p.resolve(ctx, log, payload.SenderPubkey, out)
	}

	text := keysend.Format(payload, name)
	log.Debug("message to send", logx.String("text", text))

	start := time.Now()
	if err := p.out.Send(ctx, text); err != nil {
		p.stats.failed.Add(1)
		log.Error("notification not delivered", logx.Err(err))
		out.Error = err.Error()
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchError, Data: out})
		return
	}
	p.stats.dispatched.Add(1)
	log.Info("notification delivered", logx.Duration("took", time.Since(start)))
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatched, Data: out})
}

// resolve returns the alias, or the pubkey itself when the lookup fails.
func (p *Pipeline) resolve(ctx context.Context, log logx.Logger, pubkey string, out Outcome) string {
	if p.res == nil {
		return pubkey
	}
	name, err := p.res.Resolve(ctx, pubkey)
	if err != nil {
		p.stats.aliasFallback.Add(1)
		log.Warn("alias lookup failed, using pubkey", logx.Err(err))
		out.Error = err.Error()
		p.bus.Publish(eventbus.Event{Type: eventbus.TypeAliasFallback, Data: out})
		return pubkey
	}
	return name
}
