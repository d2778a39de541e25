package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"keysendnotifier/internal/alias"
	"keysendnotifier/internal/eventbus"
	"keysendnotifier/internal/keysend"
	logx "keysendnotifier/pkg/logx"
)

const senderKey = "02" + "1111111111111111111111111111111111111111111111111111111111111111"

type chanSource struct {
	events chan keysend.SettlementEvent
	errc   chan error
	subErr error
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan keysend.SettlementEvent), errc: make(chan error, 1)}
}

func (s *chanSource) Subscribe(ctx context.Context) (<-chan keysend.SettlementEvent, <-chan error, error) {
	if s.subErr != nil {
		return nil, nil, s.subErr
	}
	return s.events, s.errc, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	names map[string]string
	err   error
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, pubkey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.names[pubkey], nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (d *fakeDispatcher) Send(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.texts = append(d.texts, text)
	return nil
}

func (d *fakeDispatcher) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

func settled(records map[uint64][]byte, resolve int64) keysend.SettlementEvent {
	return keysend.SettlementEvent{
		State: keysend.StateSettled,
		HTLCs: []keysend.Htlc{{CustomRecords: records, ResolveTime: resolve}},
	}
}

func msg(text string) map[uint64][]byte {
	return map[uint64][]byte{keysend.MessageRecord: []byte(text)}
}

type harness struct {
	src  *chanSource
	res  *fakeResolver
	out  *fakeDispatcher
	p    *Pipeline
	done chan error
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		src:  newChanSource(),
		res:  &fakeResolver{names: map[string]string{}},
		out:  &fakeDispatcher{},
		done: make(chan error, 1),
	}
	h.p = New(h.src, h.res, h.out, append([]Option{WithLogger(logx.Nop())}, opts...)...)
	go func() { h.done <- h.p.Run(context.Background()) }()
	return h
}

// feed delivers events; the unbuffered channel guarantees each one was picked up.
func (h *harness) feed(evs ...keysend.SettlementEvent) {
	for _, ev := range evs {
		h.src.events <- ev
	}
}

// finish ends the stream and waits for Run, which also flushes the last event.
func (h *harness) finish(t *testing.T) error {
	t.Helper()
	h.src.errc <- errors.New("eof")
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestEndToEndNotification(t *testing.T) {
	t.Parallel()
	h := start(t)
	h.feed(settled(msg("test"), 1700000000))
	_ = h.finish(t)

	got := h.out.sent()
	want := "Keysend message received!\n\nAt 2023-11-14T22:13:20Z:\n\n**test**"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("sent = %q, want [%q]", got, want)
	}
	if h.res.calls != 0 {
		t.Fatal("resolver must not be called without a sender")
	}
}

func TestNonSettledAndPlainInvoicesAreIgnored(t *testing.T) {
	t.Parallel()
	h := start(t)
	h.feed(
		keysend.SettlementEvent{State: keysend.StateOpen, HTLCs: []keysend.Htlc{{CustomRecords: msg("early")}}},
		keysend.SettlementEvent{State: keysend.StateAccepted, HTLCs: []keysend.Htlc{{CustomRecords: msg("held")}}},
		settled(nil, 1700000000),
		settled(map[uint64][]byte{keysend.PubkeyRecord: {0x02}}, 1700000000),
	)
	_ = h.finish(t)

	if n := len(h.out.sent()); n != 0 {
		t.Fatalf("dispatched %d, want 0", n)
	}
	st := h.p.Stats()
	if st.Seen != 4 || st.Settled != 2 || st.Keysend != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSenderAliasIsAttributed(t *testing.T) {
	t.Parallel()
	h := start(t)
	h.res.names[senderKey] = "bob"
	h.feed(settled(msg("gm from "+senderKey), 1700000000))
	_ = h.finish(t)

	got := h.out.sent()
	if len(got) != 1 || !strings.HasSuffix(got[0], "\n\nFrom node [bob](https://amboss.space/node/"+senderKey+")") {
		t.Fatalf("sent = %q", got)
	}
}

func TestAliasFailureFallsBackToPubkey(t *testing.T) {
	t.Parallel()
	h := start(t)
	h.res.err = &alias.LookupError{Pubkey: senderKey, Status: 502, Err: errors.New("bad gateway")}
	rec := msg("hi")
	rec[keysend.PubkeyRecord] = []byte{0x02, 0x11}
	h.feed(settled(rec, 1700000000))
	_ = h.finish(t)

	got := h.out.sent()
	if len(got) != 1 || !strings.HasSuffix(got[0], "[0211](https://amboss.space/node/0211)") {
		t.Fatalf("sent = %q", got)
	}
	if st := h.p.Stats(); st.AliasFallback != 1 || st.Dispatched != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestBadEventsAreDroppedAndProcessingContinues(t *testing.T) {
	t.Parallel()
	h := start(t)
	h.feed(
		settled(map[uint64][]byte{keysend.MessageRecord: {0xff}}, 1700000000),
		settled(msg("late"), 253402300800),
		settled(msg("ok"), 1700000000),
	)
	_ = h.finish(t)

	got := h.out.sent()
	if len(got) != 1 || !strings.Contains(got[0], "**ok**") {
		t.Fatalf("sent = %q", got)
	}
	if st := h.p.Stats(); st.Dropped != 2 || st.Keysend != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDispatchFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	h := start(t, WithBus(bus))
	h.out.err = errors.New("no relay accepted")
	h.feed(settled(msg("one"), 1700000000), settled(msg("two"), 1700000001))
	_ = h.finish(t)

	if st := h.p.Stats(); st.Failed != 2 || st.Dispatched != 0 {
		t.Fatalf("stats = %+v", st)
	}
	var failed int
	for len(events) > 0 {
		if e := <-events; e.Type == eventbus.TypeDispatchError {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("dispatch error events = %d, want 2", failed)
	}
}

func TestEventsAreProcessedInOrder(t *testing.T) {
	t.Parallel()
	h := start(t)
	var evs []keysend.SettlementEvent
	for i := 0; i < 5; i++ {
		evs = append(evs, settled(msg(string(rune('a'+i))), 1700000000))
	}
	h.feed(evs...)
	_ = h.finish(t)

	got := h.out.sent()
	if len(got) != 5 {
		t.Fatalf("sent %d", len(got))
	}
	for i, text := range got {
		if want := "**" + string(rune('a'+i)) + "**"; !strings.Contains(text, want) {
			t.Fatalf("sent[%d] = %q, want %s", i, text, want)
		}
	}
}

func TestStreamEndIsFatal(t *testing.T) {
	t.Parallel()
	subscribed := make(chan struct{})
	h := start(t, WithOnSubscribed(func() { close(subscribed) }))
	<-subscribed
	if s := h.p.State(); s != StateSubscribing {
		t.Fatalf("state = %v before first event", s)
	}
	h.feed(settled(nil, 1))
	if s := h.p.State(); s != StateProcessing && s != StateSubscribing {
		t.Fatalf("state = %v", s)
	}

	err := h.finish(t)
	if !errors.Is(err, ErrStreamTerminated) {
		t.Fatalf("Run = %v, want ErrStreamTerminated", err)
	}
	var ste *StreamTerminationError
	if !errors.As(err, &ste) || ste.Err == nil || ste.Err.Error() != "eof" {
		t.Fatalf("err = %#v", err)
	}
	if h.p.State() != StateTerminated {
		t.Fatalf("state = %v", h.p.State())
	}
}

func TestSubscribeFailureIsFatal(t *testing.T) {
	t.Parallel()
	src := newChanSource()
	src.subErr = errors.New("connection refused")
	p := New(src, nil, &fakeDispatcher{})

	err := p.Run(context.Background())
	if !errors.Is(err, ErrStreamTerminated) || !errors.Is(err, src.subErr) {
		t.Fatalf("Run = %v", err)
	}
	if p.State() != StateTerminated {
		t.Fatalf("state = %v", p.State())
	}
}

func TestCancellationIsCleanStop(t *testing.T) {
	t.Parallel()
	src := newChanSource()
	p := New(src, nil, &fakeDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	src.errc <- context.Canceled
	if err := <-done; !errors.Is(err, context.Canceled) || errors.Is(err, ErrStreamTerminated) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
