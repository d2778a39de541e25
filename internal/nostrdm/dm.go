package nostrdm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	logx "keysendnotifier/pkg/logx"
)

var ErrNotAccepted = errors.New("no relay accepted the event")

// PublishError lists the per-relay failures of a rejected event.
type PublishError struct {
	EventID string
	Relays  map[string]error
}

func (e *PublishError) Error() string {
	urls := make([]string, 0, len(e.Relays))
	for u := range e.Relays {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	parts := make([]string, 0, len(urls))
	for _, u := range urls {
		parts = append(parts, fmt.Sprintf("%s: %v", u, e.Relays[u]))
	}
	return fmt.Sprintf("%v (event %s): %s", ErrNotAccepted, e.EventID, strings.Join(parts, "; "))
}

func (e *PublishError) Unwrap() error { return ErrNotAccepted }

// Publisher is the subset of *nostr.SimplePool used for delivery.
type Publisher interface {
	PublishMany(ctx context.Context, urls []string, evt nostr.Event) chan nostr.PublishResult
}

type Config struct {
	SecretKey string
	// Receiver is the recipient pubkey in hex.
	Receiver string
	Relays   []string
	// PublishTimeout bounds one Send across all relays. Zero means no bound.
	PublishTimeout time.Duration
}

// DirectMessenger sends encrypted kind-4 messages from the service key to a
// single recipient.
type DirectMessenger struct {
	pub      Publisher
	log      logx.Logger
	sk       string
	pk       string
	receiver string
	relays   []string
	timeout  time.Duration
	shared   []byte
}

func New(cfg Config, pub Publisher, log logx.Logger) (*DirectMessenger, error) {
	if len(cfg.Relays) == 0 {
		return nil, errors.New("nostr: no relays configured")
	}
	if pub == nil {
		return nil, errors.New("nostr: nil publisher")
	}
	pk, err := nostr.GetPublicKey(cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("nostr: derive pubkey: %w", err)
	}
	shared, err := nip04.ComputeSharedSecret(cfg.Receiver, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("nostr: shared secret: %w", err)
	}
	return &DirectMessenger{
		pub:      pub,
		log:      log,
		sk:       cfg.SecretKey,
		pk:       pk,
		receiver: cfg.Receiver,
		relays:   append([]string(nil), cfg.Relays...),
		timeout:  cfg.PublishTimeout,
		shared:   shared,
	}, nil
}

// PublicKey returns the service pubkey in hex.
func (m *DirectMessenger) PublicKey() string { return m.pk }

func (m *DirectMessenger) Name() string { return "nostr" }

// Send encrypts text for the receiver and publishes it to every relay. It
// succeeds when at least one relay accepted the event.
func (m *DirectMessenger) Send(ctx context.Context, text string) error {
	content, err := nip04.Encrypt(text, m.shared)
	if err != nil {
		return fmt.Errorf("nostr: encrypt: %w", err)
	}
	ev := nostr.Event{
		PubKey:    m.pk,
		CreatedAt: nostr.Now(),
		Kind:      nostr.KindEncryptedDirectMessage,
		Tags:      nostr.Tags{{"p", m.receiver}},
		Content:   content,
	}
	if err := ev.Sign(m.sk); err != nil {
		return fmt.Errorf("nostr: sign: %w", err)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	accepted := 0
	failed := map[string]error{}
	for res := range m.pub.PublishMany(ctx, m.relays, ev) {
		if res.Error != nil {
			failed[res.RelayURL] = res.Error
			m.log.Debug("relay rejected event", logx.String("relay", res.RelayURL), logx.String("event", ev.ID), logx.Err(res.Error))
			continue
		}
		accepted++
		m.log.Debug("relay accepted event", logx.String("relay", res.RelayURL), logx.String("event", ev.ID))
	}
	if accepted == 0 {
		if len(failed) == 0 {
			failed["*"] = ctxOr(ctx, errors.New("no publish results"))
		}
		return &PublishError{EventID: ev.ID, Relays: failed}
	}
	return nil
}

func ctxOr(ctx context.Context, fallback error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fallback
}
