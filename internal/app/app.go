package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"keysendnotifier/internal/alias"
	"keysendnotifier/internal/config"
	"keysendnotifier/internal/eventbus"
	"keysendnotifier/internal/lightning"
	"keysendnotifier/internal/nostrdm"
	"keysendnotifier/internal/notifier"
	"keysendnotifier/internal/observability/pprof"
	"keysendnotifier/internal/pipeline"
	"keysendnotifier/internal/report"
	"keysendnotifier/internal/runtime/supervisor"
	kit "keysendnotifier/internal/transport"
	telegram "keysendnotifier/internal/transport/telegram/adapter"
	logx "keysendnotifier/pkg/logx"
	"keysendnotifier/pkg/systemd"
)

const getInfoTimeout = 10 * time.Second

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Memory

	tg         *telegram.Adapter
	lnd        *lightning.Client
	poolCancel context.CancelFunc

	notif   *notifier.Service
	aliases *alias.Resolver
	pipe    *pipeline.Pipeline
	report  *report.Service
	pprof   *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Checked before anything touches the network or the key file.
	ncfg, err := mapNostrConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("nostr.receiver_pubkey: %w", err)
	}
	aliasTimeout, err := config.ParseDuration("alias.timeout", cfg.Alias.Timeout)
	if err != nil {
		return nil, err
	}

	var (
		tg     *telegram.Adapter
		sender kit.Sender
	)
	if tok := strings.TrimSpace(cfg.Telegram.Token); tok != "" {
		tg, err = telegram.New(telegram.Config{Token: tok}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		sender = tg
	}

	// logx.New applies immediately; set the Telegram target before enabling
	// the sink so Apply does not warn about a missing chat.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, sender)
	logSvc.SetTelegramTarget(cfg.Telegram.LogChatID, cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	// run_id ties together the lines of one process lifetime in shared sinks.
	root = root.With(logx.String("run_id", uuid.NewString()))
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sk, created, err := nostrdm.LoadOrCreateKey(keyPath(cfg))
	if err != nil {
		return nil, err
	}
	ncfg.SecretKey = sk
	poolCtx, poolCancel := context.WithCancel(context.Background())
	dm, err := nostrdm.New(ncfg, nostr.NewSimplePool(poolCtx), root.With(logx.String("comp", "nostr")))
	if err != nil {
		poolCancel()
		return nil, err
	}
	if created {
		log.Info("generated service key", logx.String("path", keyPath(cfg)))
	}
	log.Info("nostr identity",
		logx.String("npub", nostrdm.Npub(dm.PublicKey())),
		logx.String("receiver", nostrdm.Npub(ncfg.Receiver)),
		logx.Int("relays", len(ncfg.Relays)),
	)

	var mirrors []notifier.Sink
	if target, ok := mirrorTarget(cfg); ok && tg != nil {
		mirrors = append(mirrors, notifier.NewChatSink(tg, target))
		log.Info("telegram mirror enabled", logx.Int64("chat_id", target.ChatID))
	}
	notifSvc := notifier.New(mapNotifierConfig(cfg), dm, root.With(logx.String("comp", "notifier")), bus, mirrors...)

	aliases := alias.NewResolver(alias.NewCache(), alias.NewAmbossDirectory(cfg.Alias.Endpoint, nil),
		alias.WithLogger(root.With(logx.String("comp", "alias"))),
		alias.WithTimeout(aliasTimeout),
	)

	lnd, err := lightning.Dial(mapLightningConfig(cfg), root.With(logx.String("comp", "lnd")))
	if err != nil {
		poolCancel()
		return nil, err
	}

	a := &App{
		cfgm:       cfgm,
		root:       root,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		tg:         tg,
		lnd:        lnd,
		poolCancel: poolCancel,
		notif:      notifSvc,
		aliases:    aliases,
	}
	a.pipe = pipeline.New(lnd, aliases, notifSvc,
		pipeline.WithLogger(root.With(logx.String("comp", "pipeline"))),
		pipeline.WithBus(bus),
		pipeline.WithOnSubscribed(a.onSubscribed),
	)
	a.report = report.New(mapReportConfig(cfg), a.reportFields, root.With(logx.String("comp", "report")))
	a.pprof = pprof.New(mapPprofConfig(cfg), root.With(logx.String("comp", "pprof")),
		pprof.WithHealth(a.health),
		pprof.WithStats(a.stats),
	)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	infoCtx, cancel := context.WithTimeout(ctx, getInfoTimeout)
	info, err := a.lnd.GetInfo(infoCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("lnd getinfo: %w", err)
	}
	a.log.Info("connected to lnd",
		logx.String("alias", info.Alias),
		logx.String("pubkey", info.Pubkey),
		logx.String("network", info.Network),
		logx.Bool("synced", info.Synced),
	)
	if !info.Synced {
		a.log.Warn("lnd is not synced to chain; settlements may be delayed")
	}

	if err := a.report.Start(); err != nil {
		return err
	}
	a.pprof.Start(a.sup.Context())

	a.sup.Go("pipeline", a.pipe.Run)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub, unsubCfg := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer unsubCfg()
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, a.healthy, a.root.With(logx.String("comp", "systemd")))
	})

	a.log.Info("app started")
	return nil
}

func (a *App) onSubscribed() {
	if err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	_ = systemd.Status("listening for keysend messages")
}

func validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := nostrdm.ParsePubkey(cfg.Nostr.ReceiverPubkey); err != nil {
		return fmt.Errorf("nostr.receiver_pubkey: %w", err)
	}
	return nil
}

func (a *App) healthy() bool {
	ok, _ := a.health()
	return ok
}

// health stays ok on a quiet node that has not seen an event yet.
func (a *App) health() (bool, string) {
	st := a.pipe.State()
	return st != pipeline.StateTerminated, st.String()
}

func (a *App) stats() any {
	out := map[string]any{
		"state":      a.pipe.State().String(),
		"pipeline":   a.pipe.Stats(),
		"notifier":   a.notif.Counters(),
		"aliases":    a.aliases.Cache().Len(),
		"goroutines": a.sup.Counters(),
		"bus_missed": a.bus.Missed(),
	}
	if a.tg != nil {
		sent, failed := a.tg.Counters()
		out["telegram"] = map[string]uint64{"sent": sent, "failed": failed}
	}
	return out
}

func (a *App) reportFields() []logx.Field {
	ps := a.pipe.Stats()
	nc := a.notif.Counters()
	last := "never"
	if at, ok := a.notif.LastSent(); ok {
		last = humanize.Time(at)
	}
	return []logx.Field{
		logx.String("state", a.pipe.State().String()),
		logx.Uint64("seen", ps.Seen),
		logx.Uint64("settled", ps.Settled),
		logx.Uint64("keysend", ps.Keysend),
		logx.Uint64("dispatched", ps.Dispatched),
		logx.Uint64("failed", ps.Failed),
		logx.Uint64("dropped", ps.Dropped),
		logx.Uint64("alias_fallback", ps.AliasFallback),
		logx.Uint64("sent", nc.Sent),
		logx.String("last_sent", last),
		logx.Uint64("mirror_failed", nc.MirrorFailed),
		logx.Int("aliases_cached", a.aliases.Cache().Len()),
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_ = systemd.Stopping()

	// Cancel first so the stream and background loops start unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("report", 2*time.Second, func(c context.Context) error { a.report.Stop(c); return nil })
	step("pprof", 1*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, pipeline.ErrStreamTerminated) {
			// already reported by Err()
			return nil
		}
		return err
	})
	step("lnd", 1*time.Second, func(context.Context) error { return a.lnd.Close() })
	step("nostr", 1*time.Second, func(context.Context) error { a.poolCancel(); return nil })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
