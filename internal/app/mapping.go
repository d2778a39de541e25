package app

import (
	"strings"

	"keysendnotifier/internal/config"
	"keysendnotifier/internal/lightning"
	"keysendnotifier/internal/nostrdm"
	"keysendnotifier/internal/notifier"
	"keysendnotifier/internal/observability/pprof"
	"keysendnotifier/internal/report"
	kit "keysendnotifier/internal/transport"
	logx "keysendnotifier/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapLightningConfig(cfg *config.Config) lightning.Config {
	return lightning.Config{
		Host:         strings.TrimSpace(cfg.LND.Host),
		TLSCertPath:  cfg.LND.TLSCertPath,
		MacaroonPath: cfg.LND.MacaroonPath,
	}
}

// mapNostrConfig resolves the receiver and relay list. The secret key is
// filled in by the caller once loaded.
func mapNostrConfig(cfg *config.Config) (nostrdm.Config, error) {
	receiver, err := nostrdm.ParsePubkey(cfg.Nostr.ReceiverPubkey)
	if err != nil {
		return nostrdm.Config{}, err
	}
	timeout, err := config.ParseDuration("nostr.publish_timeout", cfg.Nostr.PublishTimeout)
	if err != nil {
		return nostrdm.Config{}, err
	}
	relays := make([]string, 0, len(cfg.Nostr.Relays))
	seen := make(map[string]bool, len(cfg.Nostr.Relays))
	for _, r := range cfg.Nostr.Relays {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		relays = append(relays, r)
	}
	return nostrdm.Config{Receiver: receiver, Relays: relays, PublishTimeout: timeout}, nil
}

func keyPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Nostr.KeyPath); p != "" {
		return p
	}
	return nostrdm.DefaultKeyPath
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{RatePerSec: cfg.Notifier.RatePerSec, HistorySize: cfg.Notifier.HistorySize}
}

// mirrorTarget returns the Telegram chat mirroring notifications, if any.
func mirrorTarget(cfg *config.Config) (kit.ChatTarget, bool) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" || cfg.Telegram.MirrorChatID == 0 {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: cfg.Telegram.MirrorChatID, ThreadID: cfg.Telegram.MirrorThreadID}, true
}

func mapReportConfig(cfg *config.Config) report.Config {
	return report.Config{Enabled: cfg.Report.Enabled, Schedule: config.ReportSchedule(cfg.Report)}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Prefix:        cfg.Pprof.Prefix,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}
