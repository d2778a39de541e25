package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	logx "keysendnotifier/pkg/logx"
)

const DefaultReportSchedule = "@hourly"

// Validate reports every problem found in cfg, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	required := func(path, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", path))
		}
	}

	required("lnd.host", cfg.LND.Host)
	required("lnd.tls_cert_path", cfg.LND.TLSCertPath)
	required("lnd.macaroon_path", cfg.LND.MacaroonPath)
	required("nostr.receiver_pubkey", cfg.Nostr.ReceiverPubkey)

	relays := 0
	for i, r := range cfg.Nostr.Relays {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		relays++
		if !strings.HasPrefix(r, "wss://") && !strings.HasPrefix(r, "ws://") {
			errs = append(errs, fmt.Errorf("nostr.relays[%d]: %q is not a websocket url", i, r))
		}
	}
	if relays == 0 {
		errs = append(errs, errors.New("nostr.relays: at least one relay is required"))
	}

	if _, err := ParseDuration("nostr.publish_timeout", cfg.Nostr.PublishTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDuration("alias.timeout", cfg.Alias.Timeout); err != nil {
		errs = append(errs, err)
	}

	if cfg.Notifier.RatePerSec < 0 {
		errs = append(errs, errors.New("notifier.rate_per_sec must be >= 0"))
	}
	if cfg.Notifier.HistorySize < 0 {
		errs = append(errs, errors.New("notifier.history_size must be >= 0"))
	}

	for path, lvl := range map[string]string{
		"logging.level":              cfg.Logging.Level,
		"logging.telegram.min_level": cfg.Logging.Telegram.MinLevel,
	} {
		if !logx.ValidLevel(lvl) {
			errs = append(errs, fmt.Errorf("%s: unknown level %q", path, lvl))
		}
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.log_chat_id"))
	}
	if (cfg.Telegram.MirrorChatID != 0 || cfg.Telegram.LogChatID != 0) && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram chat ids require telegram.token"))
	}

	if cfg.Report.Enabled {
		if _, err := cron.ParseStandard(ReportSchedule(cfg.Report)); err != nil {
			errs = append(errs, fmt.Errorf("report.schedule: %w", err))
		}
	}

	if cfg.Pprof.Enabled && !cfg.Pprof.AllowInsecure && strings.TrimSpace(cfg.Pprof.Token) == "" && !isLoopback(cfg.Pprof.Addr) {
		errs = append(errs, errors.New("pprof.addr is not loopback; set pprof.token or pprof.allow_insecure"))
	}
	return errors.Join(errs...)
}

// ReportSchedule returns the configured schedule or the default.
func ReportSchedule(rc ReportConfig) string {
	if s := strings.TrimSpace(rc.Schedule); s != "" {
		return s
	}
	return DefaultReportSchedule
}

func isLoopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return true // default is 127.0.0.1:6060
	}
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
