package config

import (
	"reflect"
	"sort"
	"strings"

	logx "keysendnotifier/pkg/logx"
)

// LiveSections are applied on hot reload; changes elsewhere need a restart.
var LiveSections = map[string]bool{"logging": true, "report": true, "pprof": true}

// SummarizeConfigChange returns the changed sections (sorted) and safe
// structured attrs for logging. Secrets such as tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.LND != newCfg.LND {
		changed = append(changed, "lnd")
		attrs = append(attrs, logx.String("lnd.host", newCfg.LND.Host))
	}
	if !reflect.DeepEqual(oldCfg.Nostr, newCfg.Nostr) {
		changed = append(changed, "nostr")
		attrs = append(attrs, logx.Int("nostr.relays", len(newCfg.Nostr.Relays)))
	}
	if oldCfg.Alias != newCfg.Alias {
		changed = append(changed, "alias")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	}

	// Telegram (never log token)
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.mirror_set", newCfg.Telegram.MirrorChatID != 0),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Report != newCfg.Report {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.Bool("report.enabled", newCfg.Report.Enabled),
			logx.String("report.schedule", ReportSchedule(newCfg.Report)),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections that cannot be applied live.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
