package app

import (
	"context"
	"strings"

	"keysendnotifier/internal/config"
	logx "keysendnotifier/pkg/logx"
)

// reloadLoop applies committed configs until ctx ends. Bursts are coalesced
// to the latest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						break drain
					}
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes live sections to their services. Sections that need a
// restart are only reported.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}

	// target first so Apply does not warn when Telegram logging is enabled
	a.logs.SetTelegramTarget(newCfg.Telegram.LogChatID, newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(newCfg))

	if err := a.report.Apply(ctx, mapReportConfig(newCfg)); err != nil {
		a.log.Warn("invalid report config; keeping previous", logx.Err(err))
	}
	a.pprof.Reconfigure(ctx, mapPprofConfig(newCfg))

	a.log.Info("config reloaded", fields...)
}
