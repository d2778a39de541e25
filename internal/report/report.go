// Package report logs a periodic summary of bridge activity on a cron schedule.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "keysendnotifier/pkg/logx"
)

const DefaultSchedule = "@hourly"

type Config struct {
	Enabled  bool
	Schedule string
}

// Collector returns the fields of one report line.
type Collector func() []logx.Field

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	collect Collector
	parser  cron.Parser
	started time.Time

	cfg Config
	c   *cron.Cron
}

func New(cfg Config, collect Collector, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		collect: collect,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		started: time.Now(),
		cfg:     cfg,
	}
}

func schedule(cfg Config) string {
	if s := strings.TrimSpace(cfg.Schedule); s != "" {
		return s
	}
	return DefaultSchedule
}

// Start begins reporting if enabled. It is idempotent.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	spec := schedule(s.cfg)
	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(spec, s.Emit); err != nil {
		return fmt.Errorf("report schedule %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("stats report scheduled", logx.String("schedule", spec))
	return nil
}

// Stop waits for a running report to finish or ctx to end.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
	s.c = nil
}

// Apply swaps the config, rescheduling when the schedule or enable flag changed.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	if prev.Enabled == cfg.Enabled && schedule(prev) == schedule(cfg) && (s.c != nil) == cfg.Enabled {
		return nil
	}
	s.stopLocked(ctx)
	if err := s.startLocked(); err != nil {
		s.cfg = prev
		_ = s.startLocked()
		return err
	}
	return nil
}

// Running reports whether a schedule is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Emit writes one report line now.
func (s *Service) Emit() {
	fields := []logx.Field{logx.Duration("uptime", time.Since(s.started).Round(time.Second))}
	if s.collect != nil {
		fields = append(fields, s.collect()...)
	}
	s.log.Info("stats", fields...)
}
