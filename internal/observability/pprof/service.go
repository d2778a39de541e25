// Package pprof runs the optional debug HTTP server: net/http/pprof handlers
// under a prefix plus /healthz and /stats for the running bridge.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	rtsup "keysendnotifier/internal/runtime/supervisor"
	logx "keysendnotifier/pkg/logx"
)

const (
	defaultAddr   = "127.0.0.1:6060"
	defaultPrefix = "/debug/pprof/"

	retryMin        = 500 * time.Millisecond
	retryMax        = 10 * time.Second
	shutdownTimeout = 2 * time.Second
)

// Config controls the debug server. A non-loopback Addr is refused unless a
// Token is set or AllowInsecure is on.
type Config struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool
}

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return defaultAddr
}

// listenerChanged reports whether moving from c to next needs a new listener.
func (c Config) listenerChanged(next Config) bool {
	return c.addr() != next.addr() ||
		normalizePrefix(c.Prefix) != normalizePrefix(next.Prefix) ||
		c.Token != next.Token ||
		c.AllowInsecure != next.AllowInsecure
}

// HealthFunc reports whether the process is healthy and a short state string.
type HealthFunc func() (ok bool, state string)

// StatsFunc returns a JSON-encodable snapshot.
type StatsFunc func() any

type Option func(*Service)

func WithHealth(fn HealthFunc) Option { return func(s *Service) { s.health = fn } }

func WithStats(fn StatsFunc) Option { return func(s *Service) { s.stats = fn } }

type Service struct {
	log    logx.Logger
	health HealthFunc
	stats  StatsFunc

	mu    sync.Mutex
	cfg   Config
	bound string
	sup   *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{cfg: cfg, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Reconfigure switches to cfg, starting, stopping or rebinding the server.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev, running := s.cfg, s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && (!cfg.Enabled || prev.listenerChanged(cfg)) {
		s.Stop(ctx)
		running = false
	}
	if !running && cfg.Enabled {
		s.Start(ctx)
	}
}

// Start is idempotent and does nothing while disabled. The listener runs
// under its own supervisor so a failure never cancels the bridge.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go("pprof.http", s.serve)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("pprof stop", logx.Err(err))
	}
	s.log.Info("pprof stopped")
}

// serve keeps a listener up until ctx ends, rebinding after failures.
func (s *Service) serve(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = retryMin
	retry.MaxInterval = retryMax
	for {
		started := time.Now()
		err := s.listenAndServe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > retryMax {
			retry.Reset()
		}
		d := retry.NextBackOff()
		s.log.Warn("pprof server exited; restarting", logx.Err(err), logx.Duration("retry_in", d))
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

var errRefused = errors.New("non-loopback addr requires token or allow_insecure")

func (s *Service) listenAndServe(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := cfg.addr()
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			// Retrying cannot help until the config changes.
			s.log.Error("pprof refused to start", logx.String("addr", addr), logx.Err(errRefused))
			<-ctx.Done()
			return ctx.Err()
		}
		s.log.Warn("pprof exposed without token", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	prefix := normalizePrefix(cfg.Prefix)
	srv := &http.Server{
		Handler:           s.routes(cfg.Token, prefix),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	s.setBound(ln.Addr().String())
	defer s.setBound("")
	s.log.Info("pprof started",
		logx.String("url", "http://"+ln.Addr().String()+prefix),
		logx.Bool("token_set", cfg.Token != ""),
	)

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return errors.New("server closed")
}

func (s *Service) setBound(addr string) {
	s.mu.Lock()
	s.bound = addr
	s.mu.Unlock()
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	switch host = strings.TrimSpace(host); {
	case host == "":
		return false
	case strings.EqualFold(host, "localhost"):
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
