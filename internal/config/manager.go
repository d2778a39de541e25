package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	logx "keysendnotifier/pkg/logx"
)

const (
	settleDelay     = 250 * time.Millisecond
	validateTimeout = 5 * time.Second
	watchRetryMin   = 250 * time.Millisecond
	watchRetryMax   = 5 * time.Second
)

// relevantOps are the file events that may change the config contents.
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// Manager owns the committed config and republishes it when the file on disk
// changes to something valid.
type Manager struct {
	path    string
	environ map[string]string
	log     logx.Logger
	check   func(ctx context.Context, cfg *Config) error

	mu      sync.RWMutex
	current *Config
	digest  uint64

	// subMu is held while publishing so a subscriber is never closed mid-send.
	subMu  sync.Mutex
	subs   map[int]chan *Config
	nextID int
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop(), subs: make(map[int]chan *Config)}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetEnviron replaces the process environment as the override source.
func (m *Manager) SetEnviron(environ map[string]string) { m.environ = environ }

// SetValidator adds a check that a reloaded config must pass before it is
// committed. Load does not run it.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) { m.check = fn }

// Parse reads the file (YAML or JSON), rejects unknown keys and applies
// environment overrides. It does not validate.
func (m *Manager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(m.path, raw)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, m.environ); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses, validates and commits the config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	d := digest(cfg)
	m.mu.Lock()
	m.current, m.digest = cfg, d
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// digest fingerprints the decoded config, so formatting-only edits and the
// duplicate events editors emit on save do not count as changes.
func digest(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

// Subscribe returns a channel of committed reloads. Only the newest pending
// config is kept when the reader falls behind.
func (m *Manager) Subscribe(buffer int) (<-chan *Config, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subMu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		offerLatest(ch, cfg)
	}
}

// offerLatest evicts stale entries until cfg fits.
func offerLatest(ch chan *Config, cfg *Config) {
	for {
		select {
		case ch <- cfg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// reload runs one settled reload: parse, skip when nothing changed, validate,
// then commit and publish.
func (m *Manager) reload(ctx context.Context) {
	log := m.log.With(logx.String("path", m.path))
	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.Err(err))
		return
	}

	d := digest(cfg)
	m.mu.RLock()
	same := d != 0 && d == m.digest
	m.mu.RUnlock()
	if same {
		log.Debug("config file touched without changes")
		return
	}

	if err := m.validate(ctx, cfg); err != nil {
		log.Warn("config rejected", logx.Err(err))
		return
	}
	m.Commit(cfg)
	m.publish(cfg)
	log.Debug("config committed", logx.String("digest", strconv.FormatUint(d, 16)))
}

func (m *Manager) validate(ctx context.Context, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.check == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return m.check(cctx, cfg)
}

// Watch reloads the config whenever its file changes, until ctx is done.
// It watches the parent directory so atomic replaces by editors are seen, and
// rebuilds a failed watcher after an exponential backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, name := filepath.Split(m.path)
	if dir == "" {
		dir = "."
	}
	log := m.log.With(logx.String("dir", dir))

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = watchRetryMin
	retry.MaxInterval = watchRetryMax
	pause := func(msg string, err error) bool {
		d := retry.NextBackOff()
		log.Warn(msg, logx.Err(err), logx.Duration("retry_in", d))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := openWatcher(dir)
		if err != nil {
			if !pause("config watch setup failed", err) {
				break
			}
			continue
		}
		retry.Reset()
		log.Debug("watching config", logx.String("file", name))

		err = m.follow(ctx, w, name)
		_ = w.Close()
		if ctx.Err() != nil || !pause("config watcher broke; rebuilding", err) {
			break
		}
	}
	return nil
}

func openWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

var errWatcherClosed = errors.New("config watcher channel closed")

// follow consumes watcher events and runs a reload once the file has been
// quiet for settleDelay. It returns nil when ctx ends and an error when the
// watcher breaks.
func (m *Manager) follow(ctx context.Context, w *fsnotify.Watcher, name string) error {
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()
	arm := func() {
		settle.Stop()
		settle.Reset(settleDelay)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settle.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(ev.Name) == name && ev.Op&relevantOps != 0 {
				arm()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			switch {
			case err == nil:
			case errors.Is(err, fsnotify.ErrEventOverflow):
				m.log.Warn("config watch overflow; rereading file", logx.Err(err))
				arm()
			case errors.Is(err, fsnotify.ErrClosed):
				return err
			default:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
