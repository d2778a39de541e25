package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kit "keysendnotifier/internal/transport"
)

const defaultLogPath = "./keysend-notifier.log"

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig controls operator alerts. The chat is set separately with
// SetTelegramTarget because it lives in the telegram config section.
type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the live sinks. Loggers derived from it pick up every Apply.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File

	alerts *alertSink
	out    atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with its root logger. sender may be
// nil when no Telegram bot is configured; alerts are then never sent.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	s := &Service{alerts: newAlertSink(sender)}
	s.alerts.setThread(cfg.Telegram.ThreadID)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.out.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetTelegramTarget sets the alert chat. chatID 0 mutes alerts.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.alerts.setChat(chatID)
	s.alerts.setThread(threadID)
}

// Apply rebuilds the sinks. Safe for concurrent use with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled && s.alerts.configure(cfg.Telegram) {
		sinks = append(sinks, s.alerts)
		if !s.alerts.hasChat() {
			fmt.Fprintln(os.Stderr, "logx: telegram alerts enabled but telegram.log_chat_id is not set")
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.out.Store(&zl)
}

func openLogFile(path string) (*os.File, error) {
	if path = strings.TrimSpace(path); path == "" {
		path = defaultLogPath
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

// Close stops the alert worker and closes the log file.
func (s *Service) Close() error {
	s.alerts.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
