package config

// Config is the on-disk configuration. Every field can be overridden from the
// environment with the NKN_ prefix, e.g. NKN_LND_HOST or NKN_NOSTR_RELAYS
// (comma separated).
type Config struct {
	LND      LNDConfig      `json:"lnd" envPrefix:"LND_"`
	Nostr    NostrConfig    `json:"nostr" envPrefix:"NOSTR_"`
	Alias    AliasConfig    `json:"alias,omitempty" envPrefix:"ALIAS_"`
	Notifier NotifierConfig `json:"notifier,omitempty" envPrefix:"NOTIFIER_"`
	Telegram TelegramConfig `json:"telegram,omitempty" envPrefix:"TELEGRAM_"`
	Logging  LoggingConfig  `json:"logging" envPrefix:"LOGGING_"`
	Report   ReportConfig   `json:"report,omitempty" envPrefix:"REPORT_"`
	Pprof    PprofConfig    `json:"pprof,omitempty" envPrefix:"PPROF_"`
}

type LNDConfig struct {
	// Host is the gRPC address, e.g. "localhost:10009".
	Host         string `json:"host" env:"HOST"`
	TLSCertPath  string `json:"tls_cert_path" env:"TLS_CERT_PATH"`
	MacaroonPath string `json:"macaroon_path" env:"MACAROON_PATH"`
}

type NostrConfig struct {
	// ReceiverPubkey accepts npub or hex.
	ReceiverPubkey string   `json:"receiver_pubkey" env:"RECEIVER_PUBKEY"`
	Relays         []string `json:"relays" env:"RELAYS" envSeparator:","`
	// KeyPath holds the service secret key; generated when missing.
	KeyPath string `json:"key_path,omitempty" env:"KEY_PATH"`
	// PublishTimeout is a Go duration string. Empty means no timeout.
	PublishTimeout string `json:"publish_timeout,omitempty" env:"PUBLISH_TIMEOUT"`
}

type AliasConfig struct {
	// Endpoint defaults to the Amboss GraphQL API.
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`
	// Timeout is a Go duration string. Empty means no timeout.
	Timeout string `json:"timeout,omitempty" env:"TIMEOUT"`
}

type NotifierConfig struct {
	RatePerSec  int `json:"rate_per_sec,omitempty" env:"RATE_PER_SEC"`
	HistorySize int `json:"history_size,omitempty" env:"HISTORY_SIZE"`
}

// TelegramConfig enables the optional Telegram mirror and log sink. Both are
// off while Token is empty.
type TelegramConfig struct {
	Token          string `json:"token,omitempty" env:"TOKEN"`
	MirrorChatID   int64  `json:"mirror_chat_id,omitempty" env:"MIRROR_CHAT_ID"`
	MirrorThreadID int    `json:"mirror_thread_id,omitempty" env:"MIRROR_THREAD_ID"`
	LogChatID      int64  `json:"log_chat_id,omitempty" env:"LOG_CHAT_ID"`
}

type LoggingConfig struct {
	Level    string          `json:"level" env:"LEVEL"`
	Console  bool            `json:"console" env:"CONSOLE"`
	File     LoggingFile     `json:"file" envPrefix:"FILE_"`
	Telegram LoggingTelegram `json:"telegram" envPrefix:"TELEGRAM_"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Path    string `json:"path" env:"PATH"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled" env:"ENABLED"`
	ThreadID   int    `json:"thread_id" env:"THREAD_ID"`
	MinLevel   string `json:"min_level" env:"MIN_LEVEL"`
	RatePerSec int    `json:"rate_per_sec" env:"RATE_PER_SEC"`
}

// ReportConfig controls the periodic stats log line.
type ReportConfig struct {
	Enabled bool `json:"enabled" env:"ENABLED"`
	// Schedule is a standard 5-field cron spec or a descriptor like "@hourly".
	Schedule string `json:"schedule,omitempty" env:"SCHEDULE"`
}

// PprofConfig controls the optional debug HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled" env:"ENABLED"`
	Addr          string `json:"addr,omitempty" env:"ADDR"`     // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty" env:"PREFIX"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty" env:"TOKEN"`   // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty" env:"ALLOW_INSECURE"`
}
