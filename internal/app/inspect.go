package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"keysendnotifier/internal/config"
	"keysendnotifier/internal/nostrdm"
)

// CheckConfig loads the config at path and runs every check New would,
// without touching the network or the key file.
func CheckConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return nil, err
	}
	if err := validateReload(context.Background(), cfg); err != nil {
		return nil, err
	}
	if _, err := config.ParseDuration("alias.timeout", cfg.Alias.Timeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Identity is the service's nostr identity as stored on disk.
type Identity struct {
	KeyPath string
	Pubkey  string
	Created bool
}

func (id Identity) Npub() string { return nostrdm.Npub(id.Pubkey) }

// LoadIdentity reads the service key named by the config at path, creating
// it when missing.
func LoadIdentity(path string) (Identity, error) {
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return Identity{}, err
	}
	kp := keyPath(cfg)
	sk, created, err := nostrdm.LoadOrCreateKey(kp)
	if err != nil {
		return Identity{}, err
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Identity{}, fmt.Errorf("derive pubkey: %w", err)
	}
	return Identity{KeyPath: kp, Pubkey: pk, Created: created}, nil
}

// Summary renders the parts of cfg an operator usually wants to confirm.
func Summary(cfg *config.Config) []string {
	nc, _ := mapNostrConfig(cfg)
	timeout := "unbounded"
	if nc.PublishTimeout > 0 {
		timeout = nc.PublishTimeout.Round(time.Millisecond).String()
	}
	out := []string{
		"lnd:       " + cfg.LND.Host,
		"receiver:  " + nostrdm.Npub(nc.Receiver),
		fmt.Sprintf("relays:    %d (publish timeout %s)", len(nc.Relays), timeout),
		"key:       " + keyPath(cfg),
	}
	if target, ok := mirrorTarget(cfg); ok {
		out = append(out, fmt.Sprintf("mirror:    telegram chat %d", target.ChatID))
	}
	rc := mapReportConfig(cfg)
	if rc.Enabled {
		out = append(out, "report:    "+rc.Schedule)
	}
	if pc := mapPprofConfig(cfg); pc.Enabled {
		addr := pc.Addr
		if addr == "" {
			addr = "default address"
		}
		out = append(out, "pprof:     "+addr)
	}
	return out
}
