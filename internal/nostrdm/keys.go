package nostrdm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

const DefaultKeyPath = ".privkey"

var ErrInvalidKey = errors.New("invalid nostr key")

// LoadOrCreateKey reads the service secret key from path. The file may hold an
// nsec or 64 hex chars. When the file does not exist a new key is generated
// and written as nsec. created reports whether that happened.
func LoadOrCreateKey(path string) (sk string, created bool, err error) {
	if path == "" {
		path = DefaultKeyPath
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		sk, err = parseSecretKey(strings.TrimSpace(string(raw)))
		if err != nil {
			return "", false, fmt.Errorf("read key %s: %w", path, err)
		}
		return sk, false, nil
	case errors.Is(err, fs.ErrNotExist):
	default:
		return "", false, fmt.Errorf("read key %s: %w", path, err)
	}

	sk = nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return "", false, fmt.Errorf("encode key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", false, fmt.Errorf("create key dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(nsec+"\n"), 0o600); err != nil {
		return "", false, fmt.Errorf("write key %s: %w", path, err)
	}
	return sk, true, nil
}

func parseSecretKey(s string) (string, error) {
	if strings.HasPrefix(s, "nsec1") {
		prefix, v, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		sk, ok := v.(string)
		if prefix != "nsec" || !ok {
			return "", fmt.Errorf("%w: unexpected %q entity", ErrInvalidKey, prefix)
		}
		return sk, nil
	}
	return parseHex32(s)
}

// ParsePubkey accepts an npub or 64 hex chars and returns lowercase hex.
func ParsePubkey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		prefix, v, err := nip19.Decode(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		pk, ok := v.(string)
		if prefix != "npub" || !ok {
			return "", fmt.Errorf("%w: unexpected %q entity", ErrInvalidKey, prefix)
		}
		return pk, nil
	}
	return parseHex32(s)
}

func parseHex32(s string) (string, error) {
	s = strings.ToLower(s)
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: want nip-19 or 64 hex chars", ErrInvalidKey)
	}
	return s, nil
}

// Npub renders a hex pubkey for logs; it returns the input on failure.
func Npub(pk string) string {
	if s, err := nip19.EncodePublicKey(pk); err == nil {
		return s
	}
	return pk
}
