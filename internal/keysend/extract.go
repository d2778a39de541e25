package keysend

import (
	"encoding/hex"
	"errors"
	"regexp"
	"time"
	"unicode/utf8"
)

// textPubkeyRe finds a node pubkey pasted into the message body. The leading
// ".*" is greedy, so when several candidates exist the last one wins.
var textPubkeyRe = regexp.MustCompile(`^.*\s+([0-9a-f]{66})(?:\s.*)?$`)

var errYearRange = errors.New("year outside of range [0,9999]")

// PubkeySource tells where Extract found the sender pubkey.
type PubkeySource string

const (
	PubkeyNone    PubkeySource = ""
	PubkeyFromTLV PubkeySource = "tlv"
	PubkeyFromMsg PubkeySource = "message"
)

// Extract decodes the chat HTLC selected by SelectHTLC.
func Extract(h Htlc) (Payload, PubkeySource, error) {
	raw := h.CustomRecords[MessageRecord]
	if !utf8.Valid(raw) {
		return Payload{}, PubkeyNone, &DecodeError{Len: len(raw)}
	}
	msg := string(raw)

	resolvedAt, err := FormatResolveTime(h.ResolveTime)
	if err != nil {
		return Payload{}, PubkeyNone, err
	}

	p := Payload{Message: msg, ResolvedAt: resolvedAt}
	src := PubkeyNone
	if pk, ok := h.CustomRecords[PubkeyRecord]; ok {
		p.SenderPubkey = hex.EncodeToString(pk)
		src = PubkeyFromTLV
	} else if pk := PubkeyFromText(msg); pk != "" {
		p.SenderPubkey = pk
		src = PubkeyFromMsg
	}
	return p, src, nil
}

// FormatResolveTime renders unix seconds as RFC3339 in UTC.
func FormatResolveTime(unix int64) (string, error) {
	t := time.Unix(unix, 0).UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return "", &TimestampError{Unix: unix, Err: errYearRange}
	}
	return t.Format(time.RFC3339), nil
}

// PubkeyFromText returns the last whitespace-preceded run of exactly 66
// lowercase hex characters in msg, or "" when there is none.
func PubkeyFromText(msg string) string {
	m := textPubkeyRe.FindStringSubmatch(msg)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
