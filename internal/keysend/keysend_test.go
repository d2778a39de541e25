package keysend

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const testPubkey = "02aa" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789ab" + "bb"

func chatHTLC(msg string, resolve int64) Htlc {
	return Htlc{
		CustomRecords: map[uint64][]byte{MessageRecord: []byte(msg)},
		ResolveTime:   resolve,
	}
}

func TestSelectHTLCSkipsUnsettled(t *testing.T) {
	t.Parallel()
	for _, st := range []InvoiceState{StateOpen, StateCanceled, StateAccepted} {
		ev := SettlementEvent{State: st, HTLCs: []Htlc{chatHTLC("hi", 1)}}
		if _, ok := SelectHTLC(ev); ok {
			t.Fatalf("state %v selected an HTLC", st)
		}
	}
}

func TestSelectHTLCRequiresMessageRecord(t *testing.T) {
	t.Parallel()
	ev := SettlementEvent{State: StateSettled, HTLCs: []Htlc{
		{CustomRecords: map[uint64][]byte{PubkeyRecord: {0x02}}},
		{CustomRecords: nil},
	}}
	if _, ok := SelectHTLC(ev); ok {
		t.Fatal("selected an HTLC without message record")
	}
}

func TestSelectHTLCFirstMatchWins(t *testing.T) {
	t.Parallel()
	ev := SettlementEvent{State: StateSettled, HTLCs: []Htlc{
		{CustomRecords: map[uint64][]byte{5482373484: {1}}},
		chatHTLC("first", 10),
		chatHTLC("second", 20),
	}}
	h, ok := SelectHTLC(ev)
	if !ok {
		t.Fatal("expected a match")
	}
	if string(h.CustomRecords[MessageRecord]) != "first" {
		t.Fatalf("selected %q, want first", h.CustomRecords[MessageRecord])
	}
}

func TestExtractPrefersPubkeyRecord(t *testing.T) {
	t.Parallel()
	key := bytes.Repeat([]byte{0xab}, 32)
	h := chatHTLC("hello "+testPubkey, 1700000000)
	h.CustomRecords[PubkeyRecord] = key

	p, src, err := Extract(h)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if src != PubkeyFromTLV {
		t.Fatalf("source = %q, want tlv", src)
	}
	if p.SenderPubkey != hex.EncodeToString(key) {
		t.Fatalf("pubkey = %q, want hex of record", p.SenderPubkey)
	}
}

func TestExtractPubkeyFromMessage(t *testing.T) {
	t.Parallel()
	p, src, err := Extract(chatHTLC("gm from "+testPubkey, 1700000000))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if src != PubkeyFromMsg || p.SenderPubkey != testPubkey {
		t.Fatalf("got (%q, %q), want (%q, message)", p.SenderPubkey, src, testPubkey)
	}
	if p.ResolvedAt != "2023-11-14T22:13:20Z" {
		t.Fatalf("resolved_at = %q", p.ResolvedAt)
	}
}

func TestPubkeyFromText(t *testing.T) {
	t.Parallel()
	other := "03" + strings.Repeat("cd", 32)
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{name: "trailing", msg: "gm from " + testPubkey, want: testPubkey},
		{name: "middle", msg: "ping " + testPubkey + " thanks", want: testPubkey},
		{name: "last of many", msg: "a " + testPubkey + " b " + other + " c", want: other},
		{name: "after newline", msg: "hello\n" + testPubkey, want: testPubkey},
		{name: "needs leading whitespace", msg: testPubkey, want: ""},
		{name: "too long run", msg: "x " + testPubkey + "ff", want: ""},
		{name: "too short run", msg: "x " + testPubkey[:64], want: ""},
		{name: "uppercase", msg: "x " + strings.ToUpper(testPubkey), want: ""},
		{name: "glued suffix", msg: "x " + testPubkey + "!", want: ""},
		{name: "none", msg: "just a tip", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := PubkeyFromText(tt.msg); got != tt.want {
				t.Fatalf("PubkeyFromText(%q) = %q, want %q", tt.msg, got, tt.want)
			}
		})
	}
}

func TestExtractInvalidUTF8(t *testing.T) {
	t.Parallel()
	h := Htlc{CustomRecords: map[uint64][]byte{MessageRecord: {0xff, 0xfe}}, ResolveTime: 1}
	_, _, err := Extract(h)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Len != 2 {
		t.Fatalf("err = %#v, want *DecodeError{Len: 2}", err)
	}
}

func TestExtractTimestampOutOfRange(t *testing.T) {
	t.Parallel()
	_, _, err := Extract(chatHTLC("hi", 253402300800)) // 10000-01-01T00:00:00Z
	if !errors.Is(err, ErrTimestamp) {
		t.Fatalf("err = %v, want ErrTimestamp", err)
	}
	if _, _, err := Extract(chatHTLC("hi", 253402300799)); err != nil {
		t.Fatalf("9999-12-31T23:59:59Z should format: %v", err)
	}
}

func TestFormatWithoutSender(t *testing.T) {
	t.Parallel()
	got := Format(Payload{Message: "test", ResolvedAt: "2023-11-14T22:13:20Z"}, "")
	want := "Keysend message received!\n\nAt 2023-11-14T22:13:20Z:\n\n**test**"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}
}

func TestFormatWithSender(t *testing.T) {
	t.Parallel()
	p := Payload{Message: "*hi* [x](y)", ResolvedAt: "2023-11-14T22:13:20Z", SenderPubkey: testPubkey}

	got := Format(p, "ACINQ")
	want := "Keysend message received!\n\nAt 2023-11-14T22:13:20Z:\n\n***hi* [x](y)**" +
		"\n\nFrom node [ACINQ](https://amboss.space/node/" + testPubkey + ")"
	if got != want {
		t.Fatalf("Format = %q, want %q", got, want)
	}

	if got := Format(p, ""); !strings.Contains(got, "["+testPubkey+"]") {
		t.Fatalf("empty name should fall back to pubkey: %q", got)
	}
}
