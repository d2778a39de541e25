package keysend

import "context"

// Custom record types used by chat-over-keysend clients.
const (
	MessageRecord uint64 = 34349334
	PubkeyRecord  uint64 = 34349339
)

type InvoiceState int

const (
	StateOpen InvoiceState = iota
	StateSettled
	StateCanceled
	StateAccepted
)

func (s InvoiceState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateSettled:
		return "SETTLED"
	case StateCanceled:
		return "CANCELED"
	case StateAccepted:
		return "ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

// SettlementEvent is one invoice update as delivered by the node.
type SettlementEvent struct {
	State InvoiceState
	HTLCs []Htlc

	SettleIndex    uint64
	PaymentHash    string
	AmountPaidMsat int64
}

// Htlc is a single HTLC of an invoice.
type Htlc struct {
	CustomRecords map[uint64][]byte
	// ResolveTime is unix seconds.
	ResolveTime int64
	AmountMsat  uint64
}

// Payload is the decoded content of a keysend chat HTLC.
type Payload struct {
	Message string
	// SenderPubkey is empty when unknown, otherwise 66 lowercase hex chars.
	SenderPubkey string
	// ResolvedAt is the HTLC resolve time in RFC3339.
	ResolvedAt string
}

// Source yields settlement events until the stream ends. The error channel
// carries exactly one value when the stream terminates.
type Source interface {
	Subscribe(ctx context.Context) (<-chan SettlementEvent, <-chan error, error)
}
