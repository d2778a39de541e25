package lightning

import (
	"encoding/hex"

	"github.com/lightningnetwork/lnd/lnrpc"

	"keysendnotifier/internal/keysend"
)

func convertState(s lnrpc.Invoice_InvoiceState) keysend.InvoiceState {
	switch s {
	case lnrpc.Invoice_SETTLED:
		return keysend.StateSettled
	case lnrpc.Invoice_CANCELED:
		return keysend.StateCanceled
	case lnrpc.Invoice_ACCEPTED:
		return keysend.StateAccepted
	default:
		return keysend.StateOpen
	}
}

func convertInvoice(inv *lnrpc.Invoice) keysend.SettlementEvent {
	if inv == nil {
		return keysend.SettlementEvent{}
	}
	ev := keysend.SettlementEvent{
		State:          convertState(inv.State),
		SettleIndex:    inv.SettleIndex,
		PaymentHash:    hex.EncodeToString(inv.RHash),
		AmountPaidMsat: inv.AmtPaidMsat,
	}
	if len(inv.Htlcs) > 0 {
		ev.HTLCs = make([]keysend.Htlc, 0, len(inv.Htlcs))
	}
	for _, h := range inv.Htlcs {
		if h == nil {
			continue
		}
		ev.HTLCs = append(ev.HTLCs, keysend.Htlc{
			CustomRecords: h.CustomRecords,
			ResolveTime:   h.ResolveTime,
			AmountMsat:    h.AmtMsat,
		})
	}
	return ev
}
