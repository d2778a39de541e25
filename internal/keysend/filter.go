package keysend

// SelectHTLC returns the first HTLC, in source order, that carries a chat
// message. Events that are not settled never qualify.
func SelectHTLC(ev SettlementEvent) (Htlc, bool) {
	if ev.State != StateSettled {
		return Htlc{}, false
	}
	for _, h := range ev.HTLCs {
		if _, ok := h.CustomRecords[MessageRecord]; ok {
			return h, true
		}
	}
	return Htlc{}, false
}
