package pipeline

import "sync/atomic"

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Seen          uint64 `json:"seen"`
	Settled       uint64 `json:"settled"`
	Keysend       uint64 `json:"keysend"`
	Dropped       uint64 `json:"dropped"`
	Dispatched    uint64 `json:"dispatched"`
	Failed        uint64 `json:"failed"`
	AliasFallback uint64 `json:"alias_fallback"`
}

type counters struct {
	seen          atomic.Uint64
	settled       atomic.Uint64
	keysend       atomic.Uint64
	dropped       atomic.Uint64
	dispatched    atomic.Uint64
	failed        atomic.Uint64
	aliasFallback atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Seen:          c.seen.Load(),
		Settled:       c.settled.Load(),
		Keysend:       c.keysend.Load(),
		Dropped:       c.dropped.Load(),
		Dispatched:    c.dispatched.Load(),
		Failed:        c.failed.Load(),
		AliasFallback: c.aliasFallback.Load(),
	}
}
