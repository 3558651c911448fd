package nvec

import "sync/atomic"

// Stats is a snapshot of the chip's counters.
type Stats struct {
	SpuriousIRQs    uint64 // interrupts without the IRQ bit
	Desyncs         uint64 // unexpected status in some state
	AddressMismatch uint64
	Overflows       uint64 // received bytes dropped
	Underflows      uint64 // fill bytes sent past the end of a request
	PrematureEnds   uint64 // block reads stopped before the whole request
	Unsolicited     uint64 // responses with no command waiting
	Malformed       uint64 // frames too short to decode
	EventsQueued    uint64
	EventsDelivered uint64
	EventsDropped   uint64 // pool exhausted
	ListenerPanics  uint64
	Retries         uint64
	Timeouts        uint64
	ECErrors        uint64 // responses with a non-success status
}

type counters struct {
	spurious        atomic.Uint64
	desyncs         atomic.Uint64
	addressMismatch atomic.Uint64
	overflows       atomic.Uint64
	underflows      atomic.Uint64
	premature       atomic.Uint64
	unsolicited     atomic.Uint64
	malformed       atomic.Uint64
	queued          atomic.Uint64
	delivered       atomic.Uint64
	dropped         atomic.Uint64
	panics          atomic.Uint64
	retries         atomic.Uint64
	timeouts        atomic.Uint64
	ecErrors        atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		SpuriousIRQs:    c.spurious.Load(),
		Desyncs:         c.desyncs.Load(),
		AddressMismatch: c.addressMismatch.Load(),
		Overflows:       c.overflows.Load(),
		Underflows:      c.underflows.Load(),
		PrematureEnds:   c.premature.Load(),
		Unsolicited:     c.unsolicited.Load(),
		Malformed:       c.malformed.Load(),
		EventsQueued:    c.queued.Load(),
		EventsDelivered: c.delivered.Load(),
		EventsDropped:   c.dropped.Load(),
		ListenerPanics:  c.panics.Load(),
		Retries:         c.retries.Load(),
		Timeouts:        c.timeouts.Load(),
		ECErrors:        c.ecErrors.Load(),
	}
}
