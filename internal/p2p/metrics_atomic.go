package p2p

import (
	"sync"
	"sync/atomic"
)

type AtomicMetrics struct {
	delivered  atomic.Uint64
	forwarded  atomic.Uint64
	sentDirect atomic.Uint64
	sentFlood  atomic.Uint64

	mu      sync.Mutex
	dropped map[string]uint64
}

func (m *AtomicMetrics) IncDelivered() { m.delivered.Add(1) }
func (m *AtomicMetrics) IncForwarded() { m.forwarded.Add(1) }

func (m *AtomicMetrics) IncDropped(reason string) {
	m.mu.Lock()
	if m.dropped == nil {
		m.dropped = make(map[string]uint64)
	}
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *AtomicMetrics) IncSent(direct bool) {
	if direct {
		m.sentDirect.Add(1)
	} else {
		m.sentFlood.Add(1)
	}
}

// Snapshot returns current counters. Drops appear as "dropped_<reason>".
func (m *AtomicMetrics) Snapshot() map[string]uint64 {
	out := map[string]uint64{
		"delivered":   m.delivered.Load(),
		"forwarded":   m.forwarded.Load(),
		"sent_direct": m.sentDirect.Load(),
		"sent_flood":  m.sentFlood.Load(),
	}
	m.mu.Lock()
	for reason, n := range m.dropped {
		out["dropped_"+reason] = n
	}
	m.mu.Unlock()
	return out
}
