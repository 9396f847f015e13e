package p2p

// Metrics is intentionally tiny and dependency-free.
// Implementations must be thread-safe.
type Metrics interface {
	IncDelivered()
	IncForwarded()
	IncDropped(reason string)
	IncSent(direct bool)
}

// NoopMetrics is the default.
type NoopMetrics struct{}

func (NoopMetrics) IncDelivered()            {}
func (NoopMetrics) IncForwarded()            {}
func (NoopMetrics) IncDropped(reason string) {}
func (NoopMetrics) IncSent(direct bool)      {}
