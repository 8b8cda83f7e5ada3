package retriever

import (
	"sync"
	"time"
)

// circuitState is the breaker state for one node.
type circuitState int

const (
	circuitClosed   circuitState = iota // requests flow through
	circuitHalfOpen                     // one probe allowed to test recovery
	circuitOpen                         // requests denied until cooldown
)

// breaker is a per-node circuit breaker. Consecutive failures past the
// threshold open the circuit; after the cooldown one probe is allowed,
// and its outcome closes or reopens the circuit.
type breaker struct {
	mu        sync.Mutex
	node      string
	threshold int
	cooldown  time.Duration

	state         circuitState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

func newBreaker(node string, threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{node: node, threshold: threshold, cooldown: cooldown}
}

// allow reports whether a request may proceed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = circuitHalfOpen
			b.probeInFlight = true
			b.publishState()
			return true
		}
		return false
	default: // half-open
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
}

// success records a successful request and closes the circuit.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = circuitClosed
	b.failures = 0
	b.probeInFlight = false
	b.publishState()
}

// failure records a failed request. A failed probe reopens immediately.
func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
		b.publishState()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = circuitOpen
		b.openedAt = time.Now()
		b.publishState()
	}
}

// publishState updates the gauge. Caller holds the lock.
func (b *breaker) publishState() {
	var v float64
	switch b.state {
	case circuitHalfOpen:
		v = 1
	case circuitOpen:
		v = 2
	}
	NodeCircuitState.WithLabelValues(b.node).Set(v)
}
