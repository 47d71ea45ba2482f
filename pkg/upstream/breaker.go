package upstream

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the upstream while its host's
// breaker is open.
var ErrCircuitOpen = errors.New("upstream circuit open")

// CircuitState represents the current state of a host's circuit breaker.
type CircuitState int

const (
	// CircuitClosed means requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the host tripped and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means one probe request is testing the host.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds configuration for the per-host circuit breakers.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures before the circuit trips.
	Threshold int
	// ResetAfter is how long an open circuit waits before letting a probe through.
	ResetAfter time.Duration
}

// DefaultBreakerConfig trips after 5 consecutive failures and probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, ResetAfter: 30 * time.Second}
}

// circuitBreaker trips open after N consecutive failures and lets a single
// probe through once ResetAfter has elapsed.
type circuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	cfg              BreakerConfig
	lastFailure      time.Time
	probeStarted     time.Time
	state            CircuitState
	now              func() time.Time
}

func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cfg.ResetAfter {
			return fmt.Errorf("%w: failed %d times, last failure %v ago", ErrCircuitOpen,
				cb.consecutiveFails, cb.now().Sub(cb.lastFailure).Round(time.Second))
		}
		cb.state = CircuitHalfOpen
		cb.probeStarted = cb.now()
		return nil
	case CircuitHalfOpen:
		// A probe whose caller went away never reports back.
		if cb.now().Sub(cb.probeStarted) < cb.cfg.ResetAfter {
			return fmt.Errorf("%w: probe in flight", ErrCircuitOpen)
		}
		cb.probeStarted = cb.now()
		return nil
	default:
		return nil
	}
}

func (cb *circuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

func (cb *circuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.cfg.Threshold {
		cb.state = CircuitOpen
	}
}

func (cb *circuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// breakers keeps one circuit per upstream host so a failing API does not
// block exports that point elsewhere.
type breakers struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	byHost map[string]*circuitBreaker
	now    func() time.Time
}

func newBreakers(cfg BreakerConfig) *breakers {
	return &breakers{cfg: cfg, byHost: make(map[string]*circuitBreaker), now: time.Now}
}

func (b *breakers) forHost(host string) *circuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byHost[host]
	if !ok {
		cb = &circuitBreaker{cfg: b.cfg, state: CircuitClosed, now: b.now}
		b.byHost[host] = cb
	}
	return cb
}
