package remote

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before a
	// temporary circuit opens. Default: 3
	FailureThreshold int

	// Cooldown is how long a temporary circuit stays open. Once it
	// elapses the circuit resets and one fresh attempt is allowed.
	// Default: 5 minutes
	Cooldown time.Duration

	// PermanentThreshold is the failure count at which the circuit opens
	// permanently, requiring an operator reset. Default: 10
	PermanentThreshold int
}

// DefaultCircuitBreakerConfig returns a configuration with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:   3,
		Cooldown:           5 * time.Minute,
		PermanentThreshold: 10,
	}
}

// hostCircuit tracks failure state for a single canonical host.
type hostCircuit struct {
	host        string
	failures    int
	lastFailure time.Time
	lastError   string

	// permanent marks circuits opened by unrecoverable error classes
	// (DNS resolution failures) or by reaching PermanentThreshold.
	permanent bool
}

// CircuitBreaker tracks connection failures per canonical host and blocks
// new attempts to hosts that keep failing. It is the primary backpressure
// mechanism of the connection pool: it stops the executor from hammering
// an unreachable host with fresh dials.
//
// Two circuit classes exist:
//
//   - Temporary: opened after FailureThreshold consecutive failures.
//     Rejects attempts until Cooldown elapses, then clears itself and
//     allows one retry.
//   - Permanent: opened by DNS-class errors or PermanentThreshold
//     failures. Rejects until an operator calls Reset.
//
// Any successful connection clears the host's state entirely.
//
// Keys MUST be canonical hostnames. Connecting via "10.0.0.5" and via
// "db-prod-01" to the same machine shares one failure count; callers
// cannot bypass the breaker by alternating identifiers.
//
// Thread-safe: all methods can be called concurrently.
type CircuitBreaker struct {
	config   CircuitBreakerConfig
	mu       sync.Mutex
	circuits map[string]*hostCircuit
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Minute
	}
	if config.PermanentThreshold <= 0 {
		config.PermanentThreshold = 10
	}
	return &CircuitBreaker{
		config:   config,
		circuits: make(map[string]*hostCircuit),
	}
}

// Allow checks whether a connection attempt to the canonical host may
// proceed. Returns nil to proceed, or a *CircuitOpenError when the
// circuit is open. Callers must branch on the error rather than retry
// blindly; it represents a policy decision, not a transient fault.
func (cb *CircuitBreaker) Allow(host string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit, exists := cb.circuits[host]
	if !exists {
		return nil
	}

	if circuit.permanent {
		return &CircuitOpenError{
			Host:      host,
			Permanent: true,
			LastError: circuit.lastError,
		}
	}

	if circuit.failures >= cb.config.FailureThreshold {
		retryAfter := circuit.lastFailure.Add(cb.config.Cooldown)
		if time.Now().Before(retryAfter) {
			return &CircuitOpenError{
				Host:       host,
				RetryAfter: retryAfter,
				LastError:  circuit.lastError,
			}
		}
		// Cooldown elapsed: clear the state so one fresh attempt runs
		// with a clean failure count.
		delete(cb.circuits, host)
	}

	return nil
}

// RecordSuccess clears all failure state for the canonical host.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	delete(cb.circuits, host)
}

// RecordFailure records a failed connection attempt. DNS-class errors
// open the circuit permanently; otherwise the failure count accumulates
// toward the temporary and permanent thresholds.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit, exists := cb.circuits[host]
	if !exists {
		circuit = &hostCircuit{host: host}
		cb.circuits[host] = circuit
	}

	circuit.failures++
	circuit.lastFailure = time.Now()
	if err != nil {
		circuit.lastError = err.Error()
	}

	if isDNSError(err) || circuit.failures >= cb.config.PermanentThreshold {
		circuit.permanent = true
	}
}

// Reset clears the circuit for one canonical host. Operator escape hatch.
func (cb *CircuitBreaker) Reset(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	delete(cb.circuits, host)
}

// ResetAll clears every circuit.
func (cb *CircuitBreaker) ResetAll() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.circuits = make(map[string]*hostCircuit)
}

// Stats returns a snapshot of all tracked circuits for diagnostics.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stats := CircuitBreakerStats{
		Hosts: make(map[string]HostCircuitStats, len(cb.circuits)),
	}

	now := time.Now()
	for host, circuit := range cb.circuits {
		open := circuit.permanent ||
			(circuit.failures >= cb.config.FailureThreshold &&
				now.Before(circuit.lastFailure.Add(cb.config.Cooldown)))
		if open {
			stats.OpenCount++
		}
		stats.Hosts[host] = HostCircuitStats{
			Failures:    circuit.failures,
			LastFailure: circuit.lastFailure,
			LastError:   circuit.lastError,
			Open:        open,
			Permanent:   circuit.permanent,
		}
	}

	return stats
}

// CircuitBreakerStats provides aggregate statistics about all circuits.
type CircuitBreakerStats struct {
	// OpenCount is the number of circuits currently rejecting attempts
	OpenCount int

	// Hosts maps canonical hostnames to their individual stats
	Hosts map[string]HostCircuitStats
}

// HostCircuitStats provides statistics about a single host circuit.
type HostCircuitStats struct {
	Failures    int
	LastFailure time.Time
	LastError   string
	Open        bool
	Permanent   bool
}

// CircuitOpenError is returned when a circuit is open and connection
// attempts to the host are blocked.
type CircuitOpenError struct {
	Host       string
	Permanent  bool
	RetryAfter time.Time
	LastError  string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("host %s is unreachable (circuit permanently open, last error: %s); reset the circuit breaker to retry",
			e.Host, e.LastError)
	}
	remaining := time.Until(e.RetryAfter).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("host %s is currently unreachable, retry in %s (last error: %s)",
		e.Host, remaining, e.LastError)
}

// isDNSError reports whether err is a hostname-resolution failure.
// These are unrecoverable without operator intervention (a typo or a
// decommissioned host), so they open the circuit permanently.
func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
