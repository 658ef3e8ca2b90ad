package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/m-kis/merlya-sub001/internal/observability"
	"github.com/m-kis/merlya-sub001/internal/types"
)

// Client is the subset of *ssh.Client the pool and manager rely on.
// Narrowing the surface keeps the pool testable without a live sshd.
type Client interface {
	// NewSession opens a session for one command execution. Sessions are
	// not multiplexed by the pool; concurrent commands over one client
	// must be serialized by the caller.
	NewSession() (Session, error)

	// Dial opens a direct-tcpip channel through the connection. Used for
	// jump-host tunneling.
	Dial(network, addr string) (net.Conn, error)

	// SendRequest sends a global request; used as a liveness probe.
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)

	// Close tears the connection down.
	Close() error
}

// Session is the subset of *ssh.Session the manager drives for one
// command. Output sinks are set through methods because *ssh.Session
// exposes them as struct fields, which an interface cannot.
type Session interface {
	Start(command string) error
	Wait() error
	Close() error
	SetStdout(w io.Writer)
	SetStderr(w io.Writer)
}

// DialFunc establishes an authenticated SSH connection to addr.
// Swapped out in tests.
type DialFunc func(ctx context.Context, addr string, config *ssh.ClientConfig) (Client, error)

// dialSSH is the production DialFunc: a bounded TCP dial followed by the
// SSH handshake over that conn.
func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (Client, error) {
	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &sshClient{ssh.NewClient(sshConn, chans, reqs)}, nil
}

// sshClient adapts *ssh.Client to the Client interface.
type sshClient struct {
	*ssh.Client
}

func (c *sshClient) NewSession() (Session, error) {
	session, err := c.Client.NewSession()
	if err != nil {
		return nil, err
	}
	return &sshSession{session}, nil
}

// sshSession adapts *ssh.Session to the Session interface.
type sshSession struct {
	*ssh.Session
}

func (s *sshSession) SetStdout(w io.Writer) { s.Session.Stdout = w }
func (s *sshSession) SetStderr(w io.Writer) { s.Session.Stderr = w }

// pooledConnection wraps a live client with its reuse bookkeeping.
type pooledConnection struct {
	client   Client
	created  time.Time
	lastUsed time.Time
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	// MaxIdleTime is how long an unused connection stays reusable.
	// Default: 1 hour.
	MaxIdleTime time.Duration

	// Breaker gates connection attempts per canonical host. A nil
	// breaker is replaced with one using default settings.
	Breaker *CircuitBreaker

	// Dial establishes connections; defaults to a real SSH dial.
	Dial DialFunc

	Logger  *observability.Logger
	Metrics observability.MetricsRecorder
}

// Pool is a registry of live, authenticated SSH connections keyed by
// "user@canonical-host". Reusing connections avoids repeated interactive
// auth (agent confirmation, 2FA) on every command.
//
// The same canonical hostname keys both the pool and the circuit
// breaker, so connecting via IP and via inventory name shares one pooled
// connection and one failure count.
//
// A single pool-wide mutex guards the connection map. Network I/O (the
// dial and the liveness probe) happens outside the lock so a slow
// handshake to one host never stalls Get for another; a double-check on
// insert resolves concurrent dials for the same key.
type Pool struct {
	mu      sync.Mutex
	conns   map[string]*pooledConnection
	breaker *CircuitBreaker
	maxIdle time.Duration
	dial    DialFunc
	logger  *observability.Logger
	metrics observability.MetricsRecorder
}

// NewPool creates a connection pool.
func NewPool(opts PoolOptions) *Pool {
	if opts.MaxIdleTime <= 0 {
		opts.MaxIdleTime = time.Hour
	}
	if opts.Breaker == nil {
		opts.Breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	}
	if opts.Dial == nil {
		opts.Dial = dialSSH
	}
	return &Pool{
		conns:   make(map[string]*pooledConnection),
		breaker: opts.Breaker,
		maxIdle: opts.MaxIdleTime,
		dial:    opts.Dial,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Breaker exposes the embedded circuit breaker for callers that bypass
// the pool (jump-host tunnels) but must share its failure accounting.
func (p *Pool) Breaker() *CircuitBreaker {
	return p.breaker
}

// Get returns a live connection for user@canonical-host, reusing a pooled
// one when it is young enough and its transport still responds, dialing
// fresh otherwise.
//
// The circuit breaker is consulted before anything else; when the circuit
// is open a *CircuitOpenError is returned without any network attempt.
//
// The returned client is managed by the pool and must not be closed by
// the caller.
func (p *Pool) Get(ctx context.Context, canonicalHost, addr, user string, config *ssh.ClientConfig) (Client, error) {
	if canonicalHost == "" {
		return nil, fmt.Errorf("canonical host cannot be empty")
	}

	if err := p.breaker.Allow(canonicalHost); err != nil {
		if p.metrics != nil {
			p.metrics.RecordCounter(observability.MetricCircuitOpens, 1,
				map[string]string{"host": canonicalHost})
		}
		return nil, err
	}

	key := poolKey(user, canonicalHost)
	if client := p.reuse(key); client != nil {
		return client, nil
	}

	// Dial outside the lock so a slow handshake to one host cannot
	// stall Get for unrelated hosts.
	client, err := p.dial(ctx, addr, config)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordCounter(observability.MetricSSHDials, 1,
			map[string]string{"host": canonicalHost, "status": status})
	}
	if err != nil {
		p.breaker.RecordFailure(canonicalHost, err)
		return nil, classifyDialError(canonicalHost, err)
	}
	p.breaker.RecordSuccess(canonicalHost)

	p.mu.Lock()
	if existing, exists := p.conns[key]; exists {
		// A concurrent Get dialed the same key while we were; keep the
		// pooled connection and drop ours.
		existing.lastUsed = time.Now()
		winner := existing.client
		p.mu.Unlock()
		_ = client.Close()
		return winner, nil
	}
	now := time.Now()
	p.conns[key] = &pooledConnection{client: client, created: now, lastUsed: now}
	size := len(p.conns)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordGauge(observability.MetricPoolSize, float64(size), nil)
	}
	if p.logger != nil {
		p.logger.Info("established ssh connection", "host", canonicalHost, "user", user)
	}
	return client, nil
}

// reuse returns the pooled live connection for key, or nil after
// evicting an idle-expired or dead one. The liveness probe runs outside
// the lock.
func (p *Pool) reuse(key string) Client {
	p.mu.Lock()
	pooled, exists := p.conns[key]
	if !exists {
		p.mu.Unlock()
		return nil
	}
	if time.Since(pooled.lastUsed) >= p.maxIdle {
		_ = pooled.client.Close()
		delete(p.conns, key)
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Debug("evicted stale connection", "key", key)
		}
		return nil
	}
	pooled.lastUsed = time.Now()
	client := pooled.client
	p.mu.Unlock()

	if p.alive(client) {
		return client
	}

	p.mu.Lock()
	if current, ok := p.conns[key]; ok && current.client == client {
		delete(p.conns, key)
	}
	p.mu.Unlock()
	_ = client.Close()
	if p.logger != nil {
		p.logger.Debug("evicted dead connection", "key", key)
	}
	return nil
}

// Remove closes and drops the connection for user@canonical-host.
// Removing a missing entry is a no-op.
func (p *Pool) Remove(canonicalHost, user string) {
	key := poolKey(user, canonicalHost)

	p.mu.Lock()
	defer p.mu.Unlock()

	if pooled, exists := p.conns[key]; exists {
		_ = pooled.client.Close()
		delete(p.conns, key)
	}
}

// CleanupStale sweeps and closes idle-expired connections. Returns the
// number of connections evicted.
func (p *Pool) CleanupStale() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for key, pooled := range p.conns {
		if time.Since(pooled.lastUsed) >= p.maxIdle {
			_ = pooled.client.Close()
			delete(p.conns, key)
			evicted++
		}
	}
	return evicted
}

// CloseAll force-closes every pooled connection. Used at shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, pooled := range p.conns {
		_ = pooled.client.Close()
		delete(p.conns, key)
	}
}

// Len returns the number of pooled connections, live or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.conns)
}

// Stats returns a snapshot of pooled connections for diagnostics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Connections: make(map[string]ConnectionStats, len(p.conns))}
	for key, pooled := range p.conns {
		stats.Connections[key] = ConnectionStats{
			Created:  pooled.created,
			LastUsed: pooled.lastUsed,
		}
	}
	return stats
}

// alive probes the transport with a keepalive request.
func (p *Pool) alive(client Client) bool {
	_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// PoolStats is a snapshot of the pool contents.
type PoolStats struct {
	Connections map[string]ConnectionStats
}

// ConnectionStats describes one pooled connection.
type ConnectionStats struct {
	Created  time.Time
	LastUsed time.Time
}

func poolKey(user, canonicalHost string) string {
	return user + "@" + canonicalHost
}

// classifyDialError wraps a dial failure with the error code the
// executor's retry loop branches on.
func classifyDialError(host string, err error) error {
	msg := fmt.Sprintf("failed to connect to %s", host)
	switch {
	case isAuthError(err):
		return types.WrapError(types.SSH_AUTH_FAILED, msg, err)
	case isTimeoutError(err):
		return types.WrapError(types.SSH_CONNECT_TIMEOUT, msg, err)
	default:
		return types.WrapError(types.SSH_CONNECT_FAILED, msg, err)
	}
}

// isAuthError reports whether err is an SSH authentication rejection.
// x/crypto/ssh does not export a typed client-side auth error, so this
// matches the handshake failure message.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied")
}

// isTimeoutError reports whether err is a dial or handshake timeout.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Default process-wide pool. The pool is constructed explicitly and
// injected at startup; this accessor exists for convenience call sites
// (diagnostic commands) that have no handle on the wired instance.
var (
	defaultPool   *Pool
	defaultPoolMu sync.Mutex
)

// SetDefault installs the process-wide pool instance.
func SetDefault(p *Pool) {
	defaultPoolMu.Lock()
	defer defaultPoolMu.Unlock()
	defaultPool = p
}

// Default returns the process-wide pool, creating one with default
// options on first use.
func Default() *Pool {
	defaultPoolMu.Lock()
	defer defaultPoolMu.Unlock()
	if defaultPool == nil {
		defaultPool = NewPool(PoolOptions{})
	}
	return defaultPool
}
