package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/m-kis/merlya-sub001/internal/observability"
	"github.com/m-kis/merlya-sub001/internal/types"
)

// CommandOutput is the outcome of one remote command.
type CommandOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecOptions carries per-call overrides for Execute.
type ExecOptions struct {
	// Credentials overrides inventory and config-level credentials.
	Credentials CredentialOverrides

	// Timeout bounds command execution. Zero means the manager's
	// configured command timeout.
	Timeout time.Duration
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Pool     *Pool
	Resolver *Resolver
	Planner  *Planner

	DefaultUser    string
	DefaultKeyPath string

	// ConnectTimeout bounds connection establishment; must be shorter
	// than CommandTimeout so a slow dial cannot consume the whole
	// command budget.
	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// DisablePooling makes every direct connection a fresh dial, torn
	// down after the command. The circuit breaker still applies.
	DisablePooling bool

	// Dial establishes the SSH connections the manager makes itself
	// (jump hosts, unpooled directs); the pool carries its own. Defaults
	// to a real dial. Swapped out in tests.
	Dial DialFunc

	Logger  *observability.Logger
	Metrics observability.MetricsRecorder
}

// Manager executes commands on remote hosts over SSH. It resolves the
// target, picks a connection strategy, acquires a pooled connection
// (or builds a jump-host tunnel), and runs the command with a bounded
// timeout.
type Manager struct {
	pool           *Pool
	resolver       *Resolver
	planner        *Planner
	defaultUser    string
	defaultKeyPath string
	connectTimeout time.Duration
	commandTimeout time.Duration
	disablePooling bool
	dial           DialFunc
	tunnel         tunnelFunc
	logger         *observability.Logger
	metrics        observability.MetricsRecorder
}

// tunnelFunc completes an SSH handshake over an established transport,
// as when reaching a target through a jump-host channel. Swapped out in
// tests alongside DialFunc.
type tunnelFunc func(conn net.Conn, addr string, config *ssh.ClientConfig) (Client, error)

func tunnelSSH(conn net.Conn, addr string, config *ssh.ClientConfig) (Client, error) {
	targetConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, err
	}
	return &sshClient{ssh.NewClient(targetConn, chans, reqs)}, nil
}

// NewManager creates a Manager. Pool, Resolver and Planner are required.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 60 * time.Second
	}
	if opts.ConnectTimeout >= opts.CommandTimeout {
		return nil, fmt.Errorf("connect timeout %s must be shorter than command timeout %s",
			opts.ConnectTimeout, opts.CommandTimeout)
	}
	if opts.Dial == nil {
		opts.Dial = dialSSH
	}
	return &Manager{
		pool:           opts.Pool,
		resolver:       opts.Resolver,
		planner:        opts.Planner,
		defaultUser:    opts.DefaultUser,
		defaultKeyPath: opts.DefaultKeyPath,
		connectTimeout: opts.ConnectTimeout,
		commandTimeout: opts.CommandTimeout,
		disablePooling: opts.DisablePooling,
		dial:           opts.Dial,
		tunnel:         tunnelSSH,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}, nil
}

// Execute runs command on host and returns its output. host may be an
// inventory name, a DNS name, or an IP address.
//
// A non-zero remote exit code is not an error: the command ran, and its
// status is reported in CommandOutput.ExitCode. Errors mean the command
// could not be executed at all (resolution, connection, circuit open,
// timeout).
func (m *Manager) Execute(ctx context.Context, host, command string, opts ExecOptions) (CommandOutput, error) {
	resolved := m.resolver.Resolve(ctx, host)
	creds := resolveCredentials(resolved, opts.Credentials, m.defaultUser, m.defaultKeyPath)

	clientConfig, err := buildClientConfig(creds, m.connectTimeout)
	if err != nil {
		return CommandOutput{ExitCode: -1}, err
	}

	strategy := m.planner.Strategy(ctx, resolved.CanonicalName, resolved.IPAddress)

	if m.logger != nil {
		m.logger.Debug("executing remote command",
			"host", resolved.CanonicalName,
			"user", creds.User,
			"method", string(strategy.Method),
			"jump_host", strategy.JumpHost)
	}

	var client Client
	var cleanup func()
	switch {
	case strategy.Method == MethodJump:
		client, cleanup, err = m.connectViaJump(ctx, resolved, strategy.JumpHost, clientConfig)
	case m.disablePooling:
		client, cleanup, err = m.dialDirect(ctx, resolved, clientConfig)
	default:
		client, err = m.pool.Get(ctx, resolved.CanonicalName, resolved.ConnectAddress(), creds.User, clientConfig)
	}
	if err != nil {
		return CommandOutput{ExitCode: -1}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.commandTimeout
	}

	output, err := m.runCommand(ctx, client, resolved.CanonicalName, command, timeout)
	if err != nil {
		// A dead session usually means the pooled transport died
		// underneath us; drop it so the next call redials.
		if strategy.Method == MethodDirect && !m.disablePooling {
			m.pool.Remove(resolved.CanonicalName, creds.User)
		}
		return output, err
	}
	return output, nil
}

// dialDirect establishes an unpooled connection when pooling is
// disabled. The breaker still gates and records the attempt.
func (m *Manager) dialDirect(ctx context.Context, target ResolvedHost, config *ssh.ClientConfig) (Client, func(), error) {
	breaker := m.pool.Breaker()
	if err := breaker.Allow(target.CanonicalName); err != nil {
		return nil, nil, err
	}

	client, err := m.dial(ctx, target.ConnectAddress(), config)
	if err != nil {
		breaker.RecordFailure(target.CanonicalName, err)
		return nil, nil, classifyDialError(target.CanonicalName, err)
	}
	breaker.RecordSuccess(target.CanonicalName)

	return client, func() { _ = client.Close() }, nil
}

// connectViaJump builds a connection to the target tunneled through the
// jump host. The jump connection itself is dialed fresh and torn down
// with the target connection; pooling a client whose transport rides on
// another pooled client would couple their lifetimes.
//
// Both hosts keep circuits of their own in the shared breaker: an
// unreachable bastion stops being redialed once its circuit opens, and
// an unreachable target behind a healthy bastion trips the target's
// circuit the same way a directly reachable one does.
func (m *Manager) connectViaJump(ctx context.Context, target ResolvedHost, jumpHost string, targetConfig *ssh.ClientConfig) (Client, func(), error) {
	breaker := m.pool.Breaker()
	if err := breaker.Allow(target.CanonicalName); err != nil {
		return nil, nil, err
	}

	jumpResolved := m.resolver.Resolve(ctx, jumpHost)
	if err := breaker.Allow(jumpResolved.CanonicalName); err != nil {
		return nil, nil, err
	}

	jumpCreds := resolveCredentials(jumpResolved, CredentialOverrides{}, m.defaultUser, m.defaultKeyPath)
	jumpConfig, err := buildClientConfig(jumpCreds, m.connectTimeout)
	if err != nil {
		return nil, nil, err
	}

	jumpClient, err := m.dial(ctx, jumpResolved.ConnectAddress(), jumpConfig)
	if err != nil {
		breaker.RecordFailure(jumpResolved.CanonicalName, err)
		return nil, nil, types.WrapError(types.SSH_TUNNEL_FAILED,
			fmt.Sprintf("failed to connect to jump host %s", jumpResolved.CanonicalName), err)
	}
	breaker.RecordSuccess(jumpResolved.CanonicalName)

	targetAddr := target.ConnectAddress()
	tunnel, err := jumpClient.Dial("tcp", targetAddr)
	if err != nil {
		_ = jumpClient.Close()
		breaker.RecordFailure(target.CanonicalName, err)
		return nil, nil, types.WrapError(types.SSH_TUNNEL_FAILED,
			fmt.Sprintf("failed to open tunnel to %s via %s", target.CanonicalName, jumpResolved.CanonicalName), err)
	}

	client, err := m.tunnel(tunnel, targetAddr, targetConfig)
	if err != nil {
		_ = tunnel.Close()
		_ = jumpClient.Close()
		breaker.RecordFailure(target.CanonicalName, err)
		return nil, nil, classifyDialError(target.CanonicalName, err)
	}
	breaker.RecordSuccess(target.CanonicalName)

	if m.metrics != nil {
		m.metrics.RecordCounter(observability.MetricSSHDials, 1,
			map[string]string{"host": target.CanonicalName, "status": "success"})
	}
	if m.logger != nil {
		m.logger.Info("established tunneled ssh connection",
			"host", target.CanonicalName, "jump_host", jumpResolved.CanonicalName)
	}

	cleanup := func() {
		_ = client.Close()
		_ = jumpClient.Close()
	}
	return client, cleanup, nil
}

// runCommand executes command over an established connection with a
// bounded wait. On timeout the connection is abandoned rather than
// signaled: the command may still be running remotely, and reporting
// that honestly beats pretending it was killed.
func (m *Manager) runCommand(ctx context.Context, client Client, host, command string, timeout time.Duration) (CommandOutput, error) {
	session, err := client.NewSession()
	if err != nil {
		return CommandOutput{ExitCode: -1}, types.WrapError(types.SSH_PROTOCOL_ERROR,
			fmt.Sprintf("failed to open session on %s", host), err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.SetStdout(&stdout)
	session.SetStderr(&stderr)

	if err := session.Start(command); err != nil {
		return CommandOutput{ExitCode: -1}, types.WrapError(types.SSH_PROTOCOL_ERROR,
			fmt.Sprintf("failed to start command on %s", host), err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err = <-done:
	case <-time.After(timeout):
		return CommandOutput{
			ExitCode: -1,
			Stdout:   sanitizeOutput(stdout.Bytes()),
			Stderr:   sanitizeOutput(stderr.Bytes()),
		}, types.NewRetryableError(types.SSH_COMMAND_TIMEOUT,
			fmt.Sprintf("command on %s did not complete within %s; it may still be running", host, timeout))
	case <-ctx.Done():
		return CommandOutput{
			ExitCode: -1,
			Stdout:   sanitizeOutput(stdout.Bytes()),
			Stderr:   sanitizeOutput(stderr.Bytes()),
		}, types.WrapError(types.SSH_COMMAND_TIMEOUT,
			fmt.Sprintf("command on %s canceled", host), ctx.Err())
	}

	output := CommandOutput{
		ExitCode: 0,
		Stdout:   sanitizeOutput(stdout.Bytes()),
		Stderr:   sanitizeOutput(stderr.Bytes()),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			output.ExitCode = exitErr.ExitStatus()
			return output, nil
		}
		output.ExitCode = -1
		return output, types.WrapError(types.SSH_PROTOCOL_ERROR,
			fmt.Sprintf("command on %s failed without exit status", host), err)
	}
	return output, nil
}

// Probe checks whether host is reachable over SSH without running a
// command. It exercises the full connect path (resolution, strategy,
// pooled dial), so a successful probe leaves a warm connection behind.
func (m *Manager) Probe(ctx context.Context, host string, opts ExecOptions) error {
	resolved := m.resolver.Resolve(ctx, host)
	creds := resolveCredentials(resolved, opts.Credentials, m.defaultUser, m.defaultKeyPath)
	clientConfig, err := buildClientConfig(creds, m.connectTimeout)
	if err != nil {
		return err
	}

	strategy := m.planner.Strategy(ctx, resolved.CanonicalName, resolved.IPAddress)
	if strategy.Method == MethodJump {
		_, cleanup, err := m.connectViaJump(ctx, resolved, strategy.JumpHost, clientConfig)
		if err != nil {
			return err
		}
		cleanup()
		return nil
	}

	if m.disablePooling {
		_, cleanup, err := m.dialDirect(ctx, resolved, clientConfig)
		if err != nil {
			return err
		}
		cleanup()
		return nil
	}

	_, err = m.pool.Get(ctx, resolved.CanonicalName, resolved.ConnectAddress(), creds.User, clientConfig)
	return err
}

// sanitizeOutput strips invalid UTF-8 so downstream JSON encoding and
// model consumption never see broken byte sequences.
func sanitizeOutput(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

