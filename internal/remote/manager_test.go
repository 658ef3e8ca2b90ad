package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/m-kis/merlya-sub001/internal/inventory"
	"github.com/m-kis/merlya-sub001/internal/knowledge"
	"github.com/m-kis/merlya-sub001/internal/types"
)

// fakeSession scripts one remote command execution.
type fakeSession struct {
	startErr error
	waitErr  error
	waitFor  time.Duration
	stdout   string
	closed   bool
}

func (s *fakeSession) Start(string) error { return s.startErr }

func (s *fakeSession) Wait() error {
	if s.waitFor > 0 {
		time.Sleep(s.waitFor)
	}
	return s.waitErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) SetStdout(w io.Writer) { _, _ = io.WriteString(w, s.stdout) }
func (s *fakeSession) SetStderr(io.Writer)   {}

func newTestManager(t *testing.T, dialer *countingDialer) (*Manager, *Pool) {
	t.Helper()

	pool := newTestPool(dialer, time.Hour)
	// No per-host key path: the manager falls through to the default
	// key, which exists on disk so config building succeeds.
	resolver := NewResolver(newMemoryHostStore(&inventory.Host{
		Name:      "db-prod-01",
		IPAddress: "10.0.0.5",
		SSHUser:   "deploy",
	}), time.Second, nil)
	planner := NewPlanner(nil, resolver, 22, time.Second, nil)
	planner.probe = func(_ context.Context, _ string, _ time.Duration) bool { return true }

	mgr, err := NewManager(ManagerOptions{
		Pool:           pool,
		Resolver:       resolver,
		Planner:        planner,
		DefaultUser:    "ops",
		DefaultKeyPath: writeTestKey(t),
		ConnectTimeout: time.Second,
		CommandTimeout: 5 * time.Second,
		Dial:           dialer.dial,
	})
	require.NoError(t, err)
	return mgr, pool
}

// newJumpTestManager sets up a target whose subnet routes through a
// bastion and a planner that never sees it as directly reachable.
func newJumpTestManager(t *testing.T, dialer *countingDialer) (*Manager, *Pool) {
	t.Helper()

	pool := newTestPool(dialer, time.Hour)
	resolver := NewResolver(newMemoryHostStore(
		&inventory.Host{Name: "app-par-01", IPAddress: "10.1.3.7", SSHUser: "deploy"},
		&inventory.Host{Name: "bastion-par", IPAddress: "10.1.0.2", SSHUser: "jump"},
	), time.Second, nil)

	routes := knowledge.NewRouteTable()
	routes.Add(netip.MustParsePrefix("10.1.0.0/16"), "bastion-par")
	planner := NewPlanner(routes, resolver, 22, time.Second, nil)
	planner.probe = func(_ context.Context, _ string, _ time.Duration) bool { return false }

	mgr, err := NewManager(ManagerOptions{
		Pool:           pool,
		Resolver:       resolver,
		Planner:        planner,
		DefaultUser:    "ops",
		DefaultKeyPath: writeTestKey(t),
		ConnectTimeout: time.Second,
		CommandTimeout: 5 * time.Second,
		Dial:           dialer.dial,
	})
	require.NoError(t, err)
	return mgr, pool
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	_, err := NewManager(ManagerOptions{})
	assert.Error(t, err)
}

func TestNewManager_RejectsConnectTimeoutAtOrAboveCommandTimeout(t *testing.T) {
	pool := newTestPool(&countingDialer{}, time.Hour)
	resolver := NewResolver(nil, time.Second, nil)
	planner := NewPlanner(nil, resolver, 22, time.Second, nil)

	_, err := NewManager(ManagerOptions{
		Pool:           pool,
		Resolver:       resolver,
		Planner:        planner,
		ConnectTimeout: time.Minute,
		CommandTimeout: time.Minute,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than")
}

func TestManager_ExecuteDialFailure(t *testing.T) {
	dialer := &countingDialer{err: errors.New("dial tcp 10.0.0.5:22: connect: connection refused")}
	mgr, _ := newTestManager(t, dialer)

	output, err := mgr.Execute(context.Background(), "db-prod-01", "uptime", ExecOptions{})
	require.Error(t, err)
	assert.Equal(t, -1, output.ExitCode)

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.SSH_CONNECT_FAILED, merr.Code)
}

func TestManager_ExecuteCircuitOpenSkipsDial(t *testing.T) {
	dialer := &countingDialer{err: errors.New("connection refused")}
	mgr, _ := newTestManager(t, dialer)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := mgr.Execute(ctx, "db-prod-01", "uptime", ExecOptions{})
		require.Error(t, err)
	}
	require.Equal(t, 3, dialer.calls)

	// Referencing the host by IP must hit the same open circuit: the
	// canonical name keys the breaker, not the caller's spelling.
	_, err := mgr.Execute(ctx, "10.0.0.5", "uptime", ExecOptions{})
	require.Error(t, err)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "db-prod-01", openErr.Host)
	assert.Equal(t, 3, dialer.calls)
}

func TestManager_ExecuteDropsConnectionOnSessionFailure(t *testing.T) {
	dialer := &countingDialer{}
	mgr, pool := newTestManager(t, dialer)

	// The fake client cannot open sessions, so the command fails after
	// a successful dial and the pooled connection must be evicted.
	_, err := mgr.Execute(context.Background(), "db-prod-01", "uptime", ExecOptions{})
	require.Error(t, err)

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.SSH_PROTOCOL_ERROR, merr.Code)
	assert.Equal(t, 0, pool.Len())
}

func TestManager_CommandTimeoutLeavesOutcomeUnknown(t *testing.T) {
	sess := &fakeSession{waitFor: 2 * time.Second}
	dialer := &countingDialer{client: &fakeSSHClient{session: sess}}
	mgr, _ := newTestManager(t, dialer)

	start := time.Now()
	output, err := mgr.Execute(context.Background(), "db-prod-01", "sleep 600", ExecOptions{
		Timeout: 50 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.SSH_COMMAND_TIMEOUT, merr.Code)
	assert.True(t, merr.Retryable)
	assert.Contains(t, err.Error(), "may still be running")
	assert.Equal(t, -1, output.ExitCode)
	assert.Less(t, elapsed, time.Second, "the timeout must bound the wait")
}

func TestManager_ExecuteViaJumpHost(t *testing.T) {
	sess := &fakeSession{stdout: "ok"}
	targetClient := &fakeSSHClient{session: sess}
	jumpClient := &fakeSSHClient{}
	dialer := &countingDialer{client: jumpClient}
	mgr, _ := newJumpTestManager(t, dialer)
	mgr.tunnel = func(_ net.Conn, addr string, _ *ssh.ClientConfig) (Client, error) {
		assert.Equal(t, "10.1.3.7:22", addr)
		return targetClient, nil
	}

	output, err := mgr.Execute(context.Background(), "app-par-01", "uptime", ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, output.ExitCode)
	assert.Equal(t, "ok", output.Stdout)

	assert.Equal(t, 1, dialer.calls, "the bastion is dialed once")
	assert.Equal(t, "10.1.3.7:22", jumpClient.dialedAddr, "the channel targets the resolved address")
	assert.True(t, targetClient.closed, "tunneled connections are torn down with the command")
	assert.True(t, jumpClient.closed)
}

func TestManager_JumpTunnelFailureTripsTargetCircuit(t *testing.T) {
	jumpClient := &fakeSSHClient{dialErr: errors.New("administratively prohibited")}
	dialer := &countingDialer{client: jumpClient}
	mgr, pool := newJumpTestManager(t, dialer)

	_, err := mgr.Execute(context.Background(), "app-par-01", "uptime", ExecOptions{})
	require.Error(t, err)

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.SSH_TUNNEL_FAILED, merr.Code)

	stats := pool.Breaker().Stats()
	require.Contains(t, stats.Hosts, "app-par-01")
	assert.Equal(t, 1, stats.Hosts["app-par-01"].Failures)
	// The bastion itself connected fine; its circuit stays clear.
	assert.NotContains(t, stats.Hosts, "bastion-par")
}

func TestManager_UnreachableJumpHostTripsItsCircuit(t *testing.T) {
	dialer := &countingDialer{err: errors.New("connection refused")}
	mgr, _ := newJumpTestManager(t, dialer)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := mgr.Execute(ctx, "app-par-01", "uptime", ExecOptions{})
		require.Error(t, err)
	}
	require.Equal(t, 3, dialer.calls)

	_, err := mgr.Execute(ctx, "app-par-01", "uptime", ExecOptions{})
	require.Error(t, err)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "bastion-par", openErr.Host)
	assert.Equal(t, 3, dialer.calls, "an open bastion circuit must stop redials")
}

func TestManager_ProbeWarmsPool(t *testing.T) {
	dialer := &countingDialer{}
	mgr, pool := newTestManager(t, dialer)

	require.NoError(t, mgr.Probe(context.Background(), "db-prod-01", ExecOptions{}))
	assert.Equal(t, 1, pool.Len())
}

func TestSanitizeOutput(t *testing.T) {
	assert.Equal(t, "hello", sanitizeOutput([]byte("hello")))
	assert.Equal(t, "caf�", sanitizeOutput([]byte{'c', 'a', 'f', 0xe9}))
	assert.Empty(t, sanitizeOutput(nil))
}
