package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-kis/merlya-sub001/internal/types"
)

func TestRunLocal_Success(t *testing.T) {
	out, err := runLocal(context.Background(), "echo hello", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.Empty(t, out.Stderr)
}

func TestRunLocal_NonZeroExitIsNotAnError(t *testing.T) {
	out, err := runLocal(context.Background(), "false", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, out.ExitCode)
}

func TestRunLocal_NoShellInterpretation(t *testing.T) {
	// Metacharacters reach the program as literal arguments; nothing
	// gets a shell to expand them.
	out, err := runLocal(context.Background(), "echo $(whoami) && id", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "$(whoami) && id\n", out.Stdout)
}

func TestRunLocal_QuotedArguments(t *testing.T) {
	out, err := runLocal(context.Background(), `echo "two words"`, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "two words\n", out.Stdout)
}

func TestRunLocal_ParseFailure(t *testing.T) {
	_, err := runLocal(context.Background(), `echo "unterminated`, 5*time.Second)
	require.Error(t, err)

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.LOCAL_EXEC_PARSE, merr.Code)
}

func TestRunLocal_EmptyCommand(t *testing.T) {
	_, err := runLocal(context.Background(), "   ", 5*time.Second)
	require.Error(t, err)

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.LOCAL_EXEC_PARSE, merr.Code)
}

func TestRunLocal_MissingBinary(t *testing.T) {
	out, err := runLocal(context.Background(), "definitely-not-a-real-binary-4271", 5*time.Second)
	require.Error(t, err)

	assert.Equal(t, -1, out.ExitCode)

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.LOCAL_EXEC_FAILED, merr.Code)
}

func TestRunLocal_TimeoutBoundary(t *testing.T) {
	start := time.Now()
	out, err := runLocal(context.Background(), "sleep 5", 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, -1, out.ExitCode)
	assert.Less(t, elapsed, 2*time.Second, "timeout must not hang")

	var merr *types.MerlyaError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, types.LOCAL_EXEC_TIMEOUT, merr.Code)
	assert.True(t, merr.Retryable)
}

func TestIsLocalTarget(t *testing.T) {
	assert.True(t, isLocalTarget("local"))
	assert.True(t, isLocalTarget("localhost"))
	assert.True(t, isLocalTarget("LOCALHOST"))
	assert.True(t, isLocalTarget("Local"))
	assert.False(t, isLocalTarget("db-prod-01"))
	assert.False(t, isLocalTarget("127.0.0.1"))
}
