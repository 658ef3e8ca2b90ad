package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/m-kis/merlya-sub001/internal/types"
)

// localOutput is the outcome of a local subprocess run.
type localOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// runLocal executes a command as a local subprocess. The command is
// parsed into an argument vector and run without a shell, so shell
// metacharacters are inert and injection through the command string is
// not possible.
func runLocal(ctx context.Context, command string, timeout time.Duration) (localOutput, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return localOutput{ExitCode: -1}, types.WrapError(types.LOCAL_EXEC_PARSE,
			fmt.Sprintf("failed to parse command %q", command), err)
	}
	if len(argv) == 0 {
		return localOutput{ExitCode: -1}, types.NewError(types.LOCAL_EXEC_PARSE,
			"empty command")
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	out := localOutput{
		ExitCode: 0,
		Stdout:   strings.ToValidUTF8(stdout.String(), "�"),
		Stderr:   strings.ToValidUTF8(stderr.String(), "�"),
	}
	if err == nil {
		return out, nil
	}

	if runCtx.Err() != nil {
		out.ExitCode = -1
		return out, types.NewRetryableError(types.LOCAL_EXEC_TIMEOUT,
			fmt.Sprintf("local command did not complete within %s", timeout))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The command ran; a non-zero status is a result, not an error
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}

	out.ExitCode = -1
	return out, types.WrapError(types.LOCAL_EXEC_FAILED,
		fmt.Sprintf("failed to run %q", argv[0]), err)
}

// isLocalTarget reports whether target names the local machine.
func isLocalTarget(target string) bool {
	switch strings.ToLower(target) {
	case "local", "localhost":
		return true
	default:
		return false
	}
}
