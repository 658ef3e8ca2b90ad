package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/m-kis/merlya-sub001/internal/executor"
	"github.com/m-kis/merlya-sub001/internal/remote"
	"github.com/m-kis/merlya-sub001/internal/types"
)

var (
	execConfirm bool
	execTimeout time.Duration
	execUser    string
	execKeyPath string
)

var execCmd = &cobra.Command{
	Use:   "exec <target> <command>...",
	Short: "Run a command on a host",
	Long: `Run a shell command on a target host over SSH, or locally when the
target is "local" or "localhost".

High-risk commands (destructive patterns like "rm -rf /") are blocked
unless --confirm is given.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execConfirm, "confirm", false, "confirm execution of high-risk commands")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "command timeout (default from config)")
	execCmd.Flags().StringVar(&execUser, "user", "", "SSH user override")
	execCmd.Flags().StringVar(&execKeyPath, "key", "", "SSH private key path override")
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	target := args[0]
	command := strings.Join(args[1:], " ")

	result := a.executor.Execute(cmd.Context(), target, command, executor.Options{
		Confirm: execConfirm,
		Timeout: execTimeout,
		Credentials: remote.CredentialOverrides{
			User:    execUser,
			KeyPath: execKeyPath,
		},
	})

	printResult(cmd, result)

	// Close before exiting; os.Exit would skip deferred teardown.
	a.close()
	if !result.Success {
		os.Exit(exitError)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *types.ExecutionResult) {
	if result.Stdout != "" {
		cmd.Print(result.Stdout)
	}
	if result.Stderr != "" {
		cmd.PrintErr(result.Stderr)
		if !strings.HasSuffix(result.Stderr, "\n") {
			cmd.PrintErrln()
		}
	}

	status := color.New(color.FgGreen).Sprint("ok")
	if !result.Success {
		status = color.New(color.FgRed).Sprint("failed")
	}
	cmd.PrintErrf("[%s] %s exit=%d duration=%s risk=%s\n",
		status, result.Target, result.ExitCode, result.Duration.Round(time.Millisecond), result.RiskLevel)

	if result.ErrorAnalysis != nil && result.ErrorAnalysis.SuggestedAction != "" {
		cmd.PrintErrf("hint: %s\n", result.ErrorAnalysis.SuggestedAction)
	}
	if result.ErrorAnalysis != nil && result.ErrorAnalysis.NeedsCredentials {
		cmd.PrintErrln(fmt.Sprintf("credentials needed for %s; pass --user/--key or update the inventory", result.Target))
	}
}
