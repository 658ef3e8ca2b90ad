package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m-kis/merlya-sub001/internal/observability"
	"github.com/m-kis/merlya-sub001/internal/remote"
	"github.com/m-kis/merlya-sub001/internal/types"
)

const defaultMaxRetries = 3

// RemoteExecutor runs a command on a remote host. *remote.Manager is the
// production implementation.
type RemoteExecutor interface {
	Execute(ctx context.Context, host, command string, opts remote.ExecOptions) (remote.CommandOutput, error)
}

// Options carries per-call execution settings.
type Options struct {
	// Confirm acknowledges a high-risk command. Without it, high-risk
	// commands are blocked before any dispatch.
	Confirm bool

	// Timeout bounds command execution; zero uses the configured default.
	Timeout time.Duration

	// MaxRetries bounds the credential retry loop. Zero means the
	// default of 3. Retry counters are local to one Execute call.
	MaxRetries int

	// Credentials overrides the resolution chain for this call.
	Credentials remote.CredentialOverrides
}

// ActionExecutorOptions configures an ActionExecutor.
type ActionExecutorOptions struct {
	Remote RemoteExecutor
	Risk   *RiskAssessor

	// Prompter obtains fresh credentials on auth failures. Only used
	// when Interactive is true.
	Prompter    CredentialPrompter
	Interactive bool

	DefaultTimeout time.Duration

	Logger  *observability.Logger
	Metrics observability.MetricsRecorder
}

// ActionExecutor is the boundary the agent and CLI layers call to run
// commands. On top of dispatch (local subprocess or SSH) it layers the
// risk gate, the bounded credential retry loop, error analysis and
// metrics.
//
// Every attempt is recorded to the metrics sink regardless of branch or
// outcome. Execution never returns a Go error; failures are structured
// into the ExecutionResult so the caller always has a uniform shape to
// reason about.
type ActionExecutor struct {
	remote         RemoteExecutor
	risk           *RiskAssessor
	prompter       CredentialPrompter
	interactive    bool
	defaultTimeout time.Duration
	logger         *observability.Logger
	metrics        observability.MetricsRecorder

	// Credentials obtained through a prompt are cached per target so a
	// follow-up command does not re-prompt.
	credMu      sync.Mutex
	cachedCreds map[string]remote.CredentialOverrides
}

// NewActionExecutor creates an ActionExecutor.
func NewActionExecutor(opts ActionExecutorOptions) (*ActionExecutor, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote executor is required")
	}
	if opts.Risk == nil {
		risk, err := NewRiskAssessor(nil, nil)
		if err != nil {
			return nil, err
		}
		opts.Risk = risk
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	return &ActionExecutor{
		remote:         opts.Remote,
		risk:           opts.Risk,
		prompter:       opts.Prompter,
		interactive:    opts.Interactive,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		cachedCreds:    make(map[string]remote.CredentialOverrides),
	}, nil
}

// Execute runs command against target. target may be "local"/"localhost"
// for subprocess execution, or any host reference for SSH.
func (e *ActionExecutor) Execute(ctx context.Context, target, command string, opts Options) *types.ExecutionResult {
	class := types.CommandClassRemote
	if isLocalTarget(target) {
		class = types.CommandClassLocal
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	risk := e.risk.Assess(command)

	// Hard stop: a high-risk command without explicit confirmation never
	// reaches any dispatch branch.
	if risk.RequiresConfirmation() && !opts.Confirm {
		result := types.NewExecutionResult(target, command, class)
		result.RiskLevel = risk
		result.Stderr = fmt.Sprintf("command classified as %s risk and requires explicit confirmation; re-run with confirm", risk)
		e.finish(result)
		if e.logger != nil {
			e.logger.Warn("blocked high-risk command", "target", target, "risk", risk.String())
		}
		return result
	}

	if risk == types.RiskLevelMedium && e.logger != nil {
		e.logger.Info("executing medium-risk command", "target", target)
	}

	if class == types.CommandClassLocal {
		return e.executeLocal(ctx, target, command, risk, timeout)
	}
	return e.executeRemote(ctx, target, command, risk, timeout, opts)
}

func (e *ActionExecutor) executeLocal(ctx context.Context, target, command string, risk types.RiskLevel, timeout time.Duration) *types.ExecutionResult {
	result := types.NewExecutionResult(target, command, types.CommandClassLocal)
	result.RiskLevel = risk

	out, err := runLocal(ctx, command, timeout)
	result.ExitCode = out.ExitCode
	result.Stdout = out.Stdout
	result.Stderr = out.Stderr
	result.Success = err == nil && out.ExitCode == 0

	if err != nil {
		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
		result.ErrorAnalysis = analyzeError(err, out.Stderr)
	} else if out.ExitCode != 0 {
		result.ErrorAnalysis = analyzeStderr(out.Stderr)
	}

	e.finish(result)
	return result
}

func (e *ActionExecutor) executeRemote(ctx context.Context, target, command string, risk types.RiskLevel, timeout time.Duration, opts Options) *types.ExecutionResult {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	creds := e.effectiveCredentials(target, opts.Credentials)

	var result *types.ExecutionResult
	for attempt := 1; attempt <= maxRetries; attempt++ {
		result = types.NewExecutionResult(target, command, types.CommandClassRemote)
		result.RiskLevel = risk

		out, err := e.remote.Execute(ctx, target, command, remote.ExecOptions{
			Credentials: creds,
			Timeout:     timeout,
		})
		result.ExitCode = out.ExitCode
		result.Stdout = out.Stdout
		result.Stderr = out.Stderr

		if err == nil {
			result.Success = out.ExitCode == 0
			if out.ExitCode != 0 {
				result.ErrorAnalysis = analyzeStderr(out.Stderr)
			}
			e.finish(result)
			return result
		}

		if result.Stderr == "" {
			result.Stderr = err.Error()
		}
		analysis := analyzeError(err, out.Stderr)
		result.ErrorAnalysis = analysis
		e.finish(result)

		if analysis == nil || !analysis.NeedsCredentials {
			// Not a credentials problem; retrying with the same inputs
			// would only repeat the failure.
			return result
		}

		if !e.interactive || e.prompter == nil {
			// Agent mode: surface the flag immediately so the agent loop
			// can obtain credentials through its own mechanism.
			return result
		}

		if attempt == maxRetries {
			return result
		}

		fresh, promptErr := e.prompter.PromptCredentials(target, creds.User)
		if promptErr != nil {
			if e.logger != nil {
				e.logger.Warn("credential prompt failed", "target", target, "error", promptErr)
			}
			return result
		}
		creds = mergeCredentials(creds, fresh)
		e.cacheCredentials(target, creds)
		if e.logger != nil {
			e.logger.Info("retrying with fresh credentials", "target", target, "attempt", attempt+1)
		}
	}
	return result
}

// finish stamps the duration and records the attempt.
func (e *ActionExecutor) finish(result *types.ExecutionResult) {
	result.Duration = time.Since(result.StartedAt)
	observability.RecordAction(e.metrics, result.Target, result.CommandClass,
		float64(result.DurationMs()), result.ExitCode, result.Success, result.RiskLevel)
}

// effectiveCredentials overlays caller-supplied overrides on any cached
// credentials for the target. Caller values win.
func (e *ActionExecutor) effectiveCredentials(target string, explicit remote.CredentialOverrides) remote.CredentialOverrides {
	e.credMu.Lock()
	cached := e.cachedCreds[target]
	e.credMu.Unlock()
	return mergeCredentials(cached, explicit)
}

func (e *ActionExecutor) cacheCredentials(target string, creds remote.CredentialOverrides) {
	e.credMu.Lock()
	e.cachedCreds[target] = creds
	e.credMu.Unlock()
}

// mergeCredentials overlays non-empty fields of over onto base.
func mergeCredentials(base, over remote.CredentialOverrides) remote.CredentialOverrides {
	merged := base
	if over.User != "" {
		merged.User = over.User
	}
	if over.KeyPath != "" {
		merged.KeyPath = over.KeyPath
	}
	if over.Passphrase != "" {
		merged.Passphrase = over.Passphrase
	}
	return merged
}
