package executor

import (
	"errors"
	"strings"

	"github.com/m-kis/merlya-sub001/internal/remote"
	"github.com/m-kis/merlya-sub001/internal/types"
)

// analyzeError produces a heuristic diagnosis of a failed execution so
// the calling agent layer can decide how to recover. Structured error
// codes give a confident classification; stderr matching is a weaker
// fallback for command-level failures.
func analyzeError(err error, stderr string) *types.ErrorAnalysis {
	if err != nil {
		var openErr *remote.CircuitOpenError
		if errors.As(err, &openErr) {
			action := "wait for the cooldown to elapse before retrying"
			if openErr.Permanent {
				action = "verify the hostname and reset the circuit breaker"
			}
			return &types.ErrorAnalysis{
				Type:            types.ErrorTypeCircuitOpen,
				Confidence:      1.0,
				SuggestedAction: action,
			}
		}

		var merr *types.MerlyaError
		if errors.As(err, &merr) {
			if analysis := analyzeErrorCode(merr.Code); analysis != nil {
				return analysis
			}
		}
	}

	if analysis := analyzeStderr(stderr); analysis != nil {
		return analysis
	}

	if err == nil {
		return nil
	}
	return &types.ErrorAnalysis{
		Type:       types.ErrorTypeUnknown,
		Confidence: 0.3,
	}
}

func analyzeErrorCode(code types.ErrorCode) *types.ErrorAnalysis {
	switch code {
	case types.SSH_AUTH_FAILED, types.CREDENTIAL_NOT_FOUND, types.CREDENTIAL_INVALID:
		return &types.ErrorAnalysis{
			Type:             types.ErrorTypeAuth,
			Confidence:       0.9,
			NeedsCredentials: true,
			SuggestedAction:  "provide valid SSH credentials for this host",
		}
	case types.SSH_CONNECT_TIMEOUT, types.SSH_COMMAND_TIMEOUT, types.LOCAL_EXEC_TIMEOUT:
		return &types.ErrorAnalysis{
			Type:            types.ErrorTypeTimeout,
			Confidence:      0.9,
			SuggestedAction: "increase the timeout or check host load; the command may still be running",
		}
	case types.SSH_CONNECT_FAILED, types.SSH_TUNNEL_FAILED, types.SSH_PROTOCOL_ERROR:
		return &types.ErrorAnalysis{
			Type:            types.ErrorTypeConnection,
			Confidence:      0.8,
			SuggestedAction: "check network reachability and that sshd is running on the target",
		}
	default:
		return nil
	}
}

// analyzeStderr classifies command-level failures from output text.
// Lower confidence than code-based classification; stderr wording varies
// across tools and locales.
func analyzeStderr(stderr string) *types.ErrorAnalysis {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied") && strings.Contains(lower, "publickey"):
		return &types.ErrorAnalysis{
			Type:             types.ErrorTypeAuth,
			Confidence:       0.8,
			NeedsCredentials: true,
			SuggestedAction:  "provide valid SSH credentials for this host",
		}
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "must be root"):
		return &types.ErrorAnalysis{
			Type:            types.ErrorTypePermission,
			Confidence:      0.7,
			SuggestedAction: "retry with elevated privileges (sudo)",
		}
	case strings.Contains(lower, "command not found"),
		strings.Contains(lower, "no such file or directory"):
		return &types.ErrorAnalysis{
			Type:            types.ErrorTypeCommandNotFound,
			Confidence:      0.6,
			SuggestedAction: "verify the command is installed and on PATH",
		}
	case strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "incorrect password"):
		return &types.ErrorAnalysis{
			Type:             types.ErrorTypeAuth,
			Confidence:       0.7,
			NeedsCredentials: true,
			SuggestedAction:  "provide valid credentials",
		}
	default:
		return nil
	}
}
