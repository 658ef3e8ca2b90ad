package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RiskLevel represents the static danger classification of a shell command.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// String returns the string representation of RiskLevel
func (r RiskLevel) String() string {
	return string(r)
}

// IsValid checks if the RiskLevel is a valid value
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	default:
		return false
	}
}

// RequiresConfirmation returns true if commands at this risk level must be
// explicitly confirmed before execution.
func (r RiskLevel) RequiresConfirmation() bool {
	return r == RiskLevelHigh
}

// MarshalJSON implements json.Marshaler
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

// UnmarshalJSON implements json.Unmarshaler
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	level := RiskLevel(str)
	if !level.IsValid() {
		return fmt.Errorf("invalid risk level: %s", str)
	}

	*r = level
	return nil
}

// ErrorType classifies an execution failure so the calling agent layer can
// decide how to recover (re-prompt credentials, try a different approach,
// surface to the operator).
type ErrorType string

const (
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeConnection      ErrorType = "connection"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypePermission      ErrorType = "permission"
	ErrorTypeCommandNotFound ErrorType = "command_not_found"
	ErrorTypeCircuitOpen     ErrorType = "circuit_open"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	return string(e)
}

// IsValid checks if the ErrorType is a valid value
func (e ErrorType) IsValid() bool {
	switch e {
	case ErrorTypeAuth, ErrorTypeConnection, ErrorTypeTimeout,
		ErrorTypePermission, ErrorTypeCommandNotFound, ErrorTypeCircuitOpen,
		ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// ErrorAnalysis carries a heuristic diagnosis of a failed execution.
// Confidence is in [0, 1]. NeedsCredentials signals the caller should
// obtain fresh credentials before retrying.
type ErrorAnalysis struct {
	Type             ErrorType `json:"type"`
	Confidence       float64   `json:"confidence"`
	NeedsCredentials bool      `json:"needs_credentials"`
	SuggestedAction  string    `json:"suggested_action,omitempty"`
}

// CommandClass distinguishes the dispatch branch an execution took.
type CommandClass string

const (
	CommandClassLocal  CommandClass = "local"
	CommandClassRemote CommandClass = "remote"
)

// ExecutionResult is the immutable outcome of a single command execution.
// A retried execution produces a new result value; results are never
// mutated after they are returned to the caller.
type ExecutionResult struct {
	ID            uuid.UUID      `json:"id"`
	Target        string         `json:"target"`
	Command       string         `json:"command"`
	CommandClass  CommandClass   `json:"command_class"`
	ExitCode      int            `json:"exit_code"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	Success       bool           `json:"success"`
	Duration      time.Duration  `json:"duration"`
	RiskLevel     RiskLevel      `json:"risk_level"`
	ErrorAnalysis *ErrorAnalysis `json:"error_analysis,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
}

// DurationMs returns the execution duration in whole milliseconds.
func (r *ExecutionResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// NewExecutionResult creates a result shell for an execution attempt.
// ExitCode, output and Success are filled in by the executor.
func NewExecutionResult(target, command string, class CommandClass) *ExecutionResult {
	return &ExecutionResult{
		ID:           uuid.New(),
		Target:       target,
		Command:      command,
		CommandClass: class,
		ExitCode:     -1,
		StartedAt:    time.Now(),
	}
}
