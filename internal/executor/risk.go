package executor

import (
	"fmt"
	"regexp"

	"github.com/m-kis/merlya-sub001/internal/types"
)

// Built-in dangerous-command signatures. High-risk commands destroy data
// or take hosts down and require explicit confirmation; medium-risk
// commands disrupt services and are logged but not gated.
var (
	highRiskPatterns = []string{
		`rm\s+(-\w+\s+)*(/|/\*)\s*$`,
		`rm\s+(-\w+\s+)*--no-preserve-root`,
		`rm\s+-[a-z]*r[a-z]*f[a-z]*\s+/\S*`,
		`rm\s+-[a-z]*f[a-z]*r[a-z]*\s+/\S*`,
		`\bmkfs(\.\w+)?\b`,
		`\bdd\s+.*of=/dev/`,
		`>\s*/dev/sd[a-z]`,
		`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`,
		`\b(shutdown|poweroff|halt)\b`,
		`\breboot\b`,
		`\binit\s+0\b`,
		`chmod\s+(-\w+\s+)*777\s+/\s*$`,
		`chmod\s+-R\s+777\s+/`,
		`\bwipefs\b`,
		`truncate\s+.*-s\s*0\s+/dev/`,
	}

	mediumRiskPatterns = []string{
		`\bsystemctl\s+(stop|restart|disable|mask)\b`,
		`\bservice\s+\S+\s+(stop|restart)\b`,
		`\bkill\s+-9\b`,
		`\bpkill\b`,
		`\b(apt|apt-get|yum|dnf)\s+(install|remove|purge|upgrade)\b`,
		`\bchown\s+-R\b`,
		`\bchmod\s+-R\b`,
		`\biptables\s+(-F|--flush)\b`,
		`\b(userdel|groupdel)\b`,
		`\bcrontab\s+-r\b`,
		`\bmv\s+\S+\s+/dev/null\b`,
		`\bdrop\s+(database|table)\b`,
	}
)

// RiskAssessor classifies shell commands into danger tiers by matching
// them against dangerous-command signatures. Classification is static;
// it inspects the command text only, never the target.
type RiskAssessor struct {
	high   []*regexp.Regexp
	medium []*regexp.Regexp
}

// NewRiskAssessor compiles the built-in signature sets plus any
// operator-supplied extensions from configuration.
func NewRiskAssessor(extraHigh, extraMedium []string) (*RiskAssessor, error) {
	high, err := compilePatterns(append(append([]string{}, highRiskPatterns...), extraHigh...))
	if err != nil {
		return nil, fmt.Errorf("invalid high-risk pattern: %w", err)
	}
	medium, err := compilePatterns(append(append([]string{}, mediumRiskPatterns...), extraMedium...))
	if err != nil {
		return nil, fmt.Errorf("invalid medium-risk pattern: %w", err)
	}
	return &RiskAssessor{high: high, medium: medium}, nil
}

// Assess returns the risk tier for a command. The highest matching tier
// wins; a command matching nothing is low risk.
func (a *RiskAssessor) Assess(command string) types.RiskLevel {
	for _, pattern := range a.high {
		if pattern.MatchString(command) {
			return types.RiskLevelHigh
		}
	}
	for _, pattern := range a.medium {
		if pattern.MatchString(command) {
			return types.RiskLevelMedium
		}
	}
	return types.RiskLevelLow
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
