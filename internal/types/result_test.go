package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevel(t *testing.T) {
	t.Run("validity", func(t *testing.T) {
		assert.True(t, RiskLevelLow.IsValid())
		assert.True(t, RiskLevelMedium.IsValid())
		assert.True(t, RiskLevelHigh.IsValid())
		assert.False(t, RiskLevel("critical").IsValid())
	})

	t.Run("only high requires confirmation", func(t *testing.T) {
		assert.False(t, RiskLevelLow.RequiresConfirmation())
		assert.False(t, RiskLevelMedium.RequiresConfirmation())
		assert.True(t, RiskLevelHigh.RequiresConfirmation())
	})

	t.Run("unmarshal rejects unknown level", func(t *testing.T) {
		var r RiskLevel
		err := json.Unmarshal([]byte(`"catastrophic"`), &r)
		require.Error(t, err)
	})
}

func TestErrorType_IsValid(t *testing.T) {
	for _, et := range []ErrorType{
		ErrorTypeAuth, ErrorTypeConnection, ErrorTypeTimeout,
		ErrorTypePermission, ErrorTypeCommandNotFound,
		ErrorTypeCircuitOpen, ErrorTypeUnknown,
	} {
		assert.True(t, et.IsValid(), "expected %s to be valid", et)
	}
	assert.False(t, ErrorType("dns").IsValid())
}

func TestNewExecutionResult(t *testing.T) {
	result := NewExecutionResult("prod-db", "uptime", CommandClassRemote)

	assert.NotEqual(t, uuid.Nil, result.ID)
	assert.Equal(t, "prod-db", result.Target)
	assert.Equal(t, "uptime", result.Command)
	assert.Equal(t, CommandClassRemote, result.CommandClass)
	assert.Equal(t, -1, result.ExitCode)
	assert.False(t, result.Success)
	assert.Nil(t, result.ErrorAnalysis)
	assert.WithinDuration(t, time.Now(), result.StartedAt, time.Second)
}

func TestExecutionResult_DurationMs(t *testing.T) {
	result := NewExecutionResult("localhost", "echo hi", CommandClassLocal)
	result.Duration = 1500 * time.Millisecond
	assert.Equal(t, int64(1500), result.DurationMs())
}
