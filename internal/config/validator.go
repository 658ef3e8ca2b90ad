package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigValidator validates configuration values.
type ConfigValidator interface {
	Validate(cfg *Config) error
}

// validatorImpl implements ConfigValidator using go-playground/validator.
type validatorImpl struct {
	validate *validator.Validate
}

// NewValidator creates a new ConfigValidator instance.
func NewValidator() ConfigValidator {
	return &validatorImpl{
		validate: validator.New(),
	}
}

// Validate validates the configuration and returns detailed error messages.
func (v *validatorImpl) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	err := v.validate.Struct(cfg)
	if err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validation error: %w", err)
		}

		var errorMessages []string
		for _, e := range validationErrs {
			errorMessages = append(errorMessages, formatValidationError(e))
		}

		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errorMessages, "\n  - "))
	}

	// The connect timeout must stay below the command timeout; a slow
	// connect is not allowed to consume the command's time budget.
	if cfg.SSH.ConnectTimeout >= cfg.SSH.CommandTimeout {
		return fmt.Errorf("configuration validation failed:\n  - ssh.connect_timeout (%v) must be shorter than ssh.command_timeout (%v)",
			cfg.SSH.ConnectTimeout, cfg.SSH.CommandTimeout)
	}

	if cfg.Breaker.PermanentThreshold < cfg.Breaker.FailureThreshold {
		return fmt.Errorf("configuration validation failed:\n  - breaker.permanent_threshold (%d) must be at least breaker.failure_threshold (%d)",
			cfg.Breaker.PermanentThreshold, cfg.Breaker.FailureThreshold)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1024 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("configuration validation failed:\n  - metrics.port must be between 1024 and 65535 when enabled (got: %d)", cfg.Metrics.Port)
		}
	}

	return nil
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts a struct namespace (Config.SSH.ConnectTimeout)
// into the config-file style path (ssh.connect_timeout).
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the leading "Config"
	}

	for i, part := range parts {
		parts[i] = camelToSnake(part)
	}

	return strings.Join(parts, ".")
}

// camelToSnake converts CamelCase field names to snake_case.
func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && s[i-1] >= 'a' && s[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
