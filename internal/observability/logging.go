package observability

import (
	"io"
	"log/slog"
	"strings"
)

// Logger is a structured logger that redacts credential material before it
// reaches any handler. Every component in the execution path logs through
// it so that passphrases and key contents can never leak into log output.
type Logger struct {
	logger          *slog.Logger
	redactSensitive bool
}

// NewLogger creates a Logger backed by the given slog handler.
// Redaction is always enabled for info level and above; debug logs are
// emitted as-is since they are opt-in and local.
func NewLogger(handler slog.Handler) *Logger {
	return &Logger{
		logger:          slog.New(handler),
		redactSensitive: true,
	}
}

// With returns a Logger with the given attributes attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		logger:          l.logger.With(args...),
		redactSensitive: l.redactSensitive,
	}
}

// Debug logs a debug-level message without redaction.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info-level message. Sensitive values are redacted.
func (l *Logger) Info(msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.logger.Info(msg, args...)
}

// Warn logs a warning-level message. Sensitive values are redacted.
func (l *Logger) Warn(msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.logger.Warn(msg, args...)
}

// Error logs an error-level message. Sensitive values are redacted.
func (l *Logger) Error(msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.logger.Error(msg, args...)
}

// NewJSONHandler creates a JSON log handler with the specified output and level.
// JSON format is ideal for structured logging in production environments.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewTextHandler creates a text log handler with the specified output and level.
// Text format is human-readable and useful for development and debugging.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// ParseLevel maps a config-file level string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactSensitiveData redacts sensitive fields in log arguments.
// Sensitive fields include passwords, passphrases, private keys, and tokens.
// These values are replaced with "[REDACTED]" to prevent credential leakage.
func redactSensitiveData(args []any) []any {
	if len(args)%2 != 0 {
		// Invalid args, return as-is
		return args
	}

	sensitiveFields := map[string]bool{
		"password":   true,
		"passphrase": true,
		"privatekey": true,
		"secret":     true,
		"token":      true,
		"credential": true,
		"apikey":     true,
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			normalizedKey := strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if sensitiveFields[normalizedKey] {
				redacted[i+1] = "[REDACTED]"
			}
		}
	}

	return redacted
}
