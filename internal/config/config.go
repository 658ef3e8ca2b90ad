package config

import (
	"time"
)

// Config is the root configuration for the Merlya execution core.
type Config struct {
	Core      CoreConfig      `mapstructure:"core" yaml:"core" validate:"required"`
	Inventory InventoryConfig `mapstructure:"inventory" yaml:"inventory" validate:"required"`
	Routes    RoutesConfig    `mapstructure:"routes" yaml:"routes"`
	SSH       SSHConfig       `mapstructure:"ssh" yaml:"ssh" validate:"required"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Breaker   BreakerConfig   `mapstructure:"breaker" yaml:"breaker"`
	Risk      RiskConfig      `mapstructure:"risk" yaml:"risk"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// CoreConfig contains core application settings.
type CoreConfig struct {
	HomeDir string `mapstructure:"home_dir" yaml:"home_dir"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`

	// Interactive controls whether failed executions may prompt the
	// operator for credentials. Agent-driven sessions run with this off
	// and receive a needs_credentials flag instead.
	Interactive bool `mapstructure:"interactive" yaml:"interactive"`
}

// InventoryConfig contains host inventory database configuration.
type InventoryConfig struct {
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=1s"`
	WALMode bool          `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// RoutesConfig locates the jump-host routing table.
type RoutesConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SSHConfig contains SSH client behavior settings.
//
// ConnectTimeout bounds the TCP dial, auth and banner exchange of a single
// connection attempt. It is deliberately shorter than CommandTimeout so a
// hung interactive-auth prompt (2FA) fails fast instead of consuming the
// command's time budget.
type SSHConfig struct {
	DefaultUser    string        `mapstructure:"default_user" yaml:"default_user"`
	DefaultKeyPath string        `mapstructure:"default_key_path" yaml:"default_key_path"`
	Port           int           `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"min=1s"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout" validate:"min=1s"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" validate:"min=100ms"`
	DNSTimeout     time.Duration `mapstructure:"dns_timeout" yaml:"dns_timeout" validate:"min=1s"`
	PoolingEnabled bool          `mapstructure:"pooling_enabled" yaml:"pooling_enabled"`
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// MaxIdleTime is how long an unused pooled connection stays eligible
	// for reuse before it is evicted and re-dialed.
	MaxIdleTime time.Duration `mapstructure:"max_idle_time" yaml:"max_idle_time" validate:"min=1s"`
}

// BreakerConfig contains circuit breaker settings.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// temporary circuit.
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`

	// Cooldown is how long a temporary circuit stays open before one
	// fresh attempt is allowed.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"min=1s"`

	// PermanentThreshold is the failure count beyond which a circuit
	// opens permanently until an operator resets it.
	PermanentThreshold int `mapstructure:"permanent_threshold" yaml:"permanent_threshold" validate:"min=1"`
}

// RiskConfig contains command risk assessment settings.
type RiskConfig struct {
	// HighPatterns and MediumPatterns extend the built-in signature sets.
	HighPatterns   []string `mapstructure:"high_patterns" yaml:"high_patterns"`
	MediumPatterns []string `mapstructure:"medium_patterns" yaml:"medium_patterns"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig contains metrics export configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}
