package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	homeDir := DefaultHomeDir()

	return &Config{
		Core: CoreConfig{
			HomeDir:     homeDir,
			Debug:       false,
			Interactive: true,
		},
		Inventory: InventoryConfig{
			Path:    filepath.Join(homeDir, "inventory.db"),
			Timeout: 30 * time.Second,
			WALMode: true,
		},
		Routes: RoutesConfig{
			Path: filepath.Join(homeDir, "routes.yaml"),
		},
		SSH: SSHConfig{
			DefaultUser:    "",
			DefaultKeyPath: "",
			Port:           22,
			ConnectTimeout: 5 * time.Second,
			CommandTimeout: 60 * time.Second,
			ProbeTimeout:   2 * time.Second,
			DNSTimeout:     5 * time.Second,
			PoolingEnabled: true,
		},
		Pool: PoolConfig{
			MaxIdleTime: time.Hour,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   3,
			Cooldown:           5 * time.Minute,
			PermanentThreshold: 10,
		},
		Risk: RiskConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// DefaultHomeDir returns the default Merlya home directory (~/.merlya).
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".merlya"
	}
	return filepath.Join(home, ".merlya")
}
