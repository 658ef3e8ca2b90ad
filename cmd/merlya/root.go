package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m-kis/merlya-sub001/internal/config"
	"github.com/m-kis/merlya-sub001/internal/executor"
	"github.com/m-kis/merlya-sub001/internal/inventory"
	"github.com/m-kis/merlya-sub001/internal/knowledge"
	"github.com/m-kis/merlya-sub001/internal/observability"
	"github.com/m-kis/merlya-sub001/internal/remote"
)

var (
	configFile string
	debugMode  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "merlya",
	Short: "Merlya - remote execution core for AI-assisted infra operations",
	Long: `Merlya runs shell commands on fleet hosts over pooled SSH
connections, with circuit breaking for unreachable hosts, jump-host
pivoting for private networks, and risk gating for dangerous commands.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig runs before every command. Missing config files are fine;
// defaults apply.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	path := configFile
	if path == "" {
		path = os.Getenv("MERLYA_CONFIG")
	}
	if path == "" {
		path = filepath.Join(config.DefaultHomeDir(), "config.yaml")
	}

	loader := config.NewConfigLoader(config.NewValidator())
	loaded, err := loader.LoadWithDefaults(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debugMode {
		loaded.Core.Debug = true
		loaded.Logging.Level = "debug"
	}
	cfg = loaded
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default ~/.merlya/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(versionCmd)
}

// app holds the wired subsystems for one invocation.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  observability.MetricsRecorder
	store    *inventory.SQLiteStore
	routes   *knowledge.RouteTable
	pool     *remote.Pool
	manager  *remote.Manager
	executor *executor.ActionExecutor
}

// newApp builds the full stack from loaded configuration.
func newApp() (*app, error) {
	logger := buildLogger(cfg, os.Stderr)

	recorder, err := buildMetrics(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Core.HomeDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	store, err := inventory.OpenSQLiteStore(cfg.Inventory.Path, cfg.Inventory.WALMode, cfg.Inventory.Timeout)
	if err != nil {
		return nil, err
	}

	routes, err := knowledge.LoadRouteTable(cfg.Routes.Path)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pool := remote.NewPool(remote.PoolOptions{
		MaxIdleTime: cfg.Pool.MaxIdleTime,
		Breaker: remote.NewCircuitBreaker(remote.CircuitBreakerConfig{
			FailureThreshold:   cfg.Breaker.FailureThreshold,
			Cooldown:           cfg.Breaker.Cooldown,
			PermanentThreshold: cfg.Breaker.PermanentThreshold,
		}),
		Logger:  logger,
		Metrics: recorder,
	})
	remote.SetDefault(pool)

	resolver := remote.NewResolver(store, cfg.SSH.DNSTimeout, logger)
	planner := remote.NewPlanner(routes, resolver, cfg.SSH.Port, cfg.SSH.ProbeTimeout, logger)

	manager, err := remote.NewManager(remote.ManagerOptions{
		Pool:           pool,
		Resolver:       resolver,
		Planner:        planner,
		DefaultUser:    cfg.SSH.DefaultUser,
		DefaultKeyPath: cfg.SSH.DefaultKeyPath,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		CommandTimeout: cfg.SSH.CommandTimeout,
		DisablePooling: !cfg.SSH.PoolingEnabled,
		Logger:         logger,
		Metrics:        recorder,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	risk, err := executor.NewRiskAssessor(cfg.Risk.HighPatterns, cfg.Risk.MediumPatterns)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	actions, err := executor.NewActionExecutor(executor.ActionExecutorOptions{
		Remote:         manager,
		Risk:           risk,
		Prompter:       executor.NewTerminalPrompter(),
		Interactive:    cfg.Core.Interactive,
		DefaultTimeout: cfg.SSH.CommandTimeout,
		Logger:         logger,
		Metrics:        recorder,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  recorder,
		store:    store,
		routes:   routes,
		pool:     pool,
		manager:  manager,
		executor: actions,
	}, nil
}

// close tears the app down in reverse construction order.
func (a *app) close() {
	a.pool.CloseAll()
	_ = a.store.Close()
}

func buildLogger(cfg *config.Config, w io.Writer) *observability.Logger {
	level := observability.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Format == "text" {
		return observability.NewLogger(observability.NewTextHandler(w, level))
	}
	return observability.NewLogger(observability.NewJSONHandler(w, level))
}

func buildMetrics(cfg *config.Config) (observability.MetricsRecorder, error) {
	if !cfg.Metrics.Enabled {
		return observability.NewNoOpMetricsRecorder(), nil
	}
	provider, err := observability.InitMeterProvider(true)
	if err != nil {
		return nil, err
	}
	return observability.NewOTelMetricsRecorder(provider.Meter("merlya")), nil
}
