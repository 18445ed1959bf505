package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/internal/telemetry"
	"github.com/modelcached/modelcached/pkg/api"
	"github.com/modelcached/modelcached/pkg/api/auth"
	"github.com/modelcached/modelcached/pkg/config"
	cpruntime "github.com/modelcached/modelcached/pkg/controlplane/runtime"
	cpstore "github.com/modelcached/modelcached/pkg/controlplane/store"
	"github.com/modelcached/modelcached/pkg/metrics"
	metricsprom "github.com/modelcached/modelcached/pkg/metrics/prometheus"
	"github.com/modelcached/modelcached/pkg/runtime/stub"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the modelcached server",
	Long: `Start the modelcached server with the specified configuration.

The server runs in the foreground; use a process supervisor or container
runtime for daemonization.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/modelcached/config.yaml.

Examples:
  # Start with default config location
  modelcached start

  # Start with custom config file
  modelcached start --config /etc/modelcached/config.yaml

  # Start with environment variable overrides
  MODELCACHED_LOGGING_LEVEL=DEBUG modelcached start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (optional)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "modelcached",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "modelcached",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// Initialize metrics FIRST so components created below see metrics enabled.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
	}

	// Control plane store
	db, err := cpstore.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize control plane store: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Control plane store ready", "type", cfg.Database.Type)

	// Remote artifact store
	remote, err := config.CreateRemoteStore(ctx, cfg.Store, metricsprom.NewStoreMetrics())
	if err != nil {
		return fmt.Errorf("failed to initialize remote store: %w", err)
	}
	defer func() { _ = remote.Close() }()
	logger.Info("Remote artifact store ready", "backend", cfg.Store.Backend)

	// Model runtime loader
	runtimeDir := filepath.Join(cfg.Serving.DataDir, "runtimes")
	if err := os.MkdirAll(runtimeDir, 0755); err != nil {
		return fmt.Errorf("failed to create runtime directory: %w", err)
	}
	loader := &stub.Loader{WorkDir: runtimeDir}

	// Instance manager: realizes persisted endpoints as live serving state.
	manager, err := cpruntime.NewManager(cpruntime.Config{
		Store:             db,
		Remote:            remote,
		Loader:            loader,
		DataDir:           cfg.Serving.DataDir,
		PoolMetrics:       metricsprom.NewPoolMetrics(),
		DiskMetrics:       metricsprom.NewDiskCacheMetrics(),
		DispatcherMetrics: metricsprom.NewDispatcherMetrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to create instance manager: %w", err)
	}
	defer func() { _ = manager.Close() }()

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start endpoints: %w", err)
	}

	// Admin API authentication
	secret := cfg.API.GetJWTSecret()
	if secret == "" {
		return fmt.Errorf("no JWT secret configured\n\n"+
			"Run 'modelcached init' to generate a configuration with a secret, or set:\n"+
			"  export %s=$(openssl rand -hex 32)", api.EnvAdminSecret)
	}
	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               secret,
		Issuer:               cfg.API.JWT.Issuer,
		AccessTokenDuration:  cfg.API.JWT.AccessTokenDuration,
		RefreshTokenDuration: cfg.API.JWT.RefreshTokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to create JWT service: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Store:            db,
		Manager:          manager,
		Remote:           remote,
		JWTService:       jwtService,
		MaxPayloadBytes:  int64(cfg.Serving.MaxPayloadSize),
		MaxArtifactBytes: int64(cfg.Serving.MaxArtifactSize),
		RequestTimeout:   cfg.API.WriteTimeout,
	})
	apiServer := api.NewServer(cfg.API, router)

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	if metricsServer != nil {
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	apiServer.Start()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", cfg.API.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-apiServer.Errors():
		signal.Stop(sigChan)
		logger.Error("API server error", "error", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}
