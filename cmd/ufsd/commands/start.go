package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/mount"
	"github.com/marmos91/ufsd/internal/notify"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/handlers"
	"github.com/marmos91/ufsd/internal/volume"
	"github.com/marmos91/ufsd/pkg/config"
	"github.com/marmos91/ufsd/pkg/metrics"
	ufsdprom "github.com/marmos91/ufsd/pkg/metrics/prometheus"
	"github.com/spf13/cobra"
)

// deviceName is the control device published for the mounted volume.
const deviceName = `\Device\UFSD`

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ufsd control daemon",
	Long: `Start the control daemon: sequence the configured volume mount,
publish it in the mount table, and run the background liveness and
node-collection tasks until interrupted.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/ufsd/config.yaml.

Examples:
  # Start with default config location
  ufsd start

  # Start with custom config file
  ufsd start --config /etc/ufsd/config.yaml

  # Start with environment variable overrides
  UFSD_LOGGING_LEVEL=DEBUG ufsd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	handlers.SetOplockDebug(cfg.Oplock.DebugLog)

	// Initialize metrics before anything that records into them. The
	// server blocks until shutdown, so it runs in the background and
	// reports failures through its error channel.
	var metricsServer *metrics.Server
	metricsErrChan := make(chan error, 1)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsServer = metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port})
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
				metricsErrChan <- err
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}
	mountMetrics := ufsdprom.NewMountMetrics()

	table := mount.NewTable()
	seq := mount.NewSequencer(mount.SequencerConfig{
		Table: table,
		Notify: func(dev *mount.Device) volume.NotifyRegistry {
			return notify.NewRegistry()
		},
		Metrics:          mountMetrics,
		KeepaliveTimeout: cfg.Mount.KeepaliveTimeout,
		GCInterval:       cfg.Mount.GCInterval,
	})

	dev := mount.NewDevice(mount.DeviceParams{
		Name:       deviceName,
		MountPoint: cfg.Mount.MountPoint,
		UNCName:    cfg.Mount.UNCName,
		Label:      cfg.Mount.Label,
		Options:    mountOptions(&cfg.Mount),
	})
	table.AddPending(dev.DeviceName(), dev.SessionID(), dev.Options())

	if status := seq.Mount(ctx, dev); !status.IsSuccess() {
		return fmt.Errorf("mount failed: %s", status)
	}

	// Wait for interrupt signal or a metrics server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Daemon is running. Press Ctrl+C to stop.")
	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-metricsErrChan:
		logger.Error("Metrics server failed, initiating shutdown", "error", err)
		runErr = err
	}
	signal.Stop(sigChan)
	cancel()

	// Graceful teardown, bounded by the configured shutdown timeout
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		seq.Unmount(dev)
		if metricsServer != nil {
			if err := metricsServer.Shutdown(); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
	}()
	select {
	case <-shutdownDone:
		logger.Info("Daemon stopped gracefully")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Error("Graceful shutdown timed out", "timeout", cfg.ShutdownTimeout)
	}

	return runErr
}

// mountOptions maps the mount config section onto the device options
// bitset.
func mountOptions(cfg *config.MountConfig) mount.Options {
	var opts mount.Options
	if cfg.Network {
		opts |= mount.OptionNetwork
	}
	if cfg.Removable {
		opts |= mount.OptionRemovable
	}
	if cfg.WriteProtect {
		opts |= mount.OptionWriteProtect
	}
	if cfg.MountManager {
		opts |= mount.OptionMountManager
	}
	if cfg.CurrentSession {
		opts |= mount.OptionCurrentSession
	}
	if cfg.UserModeLocking {
		opts |= mount.OptionUserModeLocking
	}
	return opts
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
