package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/grovetools/repostore/cli"
	"github.com/grovetools/repostore/config"
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/collector"
	"github.com/grovetools/repostore/internal/daemon/engine"
	"github.com/grovetools/repostore/internal/daemon/pidfile"
	"github.com/grovetools/repostore/internal/daemon/server"
	"github.com/grovetools/repostore/internal/daemon/store"
	"github.com/grovetools/repostore/internal/daemon/watcher"
	"github.com/grovetools/repostore/logging"
	"github.com/grovetools/repostore/pkg/daemon"
	"github.com/grovetools/repostore/pkg/paths"
	"github.com/grovetools/repostore/pkg/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		Long: `Start the repostore daemon in the foreground.

The daemon serves the state store on a Unix socket and, when server.address
is set, on TCP. When collector.roots is set it scans local git repositories
and keeps the store current. Changes to the configuration file are picked up
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd, "repostored")
			opts := cli.GetOptions(cmd)

			cfg, source, err := config.LoadOrDefault(opts.ConfigFile, logger)
			if err != nil {
				return err
			}
			if err := logging.Configure(cfg); err != nil {
				logger.WithError(err).Warn("Invalid logging configuration, using defaults")
			}
			// Configure resets levels; --verbose wins.
			logger = cli.GetLogger(cmd, "repostored")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := newDaemon(cfg, source, logger)
			if err != nil {
				return err
			}
			return d.run(ctx)
		},
	}
}

// daemonProcess wires the store, engine, collector, server and config
// watcher of one daemon run.
type daemonProcess struct {
	logger  *logrus.Entry
	source  string
	socket  string
	address string
	started time.Time

	store  *store.Store
	engine *engine.Engine
	server *server.Server

	collector config.CollectorConfig
}

func newDaemon(cfg *config.Config, source string, logger *logrus.Entry) (*daemonProcess, error) {
	d := &daemonProcess{
		logger:    logger,
		source:    source,
		socket:    socketPath(cfg),
		address:   cfg.Server.Address,
		started:   time.Now(),
		store:     store.New(),
		engine:    engine.New(logging.NewLogger("engine"), cfg.Engine.QueueSize),
		collector: cfg.Collector,
	}
	d.store.SetSubscriberBuffer(cfg.Server.StreamBuffer)
	d.engine.AddHandler(d.store)

	if cfg.Collector.IsEnabled() {
		gc, err := collector.NewGitCollector(collector.GitOptions{
			Roots:    cfg.Collector.Roots,
			Exclude:  cfg.Collector.Exclude,
			Revs:     cfg.Collector.Revs,
			Interval: cfg.Collector.Interval.Std(),
		}, logging.NewLogger("collector"))
		if err != nil {
			return nil, err
		}
		d.engine.Register(gc)
	}

	d.server = server.New(logging.NewLogger("server"), d.store, d.engine)
	d.server.SetRunningConfig(d.runningConfig(cfg))
	return d, nil
}

func (d *daemonProcess) runningConfig(cfg *config.Config) *server.RunningConfig {
	return &server.RunningConfig{
		ConfigFile:        d.source,
		CollectorEnabled:  cfg.Collector.IsEnabled(),
		CollectorRoots:    cfg.Collector.Roots,
		CollectorInterval: cfg.Collector.Interval.Std(),
		QueueSize:         cfg.Engine.QueueSize,
		StartedAt:         d.started,
	}
}

func (d *daemonProcess) run(ctx context.Context) error {
	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	pidPath := paths.PidFilePath()
	if err := pidfile.Acquire(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			d.logger.WithError(err).Error("Failed to release pidfile")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.engine.Start(ctx)

	if d.source != "" {
		w, err := watcher.New(d.source, watcher.DefaultDebounce, logging.NewLogger("watcher"), d.reload)
		if err != nil {
			d.logger.WithError(err).Warn("Config watcher disabled")
		} else {
			defer w.Close()
			go w.Start(ctx)
		}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- d.server.ListenAndServe(d.socket) }()
	if d.address != "" {
		go func() { errCh <- d.server.ListenAndServeTCP(d.address) }()
	}

	d.logger.WithFields(logrus.Fields{
		"pid":    os.Getpid(),
		"config": d.source,
	}).Info("Starting daemon")

	var serveErr error
	select {
	case <-ctx.Done():
		d.logger.Info("Received stop signal")
	case serveErr = <-errCh:
		d.logger.WithError(serveErr).Error("Listener failed")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.WithError(err).Error("Server shutdown error")
	}

	select {
	case <-d.engine.Stopped():
	case <-shutdownCtx.Done():
		d.logger.Warn("Engine did not stop in time")
	}

	snap := d.store.Get()
	d.logger.WithFields(logrus.Fields{
		"repos":         snap.Repos.Len(),
		"resolved_revs": snap.ResolvedRevs.Len(),
		"resolutions":   snap.Resolutions.Len(),
		"commits":       snap.Commits.Len(),
		"inventories":   snap.Inventory.Len(),
	}).Info("Daemon stopped")
	return serveErr
}

// reload re-reads the configuration file. Logging and the subscriber buffer
// change in place; listener and collector settings need a restart.
func (d *daemonProcess) reload(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		d.logger.WithError(err).Warn("Ignoring invalid configuration")
		return
	}
	if err := logging.Configure(cfg); err != nil {
		d.logger.WithError(err).Warn("Invalid logging configuration")
	}

	d.store.SetSubscriberBuffer(cfg.Server.StreamBuffer)
	d.server.SetRunningConfig(d.runningConfig(cfg))

	if socketPath(cfg) != d.socket || cfg.Server.Address != d.address {
		d.logger.Warn("Listener changes take effect after a restart")
	}
	if !reflect.DeepEqual(cfg.Collector, d.collector) {
		d.logger.Warn("Collector changes take effect after a restart")
	}
	d.logger.WithField("path", path).Info("Configuration reloaded")
}

func socketPath(cfg *config.Config) string {
	if cfg.Server.Socket != "" {
		return cfg.Server.Socket
	}
	return paths.SocketPath()
}

func newStopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := process.Terminate(ctx, pid); err != nil {
				return fmt.Errorf("failed to stop daemon (PID %d): %w", pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped daemon (PID %d)\n", pid)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the daemon to exit")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Long:  "Check daemon status. Exits non-zero when the daemon is not running.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			endpoint, err := endpointFor(cmd)
			if err != nil {
				return err
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				return errors.DaemonNotRunning(endpoint)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running (PID: %d)\nEndpoint: %s\n", pid, endpoint)

			client, err := daemon.Connect(endpoint)
			if err != nil {
				return err
			}
			defer client.Close()

			rc, err := client.Config(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, rc)
			}
			if rc.ConfigFile != "" {
				fmt.Fprintf(out, "Config: %s\n", rc.ConfigFile)
			}
			fmt.Fprintf(out, "Started: %s\n", rc.StartedAt.Format(time.RFC3339))
			if rc.CollectorEnabled {
				fmt.Fprintf(out, "Collector: every %s over %v\n", rc.CollectorInterval, rc.CollectorRoots)
			} else {
				fmt.Fprintln(out, "Collector: disabled")
			}
			return nil
		},
	}
}
