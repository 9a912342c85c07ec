package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/socktainerd"
	"github.com/loykin/socktainerd/internal/config"
	"github.com/loykin/socktainerd/internal/host"
	"github.com/loykin/socktainerd/internal/logger"
	"github.com/loykin/socktainerd/internal/metrics"
	"github.com/loykin/socktainerd/internal/server"
	"github.com/loykin/socktainerd/internal/telemetry"
	"github.com/loykin/socktainerd/internal/telemetry/factory"
)

// RunFlags holds flags for the run command.
type RunFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	rf := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [config.toml]",
		Short: "Monitor the runtime and supervise the bridge until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(flags, args)
			if err != nil {
				return err
			}
			if rf.Daemonize {
				return daemonize(rf.PidFile, rf.LogFile)
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if rf.PidFile != "" {
				if err := writePidFile(rf.PidFile, os.Getpid()); err != nil {
					return fmt.Errorf("failed to write PID file: %w", err)
				}
				defer func() { _ = removePidFile(rf.PidFile) }()
			}
			return runDaemon(ctx, c, os.Stderr)
		},
	}
	cmd.Flags().BoolVar(&rf.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&rf.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&rf.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

// runDaemon blocks until ctx is done, then deactivates and shuts down.
func runDaemon(ctx context.Context, c *config.Config, logOut io.Writer) error {
	if err := logger.Setup(logOut, c.Log.Level, c.Log.Format); err != nil {
		return err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("failed to register metrics", "error", err)
	}
	var metricsSrv *http.Server
	if c.Metrics.Listen != "" {
		metricsSrv = serveMetrics(c.Metrics.Listen)
	}
	defer server.Shutdown(metricsSrv, 5*time.Second)

	sink, closeSink, err := buildSink(c.Telemetry.DSN)
	if err != nil {
		return err
	}
	defer closeSink()

	opts, err := socktainerd.FromConfig(c)
	if err != nil {
		return err
	}
	local := host.NewLocal()
	opts.Host = local
	opts.Sink = sink
	ext := socktainerd.New(opts)
	if err := ext.Activate(ctx); err != nil {
		return err
	}

	var apiSrv *http.Server
	if c.Server.Listen != "" {
		r := server.NewRouter(server.Deps{
			ProviderID: socktainerd.ProviderID,
			Monitor:    ext.Monitor(),
			Bridge:     ext.Supervisor(),
			Host:       local,
		}, c.Server.BasePath)
		apiSrv = server.NewServer(c.Server.Listen, r)
		slog.Info("API server listening", "addr", c.Server.Listen, "base", c.Server.BasePath)
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	ext.Deactivate()
	server.Shutdown(apiSrv, 5*time.Second)
	return nil
}

// buildSink always logs usage events and additionally stores them when dsn
// is set.
func buildSink(dsn string) (telemetry.Sink, func(), error) {
	if dsn == "" {
		return telemetry.LogSink{}, func() {}, nil
	}
	s, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create telemetry sink: %w", err)
	}
	m := telemetry.Multi{telemetry.LogSink{}, s}
	return m, func() { _ = m.Close() }, nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
