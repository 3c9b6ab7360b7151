package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukkanhq/dukkan/internal/api"
	"github.com/dukkanhq/dukkan/internal/assets"
	"github.com/dukkanhq/dukkan/internal/cache"
	"github.com/dukkanhq/dukkan/internal/config"
	"github.com/dukkanhq/dukkan/internal/engine"
	"github.com/dukkanhq/dukkan/internal/forecast"
	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/session"
	"github.com/dukkanhq/dukkan/internal/store"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync daemon",
		Long: `Start the dukkan sync daemon.

The daemon opens the local SQLite database, probes the remote session,
performs an initial load of every collection, then keeps the offline
queue draining on a fixed interval. A local HTTP control surface serves
reads, writes, status, and manual sync triggers.

Example:
  dukkan run --config ./dukkan.yaml
  dukkan run -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
	return cmd
}

func runDaemon(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	slog.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	auth := session.NewHTTPAuth(cfg.Remote.URL, cfg.Remote.Key, cfg.Remote.Token)
	coord := session.New(auth,
		session.WithProbeTimeout(cfg.ProbeTimeout),
		session.WithNotify(func(title, message string) {
			slog.Warn("user notification", "title", title, "message", message)
		}),
		session.WithNavigate(func(page string) {
			slog.Info("navigation requested", "page", page)
		}),
	)

	eng := engine.New(st, remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Key),
		engine.WithAssets(assets.NewHTTPStore(cfg.Remote.URL, cfg.Remote.Key, cfg.Bucket)),
		engine.WithConnectivity(remote.NewProbe(cfg.Remote.URL)),
		engine.WithIdentity(coord),
		engine.WithCache(cache.New(cache.WithTTL(cfg.CacheTTL))),
		engine.WithMaxRetries(cfg.MaxRetries),
	)
	coord.SetLoader(eng)
	eng.OnQueueCountChange(func(n int) {
		slog.Debug("queue depth changed", "pending", n)
	})

	var fetcher api.Forecaster
	if cfg.Forecast.URL != "" {
		fetcher = forecast.NewFetcher(forecast.NewHTTPClient(cfg.Forecast.URL, cfg.Forecast.Key))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.New(eng, coord, fetcher),
	}
	go func() {
		slog.Info("control surface listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control surface failed", "error", err)
			cancel()
		}
	}()
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			slog.Error("control surface shutdown", "error", err)
		}
	}()

	coord.Start(ctx)
	defer coord.Stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Daemon started. Press Ctrl-C to stop.")

	err = eng.Run(ctx, cfg.SyncInterval)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "sync loop error", err)
	}

	slog.Info("daemon stopped gracefully")
	return nil
}

// setupLogging configures the default slog handler from the verbose
// flag.
func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
