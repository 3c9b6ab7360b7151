package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukkanhq/dukkan/internal/assets"
	"github.com/dukkanhq/dukkan/internal/config"
	"github.com/dukkanhq/dukkan/internal/engine"
	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/session"
	"github.com/dukkanhq/dukkan/internal/store"
)

// NewSyncCommand creates the sync command: a single foreground drain
// pass over the offline queue.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay the offline queue once",
		Long: `Run one drain pass over the offline queue and exit.

Requires a valid session token in the configuration. Operations that
fail transiently stay queued for the next pass.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()
	auth := session.NewHTTPAuth(cfg.Remote.URL, cfg.Remote.Key, cfg.Remote.Token)
	sess, err := auth.GetSession(probeCtx)
	if err != nil {
		return WrapExitError(ExitFailure, "session probe failed", err)
	}
	if sess == nil {
		return NewExitError(ExitFailure, "not signed in: set remote.token in the config")
	}

	eng := engine.New(st, remote.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Key),
		engine.WithAssets(assets.NewHTTPStore(cfg.Remote.URL, cfg.Remote.Key, cfg.Bucket)),
		engine.WithIdentity(engine.StaticIdentity(sess.UserID)),
		engine.WithMaxRetries(cfg.MaxRetries),
	)

	before, err := eng.QueueCount(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "reading queue", err)
	}
	if err := eng.ProcessQueue(ctx); err != nil {
		return WrapExitError(ExitFailure, "sync pass failed", err)
	}
	after, err := eng.QueueCount(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "reading queue", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]int{"replayed": before - after, "remaining": after})
	}
	return out.Success(fmt.Sprintf("Replayed %d operation(s), %d remaining.", before-after, after))
}
