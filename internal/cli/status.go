package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukkanhq/dukkan/internal/config"
	"github.com/dukkanhq/dukkan/internal/remote"
	"github.com/dukkanhq/dukkan/internal/session"
	"github.com/dukkanhq/dukkan/internal/store"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show connectivity, session, and queue state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, userID, cmd)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id owning the queue")
	return cmd
}

type statusData struct {
	Online     bool   `json:"online"`
	SignedIn   bool   `json:"signed_in"`
	UserID     string `json:"user_id,omitempty"`
	QueueDepth int    `json:"queue_depth"`
	DBPath     string `json:"db_path"`
}

func runStatus(opts *RootOptions, userID string, cmd *cobra.Command) error {
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

	data := statusData{
		Online: remote.NewProbe(cfg.Remote.URL).Online(),
		DBPath: cfg.DBPath,
	}

	if userID == "" && cfg.Remote.Token != "" {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
		auth := session.NewHTTPAuth(cfg.Remote.URL, cfg.Remote.Key, cfg.Remote.Token)
		if sess, err := auth.GetSession(probeCtx); err == nil && sess != nil {
			userID = sess.UserID
		}
	}
	if userID != "" {
		data.SignedIn = true
		data.UserID = userID
		if depth, err := st.QueueCount(ctx, userID); err == nil {
			data.QueueDepth = depth
		} else {
			slog.Warn("reading queue depth", "error", err)
		}
	}

	if opts.Format == "json" {
		return out.Success(data)
	}
	return out.Success(renderStatus(data))
}

func renderStatus(data statusData) string {
	online := "offline"
	if data.Online {
		online = "online"
	}
	signedIn := "signed out"
	if data.SignedIn {
		signedIn = "signed in as " + data.UserID
	}
	return fmt.Sprintf("Remote: %s\nSession: %s\nQueue: %d pending\nDatabase: %s",
		online, signedIn, data.QueueDepth, data.DBPath)
}
