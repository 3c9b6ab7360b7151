package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/dukkanhq/dukkan/internal/config"
	"github.com/dukkanhq/dukkan/internal/session"
	"github.com/dukkanhq/dukkan/internal/store"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the offline operation queue",
	}
	cmd.AddCommand(newQueueListCommand(rootOpts))
	return cmd
}

func newQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending offline operations in replay order",
		Long: `List the operations waiting for replay, oldest first.

The queue is scoped per user. Without --user the command resolves the
user from the configured session token, which needs network access.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(rootOpts, userID, cmd)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id owning the queue")
	return cmd
}

func runQueueList(opts *RootOptions, userID string, cmd *cobra.Command) error {
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

	if userID == "" {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
		auth := session.NewHTTPAuth(cfg.Remote.URL, cfg.Remote.Key, cfg.Remote.Token)
		sess, err := auth.GetSession(probeCtx)
		if err != nil {
			return WrapExitError(ExitFailure, "could not resolve user, pass --user", err)
		}
		if sess == nil {
			return NewExitError(ExitFailure, "not signed in: pass --user or set remote.token")
		}
		userID = sess.UserID
	}

	ops, err := st.ListOperations(ctx, userID)
	if err != nil {
		return WrapExitError(ExitFailure, "reading queue", err)
	}

	if opts.Format == "json" {
		return out.Success(queueListData(ops))
	}
	fmt.Fprint(cmd.OutOrStdout(), renderQueueTable(ops))
	return nil
}

type queueEntry struct {
	ID        int64     `json:"id"`
	OpID      string    `json:"op_id"`
	Action    string    `json:"action"`
	Table     string    `json:"table,omitempty"`
	Amount    *float64  `json:"amount,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func queueListData(ops []store.Operation) []queueEntry {
	entries := make([]queueEntry, 0, len(ops))
	for _, op := range ops {
		entries = append(entries, queueEntry{
			ID:        op.ID,
			OpID:      op.OpID,
			Action:    op.Action,
			Table:     op.TableName,
			Amount:    payloadAmount(op.Payload),
			CreatedAt: op.CreatedAt,
		})
	}
	return entries
}

// renderQueueTable formats pending operations as an aligned table,
// oldest first. Amounts use grouped decimal formatting.
func renderQueueTable(ops []store.Operation) string {
	if len(ops) == 0 {
		return "Queue is empty.\n"
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tTABLE\tAMOUNT\tQUEUED")

	p := message.NewPrinter(language.English)
	for _, op := range ops {
		amount := "-"
		if v := payloadAmount(op.Payload); v != nil {
			amount = p.Sprintf("%v", number.Decimal(*v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
		}
		table := op.TableName
		if table == "" {
			table = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			op.ID, op.Action, table, amount, op.CreatedAt.UTC().Format(time.RFC3339))
	}
	w.Flush()
	fmt.Fprintf(&buf, "\n%d operation(s) pending.\n", len(ops))
	return buf.String()
}

// payloadAmount pulls the monetary total out of an opaque payload, nil
// when absent or non-numeric.
func payloadAmount(payload json.RawMessage) *float64 {
	if len(payload) == 0 {
		return nil
	}
	var fields struct {
		Total *float64 `json:"total"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	return fields.Total
}
