package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/realmate/conversations/internal/audit"
	"github.com/realmate/conversations/internal/db"
	"github.com/realmate/conversations/internal/models"
	"github.com/realmate/conversations/internal/utils"
)

var filter audit.Filter

var rootCmd = &cobra.Command{
	Use:   "inspect_webhook_logs",
	Short: "Print recent webhook audit entries",
	Long: `Reads the webhook audit trail from the configured AUDIT_SINK
(postgres or mongo), newest first.

Examples:
  inspect_webhook_logs --status error
  inspect_webhook_logs --event NEW_MESSAGE --limit 20
  inspect_webhook_logs --search closed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.LoadEnvFiles(); err != nil {
			return err
		}
		cfg, err := utils.LoadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		sink, closeSink, err := openSink(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeSink()

		entries, err := audit.NewLogger(sink, nil).List(ctx, filter)
		if err != nil {
			return err
		}

		printEntries(cmd, entries)
		return nil
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&filter.Event, "event", "", "Only entries for this event type")
	flags.StringVar((*string)(&filter.Status), "status", "", "Only success or error entries")
	flags.StringVar(&filter.ConversationID, "conversation", "", "Only entries for this conversation id")
	flags.StringVar(&filter.Search, "search", "", "Case-insensitive match on event, message or conversation id")
	flags.IntVar(&filter.Limit, "limit", 50, "Maximum entries to print (up to 1000)")
}

func openSink(ctx context.Context, cfg *utils.Config) (audit.Sink, func(), error) {
	switch cfg.AuditSink {
	case utils.AuditSinkMongo:
		mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		return audit.NewMongoSink(mongoStore.WebhookLogs), func() { _ = mongoStore.Close(context.Background()) }, nil
	case utils.AuditSinkPostgres:
		postgres, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return audit.NewPostgresSink(postgres.Pool), postgres.Close, nil
	default:
		return nil, nil, fmt.Errorf("audit sink %q is not persistent", cfg.AuditSink)
	}
}

func printEntries(cmd *cobra.Command, entries []models.WebhookLog) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tEVENT\tSTATUS\tCONVERSATION\tMESSAGE")
	for _, entry := range entries {
		conversationID := "-"
		if entry.ConversationID != nil {
			conversationID = *entry.ConversationID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Format(time.RFC3339),
			entry.Event,
			entry.Status,
			conversationID,
			entry.Message,
		)
	}
	_ = w.Flush()
	fmt.Fprintf(cmd.ErrOrStderr(), "%d entries\n", len(entries))
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
