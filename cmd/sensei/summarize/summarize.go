// Package summarizecmder folds a conversation's older messages into its
// running summary on demand.
package summarizecmder

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/cmd/sensei/app"
	"github.com/papercomputeco/sensei/pkg/config"
	"github.com/papercomputeco/sensei/pkg/logger"
)

const summarizeLongDesc string = `Advance the running summary of one or more conversations.

Every message except the newest summarizer.raw_buffer is folded into the
stored summary, exactly as the background conversation.summarize task
would. Running it again with no new messages changes nothing.

Examples:
  sensei summarize 01JD4X0Q5ZB7K8X3M2J9N6V1TR
  sensei summarize --storage-driver postgres --postgres $DSN conv-a conv-b`

const summarizeShortDesc string = "Summarize conversations now"

func NewSummarizeCmd() *cobra.Command {
	var (
		storageDriver string
		sqlitePath    string
		postgresDSN   string
	)

	cmd := &cobra.Command{
		Use:   "summarize <conversation-id>...",
		Short: summarizeShortDesc,
		Long:  summarizeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagStorageDriver, config.FlagSQLite, config.FlagPostgres})
			cfg := config.FromViper(v)
			// Run in-process; nothing here needs the shared queue.
			cfg.Queue.Backend = "nop"

			log := logger.NewLogger(debug)
			defer func() { _ = log.Sync() }()

			a, err := app.New(cmd.Context(), cfg, app.Options{ConfigDir: configDir, Logger: log})
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				res, err := a.Summarizer.SummarizeConversation(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("summarizing %s: %w", id, err)
				}
				if res.Summarized == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing new to summarize\n", id)
					continue
				}
				log.Debug("summarized", zap.String("conversation_id", id), zap.Int64("bookmark", res.Bookmark))
				fmt.Fprintf(cmd.OutOrStdout(), "%s: folded %d messages (bookmark %d)\n\n%s\n\n", id, res.Summarized, res.Bookmark, res.Summary)
			}
			return nil
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageDriver, &storageDriver)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &postgresDSN)

	return cmd
}
