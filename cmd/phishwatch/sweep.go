package main

import (
	"context"
	"fmt"

	"github.com/mikey/phishwatch/internal/di"
	"github.com/mikey/phishwatch/internal/factory"
	"github.com/mikey/phishwatch/internal/scan"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Process the mailbox backlog once and exit",
	Long: `Sweep lists every message matching scan.query regardless of read state,
scores the ones not yet labelled processed, then exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := di.BuildContainer(configFile)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}

		return container.Invoke(func(logger *zap.Logger, source *factory.MailSource, c *scan.Controller) error {
			defer logger.Sync()
			defer closeResources(container, logger)

			// the local mailbox only holds messages received while the listener runs
			if source.Listener != nil {
				return fmt.Errorf("sweep needs a persistent mailbox, connector.type is mailbox")
			}

			stats, err := c.Sweep(context.Background())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Listed: %d\nSkipped: %d\nProcessed: %d\nFetch failures: %d\n",
				stats.Listed, stats.Skipped, stats.Processed, stats.FetchFailed)
			return nil
		})
	},
}
