package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mikey/phishwatch/internal/adapters/mailbox"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/di"
	"github.com/mikey/phishwatch/internal/scan"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoreFlags = &di.CLIFlags{}

var scoreCmd = &cobra.Command{
	Use:   "score [email-file]",
	Short: "Score a single RFC 5322 message from a file or stdin",
	Long: `Score parses one message, runs feature extraction and risk scoring and
prints the analysis as JSON. Alerts are only dispatched with --alert.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scoreFlags.ConfigFile = configFile

		raw, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		msg, err := mailbox.ParseMessage(raw)
		if err != nil {
			return fmt.Errorf("failed to parse message: %w", err)
		}

		container, err := di.BuildCLIContainer(scoreFlags)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}

		return container.Invoke(func(logger *zap.Logger, svc *core.AnalysisService) error {
			defer logger.Sync()

			if msg.Subject == "" {
				msg.Subject = scan.NoSubject
			}

			analysis, err := svc.Analyze(context.Background(), msg)
			if err != nil {
				return fmt.Errorf("failed to analyze message: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*core.Analysis
				Score core.RiskScore `json:"score"`
			}{Analysis: analysis, Score: analysis.Score})
		})
	},
}

func init() {
	scoreCmd.Flags().BoolVarP(&scoreFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	scoreCmd.Flags().BoolVar(&scoreFlags.JSONLog, "json-log", false, "Output logs in JSON format")
	scoreCmd.Flags().StringVar(&scoreFlags.Provider, "provider", "", "Classifier provider override (none, openai, gemini, bedrock)")
	scoreCmd.Flags().BoolVar(&scoreFlags.Alert, "alert", false, "Dispatch alerts for high risk messages")
}

// readInput reads the message from the named file, or stdin without one
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, nil
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return raw, nil
}
