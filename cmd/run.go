package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/execution"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daily price pipeline once",
	Long:  "Collects vendor messages, extracts prices, writes the daily reports, and delivers the summary. The exit code reflects the outcome: 0 success, 1 partial, 2 critical, 3 interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec := env.Orchestrator.Run(ctx)

		if err := writeRunSummary(os.Stdout, rec.Summary()); err != nil {
			return err
		}

		if code := rec.Status().ExitCode(); code != 0 {
			env.Close()
			_ = zap.L().Sync()
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// writeRunSummary prints the run record as indented JSON.
func writeRunSummary(w io.Writer, summary execution.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
