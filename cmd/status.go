package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check pipeline health and today's market data",
	Long:  "Runs the health checks against the store, the message source, and the writable directories, then prints today's metrics snapshot. Exits 1 when a critical check fails.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		src, err := buildSource(cfg)
		if err != nil {
			return err
		}

		checks := monitoring.BuiltinChecks(st, src, cfg.Report.OutputDir, cfg.Audit.Dir)
		health := monitoring.RunChecks(ctx, checks)

		status := statusReport{Health: health}

		snap, err := monitoring.NewCollector(st).Collect(ctx, time.Now())
		if err != nil {
			zap.L().Warn("status: snapshot unavailable", zap.Error(err))
		} else {
			status.Snapshot = snap
		}

		if pending, err := st.CountOutbox(ctx); err != nil {
			zap.L().Warn("status: outbox count unavailable", zap.Error(err))
		} else {
			status.OutboxPending = pending
		}

		if err := writeStatus(os.Stdout, status); err != nil {
			return err
		}

		if health.Status == monitoring.StatusCritical {
			_ = st.Close()
			_ = zap.L().Sync()
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusReport is the JSON printed by the status command.
type statusReport struct {
	Health        monitoring.Report    `json:"health"`
	Snapshot      *monitoring.Snapshot `json:"snapshot,omitempty"`
	OutboxPending int                  `json:"outbox_pending"`
}

func writeStatus(w io.Writer, status statusReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
