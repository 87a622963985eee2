// Package monitoring backs the ops surface: on-demand health checks
// over the run's dependencies and a metrics snapshot from the store.
package monitoring

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/electro-tech/pricewatch/internal/source"
	"github.com/electro-tech/pricewatch/internal/store"
)

// HealthStatus is the overall verdict of one check pass.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "HEALTHY"
	StatusDegraded HealthStatus = "DEGRADED"
	StatusCritical HealthStatus = "CRITICAL"
)

// Check is a single registered health probe. A failed critical check
// marks the whole system CRITICAL; other failures only degrade it.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) error
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

// Report aggregates one check pass.
type Report struct {
	Status    HealthStatus  `json:"status"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// RunChecks executes every check concurrently. Probe failures are
// reported through the results, never as a run error.
func RunChecks(ctx context.Context, checks []Check) Report {
	results := make([]CheckResult, len(checks))

	g, gCtx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			res := CheckResult{Name: c.Name, Critical: c.Critical, Healthy: true}
			if err := c.Run(gCtx); err != nil {
				res.Healthy = false
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	status := StatusHealthy
	for _, r := range results {
		if r.Healthy {
			continue
		}
		if r.Critical {
			status = StatusCritical
			break
		}
		status = StatusDegraded
	}

	return Report{Status: status, Checks: results, CheckedAt: time.Now().UTC()}
}

// BuiltinChecks covers what a pipeline run needs: the store, both
// writable directories, and the message source.
func BuiltinChecks(st store.Store, src source.Source, outputDir, auditDir string) []Check {
	return []Check{
		StoreCheck(st),
		DirCheck("output_dir_writable", outputDir, false),
		DirCheck("audit_log_writable", auditDir, false),
		SourceCheck(src),
	}
}

// StoreCheck verifies the price store answers a real query.
func StoreCheck(st store.Store) Check {
	return Check{
		Name:     "store_reachable",
		Critical: true,
		Run: func(ctx context.Context) error {
			_, err := st.CountPrices(ctx, time.Now())
			return err
		},
	}
}

// DirCheck verifies dir accepts writes, creating it if missing.
func DirCheck(name, dir string, critical bool) Check {
	return Check{
		Name:     name,
		Critical: critical,
		Run: func(_ context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			probe := filepath.Join(dir, ".healthcheck")
			if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
				return err
			}
			return os.Remove(probe)
		},
	}
}

// SourceCheck verifies the message drop location responds.
func SourceCheck(src source.Source) Check {
	return Check{
		Name:     "source_reachable",
		Critical: false,
		Run:      src.Ping,
	}
}
