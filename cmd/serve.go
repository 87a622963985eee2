package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ops HTTP server",
	Long:  "Exposes health checks, today's metrics snapshot, and a trigger endpoint that starts one pipeline run. Only one run executes at a time; concurrent triggers get 409.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Serve.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctx, env, cfg.Report.OutputDir, cfg.Audit.Dir),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the ops endpoints. runCtx outlives individual
// requests and carries triggered pipeline runs.
func buildRouter(runCtx context.Context, env *pipelineEnv, outputDir, auditDir string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	collector := monitoring.NewCollector(env.Store)
	var runGuard sync.Mutex

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		checks := monitoring.BuiltinChecks(env.Store, env.Source, outputDir, auditDir)
		report := monitoring.RunChecks(req.Context(), checks)

		code := http.StatusOK
		if report.Status == monitoring.StatusCritical {
			code = http.StatusServiceUnavailable
		}
		respondJSON(w, code, report)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context(), time.Now())
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		status := opsStatus{Snapshot: snap}
		if pending, err := env.Store.CountOutbox(req.Context()); err == nil {
			status.OutboxPending = pending
		}

		respondJSON(w, http.StatusOK, status)
	})

	r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
		if !runGuard.TryLock() {
			respondJSON(w, http.StatusConflict, map[string]string{"error": "run already in progress"})
			return
		}

		// The run outlives the request; it is cancelled only with the
		// server itself.
		go func() {
			defer runGuard.Unlock()
			rec := env.Orchestrator.Run(runCtx)
			zap.L().Info("triggered run finished",
				zap.String("execution_id", rec.ExecutionID()),
				zap.String("status", string(rec.Status())),
			)
		}()

		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	return r
}

// opsStatus is the /status response body.
type opsStatus struct {
	Snapshot      *monitoring.Snapshot `json:"snapshot"`
	OutboxPending int                  `json:"outbox_pending"`
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
