package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/config"
	"github.com/electro-tech/pricewatch/internal/delivery"
	"github.com/electro-tech/pricewatch/internal/execution"
	"github.com/electro-tech/pricewatch/internal/pipeline"
	"github.com/electro-tech/pricewatch/internal/resilience"
	"github.com/electro-tech/pricewatch/internal/sink"
	"github.com/electro-tech/pricewatch/internal/source"
	"github.com/electro-tech/pricewatch/internal/store"
	"github.com/electro-tech/pricewatch/pkg/notion"
)

// pipelineEnv holds the initialized store, adapters, and orchestrator
// needed by the run/report/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Source       source.Source
	Sinks        []sink.Sink
	Dispatcher   *delivery.Dispatcher
	Audit        *execution.AuditLog
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the pipeline environment. Safe to
// call more than once.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the message source, the report sinks,
// and the delivery channel, then builds the Orchestrator. Callers
// should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	src, err := buildSource(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ch, err := buildChannel(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	audit, err := execution.NewAuditLog(cfg.Audit.Dir)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "open audit log")
	}

	sinks := buildSinks(cfg)
	dispatcher := delivery.NewDispatcher(ch, st)
	orch := pipeline.New(st, src, sinks, dispatcher, audit, cfg.Delivery.Recipient, stageRetries(cfg))

	return &pipelineEnv{
		Store:        st,
		Source:       src,
		Sinks:        sinks,
		Dispatcher:   dispatcher,
		Audit:        audit,
		Orchestrator: orch,
	}, nil
}

// buildSource selects the message drop adapter.
func buildSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case "dir":
		return source.NewDirSource(cfg.Source.Dir), nil
	case "ftp":
		if cfg.Source.FTP.Addr == "" {
			return nil, eris.New("source.ftp.addr is required for the ftp source")
		}
		return source.NewFTPSource(source.FTPOptions{
			Addr:     cfg.Source.FTP.Addr,
			User:     cfg.Source.FTP.User,
			Password: cfg.Source.FTP.Password,
			Dir:      cfg.Source.FTP.Dir,
		}), nil
	default:
		return nil, eris.Errorf("unsupported source kind: %s", cfg.Source.Kind)
	}
}

// buildSinks assembles the configured report sinks. The file sink is
// always on; xlsx and notion are opt-in.
func buildSinks(cfg *config.Config) []sink.Sink {
	sinks := []sink.Sink{sink.NewFileSink(cfg.Report.OutputDir)}

	if cfg.Report.XLSX {
		sinks = append(sinks, sink.NewXLSXSink(cfg.Report.OutputDir))
	}

	if cfg.Report.Notion.Token != "" && cfg.Report.Notion.DatabaseID != "" {
		client := notion.NewClient(cfg.Report.Notion.Token)
		sinks = append(sinks, sink.NewNotionSink(client, cfg.Report.Notion.DatabaseID))
		zap.L().Info("notion sink enabled", zap.String("database_id", cfg.Report.Notion.DatabaseID))
	}

	return sinks
}

// buildChannel selects the delivery transport, optionally wrapped with
// a circuit breaker.
func buildChannel(cfg *config.Config) (delivery.Channel, error) {
	var ch delivery.Channel
	switch cfg.Delivery.Kind {
	case "outbox":
		ch = delivery.NewOutboxChannel(cfg.Delivery.OutboxDir)
	case "webhook":
		if cfg.Delivery.WebhookURL == "" {
			return nil, eris.New("delivery.webhook_url is required for the webhook channel")
		}
		ch = delivery.NewWebhookChannel(cfg.Delivery.WebhookURL, cfg.Delivery.RatePerMinute)
	default:
		return nil, eris.Errorf("unsupported delivery kind: %s", cfg.Delivery.Kind)
	}

	if cfg.Delivery.CircuitBreaker.Enabled {
		breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
			cfg.Delivery.CircuitBreaker.FailureThreshold,
			time.Duration(cfg.Delivery.CircuitBreaker.RecoveryTimeoutSecs)*time.Second,
		))
		ch = delivery.NewGuarded(ch, breaker)
		zap.L().Info("delivery circuit breaker enabled",
			zap.Int("failure_threshold", cfg.Delivery.CircuitBreaker.FailureThreshold),
			zap.Int("recovery_timeout_secs", cfg.Delivery.CircuitBreaker.RecoveryTimeoutSecs),
		)
	}

	return ch, nil
}

// stageRetries maps the retries section of the config onto the
// per-stage budgets.
func stageRetries(cfg *config.Config) pipeline.StageRetries {
	maxBackoff := time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond
	stage := func(sc config.StageRetryConfig) resilience.RetryConfig {
		return resilience.FromRetryConfig(
			sc.MaxAttempts,
			time.Duration(sc.InitialDelayMS)*time.Millisecond,
			maxBackoff,
			cfg.Retry.Multiplier,
			cfg.Retry.Jitter,
		)
	}
	return pipeline.StageRetries{
		Collect: stage(cfg.Retry.Collect),
		Extract: stage(cfg.Retry.Extract),
		Report:  stage(cfg.Retry.Report),
		Deliver: stage(cfg.Retry.Deliver),
	}
}
