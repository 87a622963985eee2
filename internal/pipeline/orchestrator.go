// Package pipeline orchestrates the daily price run: collect vendor
// messages, extract price observations, render and persist the reports,
// deliver the summary. Stages run strictly in sequence; each carries
// its own retry budget and criticality.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/electro-tech/pricewatch/internal/delivery"
	"github.com/electro-tech/pricewatch/internal/execution"
	"github.com/electro-tech/pricewatch/internal/model"
	"github.com/electro-tech/pricewatch/internal/parser"
	"github.com/electro-tech/pricewatch/internal/resilience"
	"github.com/electro-tech/pricewatch/internal/sink"
	"github.com/electro-tech/pricewatch/internal/source"
	"github.com/electro-tech/pricewatch/internal/store"
)

// StageRetries carries each stage's retry budget. Collect and deliver
// talk to flaky externals and get the longer schedule; extract and
// report run against the local store.
type StageRetries struct {
	Collect resilience.RetryConfig
	Extract resilience.RetryConfig
	Report  resilience.RetryConfig
	Deliver resilience.RetryConfig
}

// DefaultStageRetries mirrors the production schedule: 3 attempts from
// 5s for the external stages, 2 attempts from 3s for the local ones.
func DefaultStageRetries() StageRetries {
	external := resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
	local := resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 3 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
	return StageRetries{Collect: external, Extract: local, Report: local, Deliver: external}
}

// Orchestrator wires the run's collaborators together.
type Orchestrator struct {
	store      store.Store
	source     source.Source
	sinks      []sink.Sink
	dispatcher *delivery.Dispatcher
	parser     *parser.Parser
	audit      *execution.AuditLog
	recipient  string
	retries    StageRetries

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates an orchestrator with all dependencies.
func New(
	st store.Store,
	src source.Source,
	sinks []sink.Sink,
	dispatcher *delivery.Dispatcher,
	audit *execution.AuditLog,
	recipient string,
	retries StageRetries,
) *Orchestrator {
	return &Orchestrator{
		store:      st,
		source:     src,
		sinks:      sinks,
		dispatcher: dispatcher,
		parser:     parser.New(),
		audit:      audit,
		recipient:  recipient,
		retries:    retries,
		nowFunc:    time.Now,
	}
}

// Run executes one full pipeline pass and returns its finalized record.
// The record's status maps to the process exit code; Run itself never
// fails.
func (o *Orchestrator) Run(ctx context.Context) *execution.Record {
	rec := execution.NewRecord("")
	log := zap.L().With(zap.String("execution_id", rec.ExecutionID()))
	runDay := o.nowFunc()

	log.Info("pipeline: run started", zap.String("date", runDay.Format(time.DateOnly)))
	o.auditEvent(rec, "run", "", "started", "")

	interrupted := false
	criticalFailed := false
	deliveryFailed := false

	// Stage 1: collect. A source outage downgrades to a warning and the
	// run continues with zero messages.
	var messages []model.RawMessage
	if err := o.runStage(ctx, rec, "collect", o.retries.Collect, func(ctx context.Context) error {
		collected, err := o.source.Collect(ctx)
		if err != nil {
			return err
		}
		messages = collected
		return nil
	}); err != nil {
		if isInterrupt(ctx, err) {
			interrupted = true
			rec.AddWarning("collect", "run interrupted")
		} else {
			rec.AddWarning("collect", fmt.Sprintf("collection failed, continuing without new messages: %v", err))
			log.Warn("pipeline: collect failed, continuing", zap.Error(err))
		}
	}
	rec.SetMetric("messages_collected", len(messages))

	// Stage 2: extract (critical).
	if !interrupted {
		var recorded int
		err := o.runStage(ctx, rec, "extract", o.retries.Extract, func(ctx context.Context) error {
			n, err := o.extractBatch(ctx, rec, runDay, messages)
			recorded = n
			return err
		})
		switch {
		case err == nil:
			rec.SetMetric("prices_extracted", recorded)
			o.ackSource(ctx, rec, log)
		case isInterrupt(ctx, err):
			interrupted = true
			rec.AddWarning("extract", "run interrupted")
		default:
			rec.AddError("extract", err, true)
			criticalFailed = true
		}
	}

	// Stage 3: report (critical). Partial files from a failed attempt
	// are kept on disk for inspection.
	var summary, detailed string
	if !interrupted && !criticalFailed {
		err := o.runStage(ctx, rec, "report", o.retries.Report, func(ctx context.Context) error {
			s, d, quotes, err := o.buildReports(ctx, runDay)
			if err != nil {
				return err
			}
			summary, detailed = s, d
			rec.SetMetric("quotes_reported", len(quotes))
			return nil
		})
		switch {
		case err == nil:
			rec.SetMetric("report_bytes", len(summary)+len(detailed))
		case isInterrupt(ctx, err):
			interrupted = true
			rec.AddWarning("report", "run interrupted")
		default:
			rec.AddError("report", err, true)
			criticalFailed = true
		}
	}

	// Stage 4: deliver. An undelivered report is parked for the next
	// run and only downgrades the outcome to partial.
	if !interrupted && !criticalFailed {
		if delivered, failed, err := o.dispatcher.Replay(ctx); err != nil {
			log.Warn("pipeline: outbox replay failed", zap.Error(err))
		} else if delivered+failed > 0 {
			rec.SetMetric("redeliveries", delivered)
		}

		msg := delivery.Message{
			Recipient:      o.recipient,
			Body:           summary,
			AttachmentName: fmt.Sprintf("detailed_report_%s.txt", runDay.Format("20060102")),
			Attachment:     detailed,
		}
		err := o.runStage(ctx, rec, "deliver", o.retries.Deliver, func(ctx context.Context) error {
			return o.dispatcher.Send(ctx, msg)
		})
		switch {
		case err == nil:
			rec.SetMetric("delivered", true)
		case isInterrupt(ctx, err):
			interrupted = true
			rec.AddWarning("deliver", "run interrupted")
		default:
			rec.AddError("deliver", err, false)
			deliveryFailed = true
			rec.SetMetric("delivered", false)
			if parkErr := o.dispatcher.Park(ctx, msg, err); parkErr != nil {
				log.Error("pipeline: parking undelivered report failed", zap.Error(parkErr))
			}
		}
	}

	status := finalStatus(interrupted, criticalFailed, deliveryFailed)
	rec.Complete(status)
	o.auditEvent(rec, "run", "", string(status), "")
	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Duration("duration", rec.Duration()),
	)
	return rec
}

// runStage executes fn under the stage's retry budget, recording every
// attempt in the audit trail. The stage's final error is returned
// unclassified; the caller decides criticality. A context cancelled at
// the stage boundary surfaces before fn runs.
func (o *Orchestrator) runStage(ctx context.Context, rec *execution.Record, name string, retry resilience.RetryConfig, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.auditEvent(rec, name, "", "started", "")
	start := time.Now()

	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("pipeline: stage retrying",
			zap.String("stage", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		o.auditEvent(rec, name, "", "retrying", fmt.Sprintf("attempt %d: %v", attempt, err))
	}

	err := resilience.Do(ctx, retry, fn)
	duration := time.Since(start)

	if err != nil {
		o.auditEvent(rec, name, "", "failed", err.Error())
		zap.L().Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	o.auditEvent(rec, name, "", "completed", "")
	zap.L().Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Duration("duration", duration),
	)
	return nil
}

// extractBatch records every candidate from every message. Unknown
// vendors and invalid records are skipped with a warning; only
// infrastructure failures abort (and re-run) the batch.
func (o *Orchestrator) extractBatch(ctx context.Context, rec *execution.Record, day time.Time, messages []model.RawMessage) (int, error) {
	recorded := 0
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}

		vendor, err := o.store.GetVendorByHandle(ctx, msg.SenderHandle)
		if err != nil {
			if errors.Is(err, store.ErrVendorNotFound) {
				rec.AddWarning("extract", fmt.Sprintf("no vendor registered for %s, message skipped", msg.SenderHandle))
				continue
			}
			return recorded, err
		}

		for _, c := range o.parser.Extract(msg.Text) {
			_, err := o.store.RecordPrice(ctx, model.PriceRecord{
				Date:        day,
				VendorID:    vendor.VendorID,
				Category:    c.Category,
				Model:       c.Model,
				Price:       c.Price,
				Unit:        c.Unit,
				Source:      o.source.Name(),
				ExtractedAt: o.nowFunc(),
			})
			if err != nil {
				if store.IsValidation(err) {
					rec.AddWarning("extract", fmt.Sprintf("record rejected for %s: %v", vendor.VendorID, err))
					continue
				}
				return recorded, err
			}
			recorded++
		}
	}
	return recorded, nil
}

// ackSource marks the collected batch consumed. An ack failure means
// messages are re-read next run; duplicate observations do not move
// the per-group minimum, so this is a warning, not a failure.
func (o *Orchestrator) ackSource(ctx context.Context, rec *execution.Record, log *zap.Logger) {
	if err := o.source.Ack(ctx); err != nil {
		rec.AddWarning("extract", fmt.Sprintf("acknowledging messages failed: %v", err))
		log.Warn("pipeline: source ack failed", zap.Error(err))
	}
}

// buildReports renders both report texts and writes them through every
// configured sink.
func (o *Orchestrator) buildReports(ctx context.Context, day time.Time) (string, string, []model.AggregatedQuote, error) {
	quotes, err := o.store.MinimumQuotes(ctx, day)
	if err != nil {
		return "", "", nil, err
	}

	summary := RenderSummary(day, quotes)
	detailed := RenderDetailed(o.nowFunc(), quotes)

	for _, s := range o.sinks {
		if err := s.Write(ctx, day, summary, detailed, quotes); err != nil {
			return "", "", nil, err
		}
	}
	return summary, detailed, quotes, nil
}

func (o *Orchestrator) auditEvent(rec *execution.Record, action, resource, status, details string) {
	if o.audit == nil {
		return
	}
	o.audit.Event(rec.ExecutionID(), action, resource, status, details)
}

// isInterrupt distinguishes an external cancellation from an ordinary
// stage failure.
func isInterrupt(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// finalStatus derives the exit taxonomy. Collection failures stay
// SUCCESS: the run still produced and delivered a report.
func finalStatus(interrupted, criticalFailed, deliveryFailed bool) execution.Status {
	switch {
	case interrupted:
		return execution.StatusInterrupted
	case criticalFailed:
		return execution.StatusCritical
	case deliveryFailed:
		return execution.StatusPartial
	default:
		return execution.StatusSuccess
	}
}
