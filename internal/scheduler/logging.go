package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/bizledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bizledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun accumulates counters for one job execution. It travels in the
// context so nested calls report into the same run.
type jobRun struct {
	job        string
	runID      string
	startedAt  time.Time
	processed  int
	errorCount int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed += count
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errorCount++
	}
}

func (r *jobRun) fields() []zap.Field {
	return []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.runID),
	}
}

// ensureJobRun reuses the run already in ctx. owner is true when this call
// created it and is responsible for the start and finish lines.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (_ context.Context, run *jobRun, owner bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, run, false
	}
	run = &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: time.Now(),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start", run.fields()...)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := append(run.fields(),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.errorCount),
	)
	if run.errorCount > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

// logJobError records a per invoice failure without aborting the run.
func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	run.IncError()
	fields = append(append(run.fields(),
		zap.String("outcome", obsmetrics.ClassifyOutcome(err)),
		zap.Error(err),
	), fields...)
	s.logger(ctx).Error(msg, fields...)
}

func (s *Scheduler) logInvoiceOverdue(ctx context.Context, invoiceID, number string, daysOverdue int) {
	s.logger(ctx).Info("invoice.overdue",
		zap.String("invoice_id", invoiceID),
		zap.String("invoice_number", number),
		zap.Int("days_overdue", daysOverdue),
	)
}
