// Package scheduler runs background ledger jobs. The only job today scans
// for overdue invoices and announces each one once per day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/bizledger/internal/audit/domain"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	obsmetrics "github.com/smallbiznis/bizledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobOverdueScan = "overdue_scan"

	overdueScanLockKey = "bizledger:scheduler:overdue_scan"
	overdueMarkPrefix  = "bizledger:overdue:"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Events     events.Publisher             `optional:"true"`
	AuditSvc   auditdomain.Service          `optional:"true"`
	Locker     numbering.ScopeLocker        `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	events     events.Publisher
	auditSvc   auditdomain.Service
	locker     numbering.ScopeLocker
	metrics    *obsmetrics.SchedulerMetrics

	mu sync.Mutex
	// notified maps invoice id to the UTC day it was last announced.
	notified map[snowflake.ID]string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		events:     p.Events,
		auditSvc:   p.AuditSvc,
		locker:     p.Locker,
		metrics:    p.Metrics,
		notified:   make(map[snowflake.ID]string),
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{jobOverdueScan, s.OverdueScanJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		s.metrics.ObserveRunLoopLag(time.Since(nextRun))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// OverdueScanJob publishes invoice.overdue for every open invoice past its
// due date, at most once per invoice per UTC day. When a locker is
// configured only one instance scans at a time.
func (s *Scheduler) OverdueScanJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobOverdueScan)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, overdueScanLockKey, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			s.logger(ctx).Debug("overdue scan held by another instance")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), overdueScanLockKey, token); err != nil {
				s.logger(ctx).Warn("release overdue scan lock", zap.Error(err))
			}
		}()
	}

	invoices, err := s.invoiceSvc.ListOverdueInvoices(ctx)
	if err != nil {
		return err
	}
	s.metrics.SetOverdue(len(invoices))
	run.AddProcessed(len(invoices))

	now := s.clock.Now().UTC()
	today := now.Format(time.DateOnly)
	s.pruneNotified(invoices)

	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return err
		}
		first, err := s.markNotified(ctx, inv.ID, today)
		if err != nil {
			s.logJobError(ctx, run, "mark overdue invoice", err, zap.String("invoice_id", inv.ID.String()))
			continue
		}
		if !first {
			continue
		}
		s.announceOverdue(ctx, run, inv, now)
	}
	return nil
}

func (s *Scheduler) announceOverdue(ctx context.Context, run *jobRun, inv invoicedomain.Invoice, now time.Time) {
	days := daysOverdue(inv, now)
	invoiceID := inv.ID.String()
	payload := map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"invoice_type":   string(inv.InvoiceType),
		"customer_id":    inv.CustomerID.String(),
		"total_amount":   inv.TotalAmount.StringFixed(4),
		"currency":       inv.Currency,
		"payment_status": string(inv.PaymentStatus),
		"days_overdue":   days,
	}
	if inv.DueDate != nil {
		payload["due_date"] = inv.DueDate.UTC().Format(time.DateOnly)
	}

	events.Emit(ctx, s.events, s.log, events.New(ctx, events.InvoiceOverdue, invoiceID, now, payload))
	if s.auditSvc != nil {
		if err := s.auditSvc.AuditLog(ctx, nil, events.InvoiceOverdue, "invoice", &invoiceID, payload); err != nil {
			s.logJobError(ctx, run, "audit overdue invoice", err, zap.String("invoice_id", invoiceID))
		}
	}
	s.metrics.IncOverdueNotified()
	s.logInvoiceOverdue(ctx, invoiceID, inv.InvoiceNumber, days)
}

// markNotified reports whether this is the first announcement of id today.
// The Redis marker keeps instances from announcing twice; the local map
// covers single node deployments.
func (s *Scheduler) markNotified(ctx context.Context, id snowflake.ID, day string) (bool, error) {
	s.mu.Lock()
	seen := s.notified[id] == day
	s.mu.Unlock()
	if seen {
		return false, nil
	}

	if s.locker != nil {
		_, ok, err := s.locker.TryLock(ctx, overdueMarkPrefix+id.String()+":"+day, 24*time.Hour)
		if err != nil {
			return false, err
		}
		if !ok {
			s.remember(id, day)
			return false, nil
		}
	}
	s.remember(id, day)
	return true, nil
}

func (s *Scheduler) remember(id snowflake.ID, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified[id] = day
}

// pruneNotified forgets invoices that are no longer overdue.
func (s *Scheduler) pruneNotified(current []invoicedomain.Invoice) {
	keep := make(map[snowflake.ID]struct{}, len(current))
	for _, inv := range current {
		keep[inv.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.notified {
		if _, ok := keep[id]; !ok {
			delete(s.notified, id)
		}
	}
}

func daysOverdue(inv invoicedomain.Invoice, now time.Time) int {
	if inv.DueDate == nil {
		return 0
	}
	due := inv.DueDate.UTC()
	dueDay := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(today.Sub(dueDay).Hours() / 24)
}
