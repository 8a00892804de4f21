package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/bizledger/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubInvoiceSvc struct {
	invoicedomain.Service

	mu      sync.Mutex
	overdue []invoicedomain.Invoice
	err     error
}

func (s *stubInvoiceSvc) ListOverdueInvoices(context.Context) ([]invoicedomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overdue, s.err
}

func (s *stubInvoiceSvc) set(invoices ...invoicedomain.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overdue = invoices
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: map[string]string{}}
}

func (l *memoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token-" + key
	return l.held[key], true, nil
}

func (l *memoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type harness struct {
	sched  *Scheduler
	svc    *stubInvoiceSvc
	pub    *events.MemoryPublisher
	clock  *clock.FakeClock
	locker *memoryLocker
}

func newHarness(t *testing.T, withLocker bool) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	h := &harness{
		svc:   &stubInvoiceSvc{},
		pub:   &events.MemoryPublisher{},
		clock: clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)),
	}
	p := Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      h.clock,
		InvoiceSvc: h.svc,
		Events:     h.pub,
		Metrics:    obsmetrics.NewSchedulerMetrics(prometheus.NewRegistry()),
	}
	if withLocker {
		h.locker = newMemoryLocker()
		p.Locker = h.locker
	}
	h.sched, err = New(p)
	require.NoError(t, err)
	return h
}

func overdueInvoice(id int64, due time.Time) invoicedomain.Invoice {
	return invoicedomain.Invoice{
		ID:            snowflake.ID(id),
		InvoiceNumber: "INV2026000001",
		InvoiceType:   invoicedomain.InvoiceTypeSales,
		CustomerID:    snowflake.ID(42),
		DueDate:       &due,
		TotalAmount:   decimal.RequireFromString("276"),
		Currency:      "USD",
		Status:        invoicedomain.InvoiceStatusApproved,
		PaymentStatus: invoicedomain.PaymentStatusPartial,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
}

func TestOverdueScan_AnnouncesOncePerDay(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.svc.set(overdueInvoice(1, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, h.sched.RunOnce(ctx))
	require.NoError(t, h.sched.RunOnce(ctx))

	evts := h.pub.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.InvoiceOverdue, evts[0].Type)
	assert.Equal(t, "1", evts[0].AggregateID)
	assert.Equal(t, 12, evts[0].Payload["days_overdue"])
	assert.Equal(t, "276.0000", evts[0].Payload["total_amount"])
	assert.Equal(t, "2026-05-20", evts[0].Payload["due_date"])

	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.sched.RunOnce(ctx))
	evts = h.pub.Events()
	require.Len(t, evts, 2)
	assert.Equal(t, 13, evts[1].Payload["days_overdue"])
}

func TestOverdueScan_ForgetsSettledInvoices(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	due := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)

	h.svc.set(overdueInvoice(1, due), overdueInvoice(2, due))
	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Len(t, h.pub.Events(), 2)

	h.svc.set(overdueInvoice(2, due))
	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Len(t, h.pub.Events(), 2)

	h.sched.mu.Lock()
	_, stillTracked := h.sched.notified[snowflake.ID(1)]
	h.sched.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestOverdueScan_SkipsWhenLockHeld(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.svc.set(overdueInvoice(1, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)))

	_, ok, err := h.locker.TryLock(ctx, overdueScanLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Empty(t, h.pub.Events())
}

func TestOverdueScan_SharedMarkerPreventsDuplicates(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.svc.set(overdueInvoice(1, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, h.sched.RunOnce(ctx))
	require.Len(t, h.pub.Events(), 1)

	// A restarted instance has an empty local map but sees the marker.
	h.sched.notified = map[snowflake.ID]string{}
	require.NoError(t, h.sched.RunOnce(ctx))
	assert.Len(t, h.pub.Events(), 1)

	h.locker.mu.Lock()
	_, scanLockHeld := h.locker.held[overdueScanLockKey]
	h.locker.mu.Unlock()
	assert.False(t, scanLockHeld)
}

func TestRunOnce_WrapsJobErrors(t *testing.T) {
	h := newHarness(t, false)
	h.svc.err = errors.New("db down")

	err := h.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overdue_scan")
}

func TestRunOnce_RespectsEnabledJobs(t *testing.T) {
	h := newHarness(t, false)
	h.sched.cfg.EnabledJobs = []string{"something_else"}
	h.svc.set(overdueInvoice(1, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.pub.Events())
}

func TestProvideConfig(t *testing.T) {
	cfg := ProvideConfig(config.Config{SchedulerEnabled: false, SchedulerIntervalSeconds: 60})
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Minute, cfg.RunInterval)
}
