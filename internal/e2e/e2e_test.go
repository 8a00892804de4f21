//go:build e2e

// Package e2e runs the ledger services against a real Postgres database.
//
//	DATABASE_HOST=localhost DATABASE_USER=postgres go test -tags e2e ./internal/e2e/...
package e2e

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	customerrepo "github.com/smallbiznis/bizledger/internal/customer/repository"
	customerservice "github.com/smallbiznis/bizledger/internal/customer/service"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	invoicerepo "github.com/smallbiznis/bizledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/bizledger/internal/invoice/service"
	"github.com/smallbiznis/bizledger/internal/migration"
	paymentrepo "github.com/smallbiznis/bizledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/bizledger/internal/payment/service"
	productrepo "github.com/smallbiznis/bizledger/internal/product/repository"
	"github.com/smallbiznis/bizledger/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	numbers   *numbering.Allocator
	customers customerdomain.Service
	invoices  invoicedomain.Service
	payments  *paymentservice.Service
}

var env *testEnv

func TestMain(m *testing.M) {
	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func startEnv() (*testEnv, error) {
	cfg := db.Config{
		Type:        "postgres",
		Host:        getenv("DATABASE_HOST", "localhost"),
		Port:        getenv("DATABASE_PORT", "5432"),
		Name:        getenv("DATABASE_NAME", "bizledger_test"),
		User:        getenv("DATABASE_USER", "postgres"),
		Password:    getenv("DATABASE_PASSWORD", "postgres"),
		SSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		MaxOpenConn: 16,
	}
	log := zap.NewNop()

	conn, err := db.Open(db.OpenParams{Config: cfg, Log: log})
	if err != nil {
		return nil, err
	}
	if err := migration.Migrate(conn, cfg, log); err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(7)
	if err != nil {
		return nil, err
	}
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	ledger := config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig())
	numbers := numbering.NewAllocator(numbering.Params{DB: conn, Log: log, Clock: clk, Ledger: ledger})
	pub := &events.MemoryPublisher{}

	payments := paymentservice.New(paymentservice.Params{
		DB:          conn,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Ledger:      ledger,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		Numbers:     numbers,
		Events:      pub,
	})

	return &testEnv{
		db:        conn,
		clock:     clk,
		numbers:   numbers,
		customers: customerservice.New(customerservice.Params{DB: conn, Log: log, GenID: node, Clock: clk, Repo: customerrepo.Provide()}),
		invoices: invoiceservice.NewService(invoiceservice.ServiceParam{
			DB:           conn,
			Log:          log,
			GenID:        node,
			Clock:        clk,
			Ledger:       ledger,
			Repo:         invoicerepo.Provide(),
			CustomerRepo: customerrepo.Provide(),
			ProductRepo:  productrepo.Provide(),
			Numbers:      numbers,
			Reconciler:   payments,
			Events:       pub,
		}),
		payments: payments,
	}, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// resetDatabase empties every ledger table so sequences restart at 1.
func resetDatabase(t *testing.T) {
	t.Helper()
	tables := []string{"payments", "invoice_items", "invoices", "products", "customers", "number_sequences", "audit_logs"}
	stmt := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	if err := env.db.Exec(stmt).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
