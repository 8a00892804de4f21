package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/bizledger/internal/testutil"
	"github.com/smallbiznis/bizledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrate_SQLiteUsesModels(t *testing.T) {
	conn := testutil.NewDB(t)
	require.NoError(t, Migrate(conn, db.Config{Type: "sqlite"}, zap.NewNop()))

	for _, table := range []string{"customers", "products", "invoices", "invoice_items", "payments", "number_sequences", "audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	// Running twice is a no-op.
	require.NoError(t, Migrate(conn, db.Config{Type: "sqlite"}, zap.NewNop()))
}

func TestRollback_RejectsNonPositiveSteps(t *testing.T) {
	assert.Error(t, Rollback(nil, 0))
}
