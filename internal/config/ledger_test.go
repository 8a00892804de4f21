package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLedgerConfigHolder_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	holder, err := NewLedgerConfigHolder(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}

func TestNewLedgerConfigHolder_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yml")
	content := []byte(`numbering:
  salesPrefix: SI
  purchasePrefix: PI
  paymentPrefix: RC
  maxAttempts: 5
  lockTTL: 2s
payment:
  defaultTermsDays: 14
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewLedgerConfigHolder(Config{LedgerConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "SI", cfg.Numbering.SalesPrefix)
	assert.Equal(t, "PI", cfg.Numbering.PurchasePrefix)
	assert.Equal(t, "RC", cfg.Numbering.PaymentPrefix)
	assert.Equal(t, 5, cfg.Numbering.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Numbering.LockTTL)
	assert.Equal(t, 14, cfg.Payment.DefaultTermsDays)
}

func TestValidateLedgerConfig(t *testing.T) {
	cfg := DefaultLedgerConfig()
	require.NoError(t, validateLedgerConfig(cfg))

	same := cfg
	same.Numbering.PurchasePrefix = same.Numbering.SalesPrefix
	assert.Error(t, validateLedgerConfig(same))

	noAttempts := cfg
	noAttempts.Numbering.MaxAttempts = 0
	assert.Error(t, validateLedgerConfig(noAttempts))

	negativeTerms := cfg
	negativeTerms.Payment.DefaultTermsDays = -1
	assert.Error(t, validateLedgerConfig(negativeTerms))
}
