package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerConfig is the runtime policy of the invoice ledger.
type LedgerConfig struct {
	Numbering NumberingConfig `mapstructure:"numbering"`
	Payment   PaymentConfig   `mapstructure:"payment"`
}

type NumberingConfig struct {
	SalesPrefix    string        `mapstructure:"salesPrefix"`
	PurchasePrefix string        `mapstructure:"purchasePrefix"`
	PaymentPrefix  string        `mapstructure:"paymentPrefix"`
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	LockTTL        time.Duration `mapstructure:"lockTTL"`
}

type PaymentConfig struct {
	DefaultTermsDays int `mapstructure:"defaultTermsDays"`
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Numbering: NumberingConfig{
			SalesPrefix:    "INV",
			PurchasePrefix: "PUR",
			PaymentPrefix:  "PAY",
			MaxAttempts:    3,
			LockTTL:        5 * time.Second,
		},
		Payment: PaymentConfig{
			DefaultTermsDays: 30,
		},
	}
}

// LedgerConfigHolder serves the latest valid ledger policy. Reloads that fail
// validation keep the previous value.
type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

// NewStaticLedgerConfigHolder wraps a fixed policy. Used by tests and when no
// policy file is configured.
func NewStaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLedgerConfigHolder(appCfg Config, log *zap.Logger) (*LedgerConfigHolder, error) {
	log = log.Named("ledger.config")
	v := viper.New()

	if appCfg.LedgerConfigPath != "" {
		v.SetConfigFile(appCfg.LedgerConfigPath)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/bizledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BIZLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setLedgerDefaults(v, DefaultLedgerConfig())

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeLedgerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticLedgerConfigHolder(cfg)
	if !fileLoaded {
		log.Info("ledger config file not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeLedgerConfig(v)
		if err != nil {
			log.Warn("ledger config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("ledger config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

func setLedgerDefaults(v *viper.Viper, d LedgerConfig) {
	v.SetDefault("numbering.salesPrefix", d.Numbering.SalesPrefix)
	v.SetDefault("numbering.purchasePrefix", d.Numbering.PurchasePrefix)
	v.SetDefault("numbering.paymentPrefix", d.Numbering.PaymentPrefix)
	v.SetDefault("numbering.maxAttempts", d.Numbering.MaxAttempts)
	v.SetDefault("numbering.lockTTL", d.Numbering.LockTTL)
	v.SetDefault("payment.defaultTermsDays", d.Payment.DefaultTermsDays)
}

func decodeLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	var cfg LedgerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return LedgerConfig{}, err
	}
	if err := validateLedgerConfig(cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

func validateLedgerConfig(cfg LedgerConfig) error {
	n := cfg.Numbering
	if strings.TrimSpace(n.SalesPrefix) == "" || strings.TrimSpace(n.PurchasePrefix) == "" || strings.TrimSpace(n.PaymentPrefix) == "" {
		return errors.New("numbering prefixes cannot be empty")
	}
	if n.SalesPrefix == n.PurchasePrefix {
		return errors.New("numbering.salesPrefix and numbering.purchasePrefix must differ")
	}
	if n.MaxAttempts < 1 {
		return errors.New("numbering.maxAttempts must be at least 1")
	}
	if cfg.Payment.DefaultTermsDays < 0 {
		return errors.New("payment.defaultTermsDays cannot be negative")
	}
	return nil
}
