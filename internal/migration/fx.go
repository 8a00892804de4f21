package migration

import (
	"github.com/smallbiznis/bizledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate brings the schema up to date for the configured dialect.
func Migrate(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if !cfg.IsPostgres() {
		log.Info("applying schema from models", zap.String("dialect", cfg.Type))
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}

	version, dirty, err := Version(sqlDB)
	if err != nil {
		return err
	}
	log.Info("schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
