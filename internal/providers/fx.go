package providers

import (
	"context"

	"github.com/smallbiznis/bizledger/internal/config"
	"github.com/smallbiznis/bizledger/internal/providers/pdf"
	"github.com/smallbiznis/bizledger/internal/providers/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers",
	fx.Provide(newRenderer),
	fx.Provide(newArchiver),
	fx.Provide(newRedisClient),
)

func newRenderer(cfg config.Config) pdf.Renderer {
	return pdf.New(cfg.DocumentIssuer)
}

func newArchiver(cfg config.Config, log *zap.Logger) (storage.Archiver, error) {
	log = log.Named("providers.storage")
	if !cfg.Minio.Enabled() {
		log.Info("document archive disabled")
		return storage.NoOpArchiver{}, nil
	}
	return storage.NewMinioArchiver(context.Background(), cfg.Minio, log)
}
