package invoice

import (
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	"github.com/smallbiznis/bizledger/internal/invoice/repository"
	"github.com/smallbiznis/bizledger/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	numbering.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
