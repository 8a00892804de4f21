package document

import (
	"github.com/smallbiznis/bizledger/internal/document/service"
	"go.uber.org/fx"
)

var Module = fx.Module("document.service",
	fx.Provide(service.New),
)
