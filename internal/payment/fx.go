package payment

import (
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	"github.com/smallbiznis/bizledger/internal/payment/repository"
	"github.com/smallbiznis/bizledger/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) paymentdomain.Service { return s },
		func(s *service.Service) invoicedomain.PaymentReconciler { return s },
	),
)
