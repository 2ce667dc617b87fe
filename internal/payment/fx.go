package payment

import (
	"github.com/smallbiznis/ispbill/internal/payment/repository"
	"github.com/smallbiznis/ispbill/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
