package gateway

import (
	"github.com/smallbiznis/ispbill/internal/gateway/repository"
	"github.com/smallbiznis/ispbill/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideResolver),
	fx.Provide(service.NewService),
)
