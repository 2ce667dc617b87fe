package invoice

import (
	"github.com/smallbiznis/ispbill/internal/invoice/render"
	"github.com/smallbiznis/ispbill/internal/invoice/repository"
	"github.com/smallbiznis/ispbill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.Provide),
	fx.Provide(render.NewRenderer),
	fx.Provide(service.NewService),
)
