package billingcycle

import (
	"github.com/smallbiznis/ispbill/internal/billingcycle/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("billingcycle.repository",
	fx.Provide(repository.Provide),
)
