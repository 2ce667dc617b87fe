package servicepackage

import (
	"github.com/smallbiznis/ispbill/internal/servicepackage/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("servicepackage.repository",
	fx.Provide(repository.Provide),
)
