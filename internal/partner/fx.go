package partner

import (
	"github.com/smallbiznis/ispbill/internal/partner/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("partner.repository",
	fx.Provide(repository.Provide),
)
