package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, policy *config.PolicyHolder) error {
		dialect := NormalizeDialect(cfg.DBType)
		if dialect == "sqlite" {
			if err := conn.AutoMigrate(Models()...); err != nil {
				return err
			}
		} else {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB, dialect); err != nil {
				return err
			}
		}

		return seed.EnsureLedgerAccounts(context.Background(), conn, node, policy.Get())
	}),
)
