package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/billingcycle"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/connection"
	"github.com/smallbiznis/ispbill/internal/gateway"
	"github.com/smallbiznis/ispbill/internal/invoice"
	"github.com/smallbiznis/ispbill/internal/ledger"
	"github.com/smallbiznis/ispbill/internal/lock"
	"github.com/smallbiznis/ispbill/internal/migration"
	"github.com/smallbiznis/ispbill/internal/observability"
	"github.com/smallbiznis/ispbill/internal/partner"
	"github.com/smallbiznis/ispbill/internal/payment"
	"github.com/smallbiznis/ispbill/internal/reconciliation"
	"github.com/smallbiznis/ispbill/internal/scheduler"
	"github.com/smallbiznis/ispbill/internal/server"
	"github.com/smallbiznis/ispbill/internal/servicepackage"
	"github.com/smallbiznis/ispbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		migration.Module,
		lock.Module,

		// Catalog
		partner.Module,
		billingcycle.Module,
		servicepackage.Module,
		gateway.Module,

		// Accounting
		ledger.Module,
		invoice.Module,
		reconciliation.Module,
		payment.Module,

		// Subscribers
		connection.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
