package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"github.com/smallbiznis/ispbill/pkg/db"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Opener builds the dialector for a gateway's RADIUS database.
type Opener func(gw domain.Gateway) (gorm.Dialector, error)

// MySQLOpener connects to the gateway's MySQL RADIUS schema.
func MySQLOpener(gw domain.Gateway) (gorm.Dialector, error) {
	if gw.IPAddress == "" || gw.DatabaseName == "" {
		return nil, fmt.Errorf("gateway %s: missing host or database", gw.ID)
	}
	host, port := splitHostPort(gw.IPAddress)
	return mysql.Open(db.MySQLDSN(gw.Username, gw.Password, host, port, gw.DatabaseName)), nil
}

// SQLExecutor runs the plan as parameterized statements in one transaction
// on a short-lived connection.
type SQLExecutor struct {
	open Opener
}

func NewSQLExecutor(open Opener) *SQLExecutor {
	if open == nil {
		open = MySQLOpener
	}
	return &SQLExecutor{open: open}
}

func (e *SQLExecutor) Execute(ctx context.Context, gw domain.Gateway, plan []domain.Statement) ([]domain.Stage, error) {
	dialector, err := e.open(gw)
	if err != nil {
		return nil, &domain.ProvisionError{GatewayID: gw.ID, Stage: domain.StageConnect, Err: err}
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, &domain.ProvisionError{GatewayID: gw.ID, Stage: domain.StageConnect, Err: err}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, &domain.ProvisionError{GatewayID: gw.ID, Stage: domain.StageConnect, Err: err}
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)

	executed := make([]domain.Stage, 0, len(plan))
	txErr := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range plan {
			if err := tx.Exec(stmt.Query, stmt.Args...).Error; err != nil {
				return &domain.ProvisionError{GatewayID: gw.ID, Stage: stmt.Stage, Statement: stmt.Query, Err: err}
			}
			executed = append(executed, stmt.Stage)
		}
		return nil
	})
	if txErr != nil {
		var provErr *domain.ProvisionError
		if errors.As(txErr, &provErr) {
			return nil, txErr
		}
		return nil, &domain.ProvisionError{GatewayID: gw.ID, Stage: domain.StageCommit, Err: txErr}
	}
	return executed, nil
}

func splitHostPort(address string) (string, string) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address, ""
	}
	return host, port
}
