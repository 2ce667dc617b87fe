package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ProvisionRequest carries everything needed to push one subscriber.
type ProvisionRequest struct {
	ConnectionID snowflake.ID
	Username     string
	Password     string
	Speed        string
	SpeedType    string
	Gateway      Gateway
}

// VerifyOutcome reports the post-provision RADIUS probe.
type VerifyOutcome string

const (
	VerifySkipped VerifyOutcome = "skipped"
	VerifyAccept  VerifyOutcome = "accept"
	VerifyReject  VerifyOutcome = "reject"
	VerifyError   VerifyOutcome = "error"
)

// Result describes what a provisioning run did.
type Result struct {
	Transport Transport
	Executed  []Stage
	Profile   string
	Verified  VerifyOutcome
	Duration  time.Duration
}

// ProvisionError is returned when a provisioning stage fails. Statement holds
// the parameterized query, never bound values.
type ProvisionError struct {
	GatewayID snowflake.ID
	Stage     Stage
	Statement string
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.GatewayID, e.Stage, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// GatewayStage exposes the failing stage for metric classification.
func (e *ProvisionError) GatewayStage() string { return string(e.Stage) }

// Executor runs a statement plan against one gateway.
type Executor interface {
	Execute(ctx context.Context, gw Gateway, plan []Statement) ([]Stage, error)
}

// Verifier probes a gateway's RADIUS server with fresh credentials.
type Verifier interface {
	Verify(ctx context.Context, gw Gateway, username, password string) (VerifyOutcome, error)
}

// Provisioner pushes subscriber credentials and profile to a gateway.
type Provisioner interface {
	Provision(ctx context.Context, req ProvisionRequest) (Result, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, gw *Gateway) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Gateway, error)
}

// Resolver maps a package to the gateway that serves it.
type Resolver interface {
	ResolveForPackage(ctx context.Context, db *gorm.DB, gatewayID *snowflake.ID) (*Gateway, error)
}

var (
	ErrGatewayNotFound      = errors.New("gateway_not_found")
	ErrNoGateway            = errors.New("package_has_no_gateway")
	ErrUnsupportedTransport = errors.New("unsupported_gateway_transport")
	ErrInvalidUsername      = errors.New("invalid_radius_username")
	ErrRelayStatus          = errors.New("relay_status_not_ok")
)
