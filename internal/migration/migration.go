package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	billingcycledomain "github.com/smallbiznis/ispbill/internal/billingcycle/domain"
	connectiondomain "github.com/smallbiznis/ispbill/internal/connection/domain"
	gatewaydomain "github.com/smallbiznis/ispbill/internal/gateway/domain"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/ispbill/internal/ledger/domain"
	partnerdomain "github.com/smallbiznis/ispbill/internal/partner/domain"
	paymentdomain "github.com/smallbiznis/ispbill/internal/payment/domain"
	servicepackagedomain "github.com/smallbiznis/ispbill/internal/servicepackage/domain"
)

//go:embed migrations/mysql/*.sql migrations/postgres/*.sql
var embeddedMigrations embed.FS

// NormalizeDialect maps DATABASE_TYPE aliases onto the migration directory
// names. sqlite is returned unchanged.
func NormalizeDialect(dbType string) string {
	switch d := strings.ToLower(strings.TrimSpace(dbType)); d {
	case "mariadb":
		return "mysql"
	case "postgresql":
		return "postgres"
	default:
		return d
	}
}

// RunMigrations applies the embedded schema for the given dialect.
// sqlite is not handled here; callers migrate it with Models. The mysql
// handle must be opened with multiStatements, since each file is sent in one
// Exec.
func RunMigrations(db *sql.DB, dialect string) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	dialect = NormalizeDialect(dialect)

	sub, err := fs.Sub(embeddedMigrations, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case "mysql":
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case "postgres":
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Models lists every table owned by the billing database.
func Models() []any {
	return []any{
		&partnerdomain.Partner{},
		&gatewaydomain.Gateway{},
		&billingcycledomain.BillingCycle{},
		&servicepackagedomain.Package{},
		&servicepackagedomain.SetupItem{},
		&ledgerdomain.Account{},
		&ledgerdomain.Entry{},
		&ledgerdomain.EntryLine{},
		&ledgerdomain.Match{},
		&invoicedomain.Invoice{},
		&invoicedomain.Line{},
		&paymentdomain.Payment{},
		&connectiondomain.Connection{},
		&connectiondomain.SetupItem{},
		&connectiondomain.Invoice{},
		&connectiondomain.Billing{},
		&connectiondomain.BillingItem{},
		&connectiondomain.ProvisioningTask{},
	}
}
