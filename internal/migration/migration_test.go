package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsPaired(t *testing.T) {
	for _, dialect := range []string{"mysql", "postgres"} {
		entries, err := fs.ReadDir(embeddedMigrations, "migrations/"+dialect)
		require.NoError(t, err)

		ups, downs := 0, 0
		for _, e := range entries {
			switch {
			case strings.HasSuffix(e.Name(), ".up.sql"):
				ups++
			case strings.HasSuffix(e.Name(), ".down.sql"):
				downs++
			}
		}
		assert.NotZero(t, ups, dialect)
		assert.Equal(t, ups, downs, dialect)
	}
}

func TestEmbeddedMigrationsCoverModels(t *testing.T) {
	tables := []string{
		"partners", "gateways", "billing_cycles", "packages", "package_setup_items",
		"ledger_accounts", "ledger_entries", "ledger_entry_lines", "ledger_reconcile_matches",
		"invoices", "invoice_lines", "payments", "connections", "connection_setup_items",
		"connection_invoices", "billings", "billing_items", "provisioning_tasks",
	}
	require.Len(t, Models(), len(tables))

	for _, dialect := range []string{"mysql", "postgres"} {
		raw, err := fs.ReadFile(embeddedMigrations, "migrations/"+dialect+"/000001_init.up.sql")
		require.NoError(t, err)
		for _, table := range tables {
			assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS "+table+" (", dialect)
		}
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	require.Error(t, RunMigrations(nil, "mysql"))
}

func TestNormalizeDialect(t *testing.T) {
	assert.Equal(t, "mysql", NormalizeDialect("MariaDB"))
	assert.Equal(t, "postgres", NormalizeDialect(" postgresql "))
	assert.Equal(t, "mysql", NormalizeDialect("mysql"))
	assert.Equal(t, "sqlite", NormalizeDialect("sqlite"))
}
