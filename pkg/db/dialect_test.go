package db

import (
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSNRoundTrip(t *testing.T) {
	dsn := MySQLDSN("radius", "p@ss:word/1", "10.0.0.5", "", "radius")

	cfg, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "radius", cfg.User)
	assert.Equal(t, "p@ss:word/1", cfg.Passwd)
	assert.Equal(t, "10.0.0.5:3306", cfg.Addr)
	assert.Equal(t, "radius", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.MultiStatements)
}

func TestPostgresDSNQuotesValues(t *testing.T) {
	dsn := PostgresDSN(config.Config{
		DBHost:     "db.internal",
		DBPort:     "",
		DBUser:     "billing",
		DBPassword: `it's secret`,
		DBName:     "ispbill",
	})

	assert.Equal(t, `host=db.internal port=5432 user=billing password='it\'s secret' dbname=ispbill sslmode=disable TimeZone=UTC`, dsn)
}

func TestSQLiteDSNPragmas(t *testing.T) {
	assert.Equal(t, "billing.db?_pragma=foreign_keys%281%29&_pragma=busy_timeout%285000%29", SQLiteDSN("billing.db"))
	assert.Equal(t, "file:x?mode=memory&_pragma=foreign_keys%281%29&_pragma=busy_timeout%285000%29", SQLiteDSN("file:x?mode=memory"))
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)", SQLiteDSN("a.db?_pragma=journal_mode(WAL)"))
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	require.Error(t, err)

	d, err := Dialect(config.Config{DBType: "SQLite", DBName: "t.db"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}
