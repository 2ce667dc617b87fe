package transport

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func radiusDB(t *testing.T, migrate bool) (string, *gorm.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radius.db")
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	if migrate {
		require.NoError(t, conn.AutoMigrate(&domain.RadCheck{}))
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return path, conn
}

func sqliteOpener(path string) Opener {
	return func(domain.Gateway) (gorm.Dialector, error) {
		return sqlite.Open(path), nil
	}
}

func TestSQLExecutorIsIdempotent(t *testing.T) {
	path, conn := radiusDB(t, true)
	exec := NewSQLExecutor(sqliteOpener(path))
	plan := domain.BuildPlan(domain.ProvisionRequest{
		Username:  "alice",
		Password:  "s3cret",
		Speed:     "10",
		SpeedType: "M",
	})

	for i := 0; i < 2; i++ {
		executed, err := exec.Execute(context.Background(), domain.Gateway{ID: 1}, plan)
		require.NoError(t, err)
		assert.Equal(t, []domain.Stage{
			domain.StageDeletePassword,
			domain.StageInsertPassword,
			domain.StageDeleteProfile,
			domain.StageInsertProfile,
		}, executed)
	}

	var rows []domain.RadCheck
	require.NoError(t, conn.Where("username = ?", "alice").Order("attribute").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.AttributeCleartextPassword, rows[0].Attribute)
	assert.Equal(t, "s3cret", rows[0].Value)
	assert.Equal(t, ":=", rows[0].Op)
	assert.Equal(t, domain.AttributeUserProfile, rows[1].Attribute)
	assert.Equal(t, "10M_Profile", rows[1].Value)
}

func TestSQLExecutorReplacesChangedProfile(t *testing.T) {
	path, conn := radiusDB(t, true)
	exec := NewSQLExecutor(sqliteOpener(path))
	ctx := context.Background()

	_, err := exec.Execute(ctx, domain.Gateway{ID: 1}, domain.BuildPlan(domain.ProvisionRequest{
		Username: "bob", Password: "pw", Speed: "20", SpeedType: "M",
	}))
	require.NoError(t, err)
	_, err = exec.Execute(ctx, domain.Gateway{ID: 1}, domain.BuildPlan(domain.ProvisionRequest{
		Username: "bob", Password: "pw2", Speed: "1", SpeedType: "M",
	}))
	require.NoError(t, err)

	var profiles []domain.RadCheck
	require.NoError(t, conn.Where("username = ? AND attribute = ?", "bob", domain.AttributeUserProfile).Find(&profiles).Error)
	require.Len(t, profiles, 1)
	assert.Equal(t, "1M_Profile", profiles[0].Value)
}

func TestSQLExecutorKeepsQuotesAsData(t *testing.T) {
	path, conn := radiusDB(t, true)
	exec := NewSQLExecutor(sqliteOpener(path))

	_, err := exec.Execute(context.Background(), domain.Gateway{ID: 1}, domain.BuildPlan(domain.ProvisionRequest{
		Username: "o'brien", Password: `x"); DROP TABLE radcheck; --`, Speed: "5", SpeedType: "M",
	}))
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&domain.RadCheck{}).Where("username = ?", "o'brien").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSQLExecutorReportsFailingStage(t *testing.T) {
	path, _ := radiusDB(t, false)
	exec := NewSQLExecutor(sqliteOpener(path))

	executed, err := exec.Execute(context.Background(), domain.Gateway{ID: 7}, domain.BuildPlan(domain.ProvisionRequest{
		Username: "alice", Password: "pw", Speed: "10", SpeedType: "M",
	}))
	require.Error(t, err)
	assert.Empty(t, executed)

	var provErr *domain.ProvisionError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, domain.StageDeletePassword, provErr.Stage)
	assert.NotContains(t, provErr.Error(), "pw")
}

func TestSQLExecutorReportsConnectFailure(t *testing.T) {
	exec := NewSQLExecutor(func(domain.Gateway) (gorm.Dialector, error) {
		return nil, errors.New("no route")
	})

	_, err := exec.Execute(context.Background(), domain.Gateway{ID: 3}, nil)
	var provErr *domain.ProvisionError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, domain.StageConnect, provErr.Stage)
}

func TestMySQLOpenerRequiresDatabase(t *testing.T) {
	_, err := MySQLOpener(domain.Gateway{ID: 1, IPAddress: "10.0.0.1"})
	assert.Error(t, err)

	dialector, err := MySQLOpener(domain.Gateway{ID: 1, IPAddress: "10.0.0.1:3307", DatabaseName: "radius"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", dialector.Name())
}
