package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"github.com/smallbiznis/ispbill/internal/gateway/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, gw domain.Gateway, plan []domain.Statement) ([]domain.Stage, error) {
	args := m.Called(ctx, gw, plan)
	stages, _ := args.Get(0).([]domain.Stage)
	return stages, args.Error(1)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, gw domain.Gateway, username, password string) (domain.VerifyOutcome, error) {
	args := m.Called(ctx, gw, username, password)
	return args.Get(0).(domain.VerifyOutcome), args.Error(1)
}

func newTestService(sqlExec, httpExec domain.Executor, verifier domain.Verifier) domain.Provisioner {
	return NewService(Params{
		Cfg:      config.Config{Gateway: config.GatewayConfig{Timeout: time.Second}},
		Log:      zap.NewNop(),
		SQL:      sqlExec,
		HTTP:     httpExec,
		Verifier: verifier,
	})
}

func allStages() []domain.Stage {
	return []domain.Stage{
		domain.StageDeletePassword,
		domain.StageInsertPassword,
		domain.StageDeleteProfile,
		domain.StageInsertProfile,
	}
}

func TestProvisionSelectsTransport(t *testing.T) {
	sqlExec := &mockExecutor{}
	httpExec := &mockExecutor{}
	svc := newTestService(sqlExec, httpExec, nil)

	httpExec.On("Execute", mock.Anything, mock.MatchedBy(func(gw domain.Gateway) bool {
		return gw.Transport == domain.TransportHTTP
	}), mock.Anything).Return(allStages(), nil).Once()

	result, err := svc.Provision(context.Background(), domain.ProvisionRequest{
		Username: "alice", Password: "pw", Speed: "10", SpeedType: "M",
		Gateway: domain.Gateway{ID: 1, Transport: domain.TransportHTTP},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransportHTTP, result.Transport)
	assert.Equal(t, "10M_Profile", result.Profile)
	assert.Equal(t, domain.VerifySkipped, result.Verified)
	assert.Len(t, result.Executed, 4)

	httpExec.AssertExpectations(t)
	sqlExec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisionDefaultsToSQL(t *testing.T) {
	sqlExec := &mockExecutor{}
	svc := newTestService(sqlExec, &mockExecutor{}, nil)

	sqlExec.On("Execute", mock.Anything, mock.Anything, mock.MatchedBy(func(plan []domain.Statement) bool {
		return len(plan) == 4 && plan[3].Args[3] == "20M_Profile"
	})).Return(allStages(), nil).Once()

	result, err := svc.Provision(context.Background(), domain.ProvisionRequest{
		Username: "bob", Password: "pw", Speed: "20", SpeedType: "M",
		Gateway: domain.Gateway{ID: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransportSQL, result.Transport)
	sqlExec.AssertExpectations(t)
}

func TestProvisionReturnsTypedError(t *testing.T) {
	sqlExec := &mockExecutor{}
	verifier := &mockVerifier{}
	svc := newTestService(sqlExec, &mockExecutor{}, verifier)

	stageErr := &domain.ProvisionError{GatewayID: 3, Stage: domain.StageInsertProfile, Err: errors.New("table is read only")}
	sqlExec.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Stage{domain.StageDeletePassword}, stageErr).Once()

	result, err := svc.Provision(context.Background(), domain.ProvisionRequest{
		Username: "carol", Password: "pw", Speed: "5", SpeedType: "M",
		Gateway: domain.Gateway{ID: 3, Transport: domain.TransportSQL},
	})
	require.Error(t, err)

	var provErr *domain.ProvisionError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, domain.StageInsertProfile, provErr.Stage)
	assert.Equal(t, []domain.Stage{domain.StageDeletePassword}, result.Executed)
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProvisionRejectsUnknownTransport(t *testing.T) {
	svc := newTestService(&mockExecutor{}, &mockExecutor{}, nil)

	_, err := svc.Provision(context.Background(), domain.ProvisionRequest{
		Username: "dave", Gateway: domain.Gateway{ID: 4, Transport: "snmp"},
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedTransport)
}

func TestProvisionRejectsEmptyUsername(t *testing.T) {
	svc := newTestService(&mockExecutor{}, &mockExecutor{}, nil)

	_, err := svc.Provision(context.Background(), domain.ProvisionRequest{Username: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)
}

func TestProvisionVerifiesWhenConfigured(t *testing.T) {
	sqlExec := &mockExecutor{}
	verifier := &mockVerifier{}
	svc := newTestService(sqlExec, &mockExecutor{}, verifier)

	sqlExec.On("Execute", mock.Anything, mock.Anything, mock.Anything).Return(allStages(), nil)
	verifier.On("Verify", mock.Anything, mock.Anything, "erin", "pw").Return(domain.VerifyReject, nil).Once()

	result, err := svc.Provision(context.Background(), domain.ProvisionRequest{
		Username: "erin", Password: "pw", Speed: "10", SpeedType: "M",
		Gateway: domain.Gateway{ID: 5, RadiusSecret: "s"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyReject, result.Verified)
	verifier.AssertExpectations(t)
}

func TestProvisionTwiceLeavesOneRowPerAttribute(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radius.db")
	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.RadCheck{}))

	opener := func(domain.Gateway) (gorm.Dialector, error) { return sqlite.Open(path), nil }
	svc := newTestService(transport.NewSQLExecutor(opener), &mockExecutor{}, nil)

	req := domain.ProvisionRequest{
		Username: "alice", Password: "s3cret", Speed: "10", SpeedType: "M",
		Gateway: domain.Gateway{ID: 1, Transport: domain.TransportSQL},
	}
	for i := 0; i < 2; i++ {
		_, err := svc.Provision(context.Background(), req)
		require.NoError(t, err)
	}

	var rows []domain.RadCheck
	require.NoError(t, conn.Where("username = ?", "alice").Find(&rows).Error)
	require.Len(t, rows, 2)

	values := map[string]string{}
	for _, row := range rows {
		values[row.Attribute] = row.Value
	}
	assert.Equal(t, "s3cret", values[domain.AttributeCleartextPassword])
	assert.Equal(t, "10M_Profile", values[domain.AttributeUserProfile])
}
