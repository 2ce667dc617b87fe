package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type relayRecorder struct {
	mu      sync.Mutex
	queries []string
	failAt  int
}

func (r *relayRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, DefaultRelayPath, req.URL.Path)
		require.NoError(t, req.ParseForm())

		r.mu.Lock()
		r.queries = append(r.queries, req.PostForm.Get("query"))
		n := len(r.queries)
		r.mu.Unlock()

		if r.failAt > 0 && n == r.failAt {
			http.Error(w, "mysql error", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}
}

func TestHTTPExecutorPostsStatementsInOrder(t *testing.T) {
	rec := &relayRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	exec := NewHTTPExecutor(HTTPRelayConfig{}, zap.NewNop())
	executed, err := exec.Execute(context.Background(), domain.Gateway{ID: 1, IPAddress: srv.URL}, domain.BuildPlan(domain.ProvisionRequest{
		Username: "alice", Password: "s3cret", Speed: "10", SpeedType: "M",
	}))
	require.NoError(t, err)
	assert.Len(t, executed, 4)

	assert.Equal(t, []string{
		"DELETE FROM radcheck WHERE username = 'alice' AND attribute = 'Cleartext-Password'",
		"INSERT INTO radcheck (username, attribute, op, value) VALUES ('alice', 'Cleartext-Password', ':=', 's3cret')",
		"DELETE FROM radcheck WHERE username = 'alice' AND attribute = 'User-Profile'",
		"INSERT INTO radcheck (username, attribute, op, value) VALUES ('alice', 'User-Profile', ':=', '10M_Profile')",
	}, rec.queries)
}

func TestHTTPExecutorStopsAtFailingStatement(t *testing.T) {
	rec := &relayRecorder{failAt: 2}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	exec := NewHTTPExecutor(HTTPRelayConfig{RetryMax: 0}, zap.NewNop())
	executed, err := exec.Execute(context.Background(), domain.Gateway{ID: 1, IPAddress: srv.URL}, domain.BuildPlan(domain.ProvisionRequest{
		Username: "alice", Password: "pw", Speed: "10", SpeedType: "M",
	}))
	require.Error(t, err)
	assert.Equal(t, []domain.Stage{domain.StageDeletePassword}, executed)
	assert.Len(t, rec.queries, 2)

	var provErr *domain.ProvisionError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, domain.StageInsertPassword, provErr.Stage)
	assert.ErrorIs(t, err, domain.ErrRelayStatus)
}

func TestHTTPExecutorRetriesWhenConfigured(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(HTTPRelayConfig{RetryMax: 2}, zap.NewNop())
	exec.client.RetryWaitMin = 0
	exec.client.RetryWaitMax = 0

	plan := domain.BuildPlan(domain.ProvisionRequest{Username: "a", Password: "b", Speed: "1", SpeedType: "M"})
	_, err := exec.Execute(context.Background(), domain.Gateway{ID: 1, IPAddress: srv.URL}, plan[:1])
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHTTPExecutorEndpoint(t *testing.T) {
	exec := NewHTTPExecutor(HTTPRelayConfig{}, nil)
	assert.Equal(t, "http://10.0.0.1/isp/query.php", exec.endpoint(domain.Gateway{IPAddress: "10.0.0.1"}))
	assert.Equal(t, "https://gw.example/isp/query.php", exec.endpoint(domain.Gateway{IPAddress: "https://gw.example/"}))
}
