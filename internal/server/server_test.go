package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/config"
	connectiondomain "github.com/smallbiznis/ispbill/internal/connection/domain"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"github.com/smallbiznis/ispbill/internal/observability"
	paymentdomain "github.com/smallbiznis/ispbill/internal/payment/domain"
	"github.com/smallbiznis/ispbill/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeConnectionService struct {
	createErr   error
	invoiceErr  error
	provisioned []snowflake.ID
	lastCreate  connectiondomain.CreateConnectionRequest
	jobRuns     int
}

func (f *fakeConnectionService) Create(_ context.Context, req connectiondomain.CreateConnectionRequest) (*connectiondomain.Connection, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &connectiondomain.Connection{
		ID:        snowflake.ID(500),
		PackageID: req.PackageID,
		PartnerID: req.PartnerID,
		Username:  req.Username,
		Password:  req.Password,
		Status:    connectiondomain.StatusNew,
	}, nil
}

func (f *fakeConnectionService) GenerateInvoice(_ context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	return &invoicedomain.Invoice{ID: snowflake.ID(900), PartnerID: snowflake.ID(7)}, nil
}

func (f *fakeConnectionService) Provision(_ context.Context, id snowflake.ID) error {
	f.provisioned = append(f.provisioned, id)
	return nil
}

func (f *fakeConnectionService) job() (connectiondomain.JobResult, error) {
	f.jobRuns++
	return connectiondomain.JobResult{Selected: 3, Processed: 2, Skipped: 1}, nil
}

func (f *fakeConnectionService) ProcessNewConnections(context.Context) (connectiondomain.JobResult, error) {
	return f.job()
}

func (f *fakeConnectionService) ProcessAllConnections(context.Context) (connectiondomain.JobResult, error) {
	return f.job()
}

func (f *fakeConnectionService) ProcessExpiry(context.Context) (connectiondomain.JobResult, error) {
	return f.job()
}

func (f *fakeConnectionService) PrepareBilling(context.Context) (connectiondomain.JobResult, error) {
	return f.job()
}

func (f *fakeConnectionService) ProcessPaidBillings(context.Context) (connectiondomain.JobResult, error) {
	return f.job()
}

func (f *fakeConnectionService) RetryProvisioning(context.Context) (connectiondomain.JobResult, error) {
	return f.job()
}

type fakeInvoiceService struct {
	renderErr error
}

func (f *fakeInvoiceService) Create(context.Context, *gorm.DB, invoicedomain.CreateRequest) (*invoicedomain.Invoice, error) {
	return nil, ErrInternal
}

func (f *fakeInvoiceService) Post(context.Context, *gorm.DB, snowflake.ID) (*invoicedomain.Invoice, error) {
	return nil, ErrInternal
}

func (f *fakeInvoiceService) RefreshPaymentState(context.Context, *gorm.DB, snowflake.ID) (*invoicedomain.Invoice, error) {
	return nil, ErrInternal
}

func (f *fakeInvoiceService) FindByID(_ context.Context, _ *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if id != snowflake.ID(900) {
		return nil, invoicedomain.ErrNotFound
	}
	return &invoicedomain.Invoice{ID: id, PartnerID: snowflake.ID(7), Currency: "IDR"}, nil
}

func (f *fakeInvoiceService) Lines(context.Context, *gorm.DB, snowflake.ID) ([]invoicedomain.Line, error) {
	return []invoicedomain.Line{{Name: "Installation"}}, nil
}

func (f *fakeInvoiceService) ListOpen(context.Context, *gorm.DB, snowflake.ID) ([]invoicedomain.Invoice, error) {
	return nil, nil
}

func (f *fakeInvoiceService) RenderPDF(_ context.Context, _ *gorm.DB, id snowflake.ID) (invoicedomain.RenderResponse, error) {
	if f.renderErr != nil {
		return invoicedomain.RenderResponse{}, f.renderErr
	}
	return invoicedomain.RenderResponse{
		FileName: fmt.Sprintf("invoice-acme-%d.pdf", id),
		Body:     strings.NewReader("%PDF-1.4"),
	}, nil
}

type fakePaymentService struct {
	last paymentdomain.RegisterPaymentRequest
	err  error
}

func (f *fakePaymentService) RegisterPayment(_ context.Context, req paymentdomain.RegisterPaymentRequest) (paymentdomain.RegisterPaymentResult, error) {
	f.last = req
	if f.err != nil {
		return paymentdomain.RegisterPaymentResult{}, f.err
	}
	return paymentdomain.RegisterPaymentResult{
		Payment: paymentdomain.Payment{
			ID:        snowflake.ID(77),
			PartnerID: req.PartnerID,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Reference: req.Reference,
		},
		Invoices: []paymentdomain.AppliedInvoice{
			{InvoiceID: snowflake.ID(900), Matches: 1, PaymentState: invoicedomain.PaymentStatePaid},
		},
	}, nil
}

type testEnv struct {
	router      *gin.Engine
	connections *fakeConnectionService
	invoices    *fakeInvoiceService
	payments    *fakePaymentService
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		router:      gin.New(),
		connections: &fakeConnectionService{},
		invoices:    &fakeInvoiceService{},
		payments:    &fakePaymentService{},
	}
	env.router.Use(ErrorHandlingMiddleware())

	sched, err := scheduler.New(scheduler.Params{
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)),
		ConnectionSvc: env.connections,
	})
	require.NoError(t, err)

	NewServer(ServerParams{
		Gin:           env.router,
		Cfg:           cfg,
		Log:           zap.NewNop(),
		ConnectionSvc: env.connections,
		InvoiceSvc:    env.invoices,
		PaymentSvc:    env.payments,
		Scheduler:     sched,
	})
	return env
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewEngine(observability.Config{ServiceName: "ispbill", Environment: "test", LogLevel: "info"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestRunJobRequiresCronSecret(t *testing.T) {
	closed := newTestEnv(t, config.Config{})
	resp := closed.do(http.MethodPost, "/jobs/expiry/run", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	env := newTestEnv(t, config.Config{CronSecret: "s3cret"})
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "wrong scheme", header: "Basic s3cret"},
		{name: "wrong token", header: "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(http.MethodPost, "/jobs/expiry/run", "", map[string]string{"Authorization": tt.header})
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
		})
	}
	assert.Zero(t, env.connections.jobRuns)
}

func TestRunJob(t *testing.T) {
	env := newTestEnv(t, config.Config{CronSecret: "s3cret"})
	auth := map[string]string{"Authorization": "Bearer s3cret"}

	resp := env.do(http.MethodPost, "/jobs/prepare_billing/run", "", auth)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"job":"prepare_billing","selected":3,"processed":2,"skipped":1,"provision_failed":0}}`, resp.Body.String())
	assert.Equal(t, 1, env.connections.jobRuns)

	resp = env.do(http.MethodPost, "/jobs/compact/run", "", auth)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCreateConnection(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	resp := env.do(http.MethodPost, "/api/connections",
		`{"package_id":"10","partner_id":"7","username":"cafe01","password":"pw"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, snowflake.ID(10), env.connections.lastCreate.PackageID)
	assert.Equal(t, "cafe01", env.connections.lastCreate.Username)
	assert.NotContains(t, resp.Body.String(), `"pw"`)

	resp = env.do(http.MethodPost, "/api/connections", `{"package_id":`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "request", decodeError(t, resp).Errors[0].Field)

	env.connections.createErr = fmt.Errorf("%w: username", connectiondomain.ErrInvalidRequest)
	resp = env.do(http.MethodPost, "/api/connections", `{"package_id":"10","partner_id":"7","username":"a b","password":"pw"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, "invalid_connection_request", payload.Errors[0].Code)

	env.connections.createErr = connectiondomain.ErrPackageNotFound
	resp = env.do(http.MethodPost, "/api/connections", `{"package_id":"11","partner_id":"7","username":"cafe02","password":"pw"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGenerateConnectionInvoice(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	resp := env.do(http.MethodPost, "/api/connections/500/invoice", "", nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"900"`)

	resp = env.do(http.MethodPost, "/api/connections/abc/invoice", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_id", decodeError(t, resp).Errors[0].Code)

	env.connections.invoiceErr = connectiondomain.ErrSetupInvoicePending
	resp = env.do(http.MethodPost, "/api/connections/500/invoice", "", nil)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "setup_invoice_pending", decodeError(t, resp).Message)
}

func TestProvisionConnection(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	resp := env.do(http.MethodPost, "/api/connections/500/provision", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, []snowflake.ID{500}, env.connections.provisioned)
}

func TestRegisterPayment(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	resp := env.do(http.MethodPost, "/api/payments",
		`{"partner_id":"7","amount":"150000.50","currency":"idr","reference":"TRX-1","paid_at":"2025-01-31T08:00:00+07:00"}`, nil)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.True(t, decimal.RequireFromString("150000.50").Equal(env.payments.last.Amount))
	assert.Equal(t, time.Date(2025, 1, 31, 1, 0, 0, 0, time.UTC), env.payments.last.PaidAt)
	assert.Contains(t, resp.Body.String(), `"payment_state":"paid"`)

	env.payments.err = paymentdomain.ErrDuplicatePayment
	resp = env.do(http.MethodPost, "/api/payments", `{"partner_id":"7","amount":"1","currency":"IDR","reference":"TRX-1"}`, nil)
	assert.Equal(t, http.StatusConflict, resp.Code)

	env.payments.err = paymentdomain.ErrInvalidAmount
	resp = env.do(http.MethodPost, "/api/payments", `{"partner_id":"7","amount":"-1","currency":"IDR","reference":"TRX-2"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "amount", decodeError(t, resp).Errors[0].Field)
}

func TestGetInvoice(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	resp := env.do(http.MethodGet, "/api/invoices/900", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Installation")

	resp = env.do(http.MethodGet, "/api/invoices/901", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetInvoicePDF(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	resp := env.do(http.MethodGet, "/api/invoices/900/pdf", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="invoice-acme-900.pdf"`, resp.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4", resp.Body.String())

	env.invoices.renderErr = invoicedomain.ErrRendererMissing
	resp = env.do(http.MethodGet, "/api/invoices/900/pdf", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(paymentdomain.ErrInvalidCurrency)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_currency", code)

	typ, code = classifyErrorForLog(fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal", code)
}
