package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"github.com/smallbiznis/ispbill/internal/gateway/radprobe"
	"github.com/smallbiznis/ispbill/internal/gateway/transport"
	obslogger "github.com/smallbiznis/ispbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	"github.com/smallbiznis/ispbill/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.ProvisioningMetrics `optional:"true"`

	SQL      domain.Executor `name:"gateway.sql" optional:"true"`
	HTTP     domain.Executor `name:"gateway.http" optional:"true"`
	Verifier domain.Verifier `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	metrics       *obsmetrics.ProvisioningMetrics
	executors     map[domain.Transport]domain.Executor
	verifier      domain.Verifier
	timeout       time.Duration
	verifyEnabled bool
}

func NewService(p Params) domain.Provisioner {
	log := p.Log.Named("gateway.service")

	sqlExec := p.SQL
	if sqlExec == nil {
		sqlExec = transport.NewSQLExecutor(transport.MySQLOpener)
	}
	httpExec := p.HTTP
	if httpExec == nil {
		httpExec = transport.NewHTTPExecutor(transport.HTTPRelayConfig{
			Path:      p.Cfg.Gateway.RelayPath,
			UserAgent: p.Cfg.Gateway.RelayUserAgent,
			RetryMax:  p.Cfg.Gateway.HTTPRetryMax,
			Timeout:   p.Cfg.Gateway.Timeout,
		}, log.Named("relay"))
	}
	verifier := p.Verifier
	if verifier == nil && p.Cfg.Gateway.VerifyEnabled {
		verifier = radprobe.New(radprobe.Config{
			Timeout:       p.Cfg.Gateway.VerifyTimeout,
			NASIdentifier: p.Cfg.Gateway.NASIdentifier,
		})
	}

	timeout := p.Cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Service{
		log:     log,
		metrics: p.Metrics,
		executors: map[domain.Transport]domain.Executor{
			domain.TransportSQL:  sqlExec,
			domain.TransportHTTP: httpExec,
		},
		verifier:      verifier,
		timeout:       timeout,
		verifyEnabled: verifier != nil,
	}
}

func (s *Service) Provision(ctx context.Context, req domain.ProvisionRequest) (domain.Result, error) {
	gw := req.Gateway
	tr := normalizeTransport(gw.Transport)
	result := domain.Result{
		Transport: tr,
		Profile:   domain.ProfileName(req.Speed, req.SpeedType),
		Verified:  domain.VerifySkipped,
	}
	if strings.TrimSpace(req.Username) == "" {
		return result, domain.ErrInvalidUsername
	}
	exec, ok := s.executors[tr]
	if !ok {
		return result, &domain.ProvisionError{GatewayID: gw.ID, Stage: domain.StageConnect, Err: domain.ErrUnsupportedTransport}
	}

	ctx, span := tracing.StartSpan(ctx, "gateway.provision",
		attribute.String("transport", string(tr)),
		attribute.String("gateway_id", gw.ID.String()),
	)
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	executed, err := exec.Execute(callCtx, gw, domain.BuildPlan(req))
	result.Executed = executed
	result.Duration = time.Since(start)
	tracing.EndSpan(span, err)

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("gateway_id", gw.ID.String()),
		zap.String("transport", string(tr)),
		zap.String("username", req.Username),
	)
	if err != nil {
		s.metrics.ObserveAttempt(string(tr), obsmetrics.ProvisionOutcomeFailure, result.Duration)
		var provErr *domain.ProvisionError
		if errors.As(err, &provErr) {
			s.metrics.IncStageFailure(string(tr), string(provErr.Stage))
		}
		log.Error("gateway.provision.failed",
			zap.Int("executed", len(executed)),
			zap.Error(err),
		)
		return result, err
	}
	s.metrics.ObserveAttempt(string(tr), obsmetrics.ProvisionOutcomeSuccess, result.Duration)
	log.Info("gateway.provision.applied",
		zap.String("profile", result.Profile),
		zap.Int64("duration_ms", result.Duration.Milliseconds()),
	)

	if s.verifyEnabled {
		result.Verified = s.verify(ctx, log, req)
	}
	return result, nil
}

func (s *Service) verify(ctx context.Context, log *zap.Logger, req domain.ProvisionRequest) domain.VerifyOutcome {
	outcome, err := s.verifier.Verify(ctx, req.Gateway, req.Username, req.Password)
	s.metrics.IncVerification(string(outcome))
	switch {
	case err != nil:
		log.Warn("gateway.verify.failed", zap.Error(err))
	case outcome == domain.VerifyReject:
		log.Warn("gateway.verify.rejected")
	}
	return outcome
}

func normalizeTransport(t domain.Transport) domain.Transport {
	switch domain.Transport(strings.ToLower(strings.TrimSpace(string(t)))) {
	case "", domain.TransportSQL:
		return domain.TransportSQL
	case domain.TransportHTTP:
		return domain.TransportHTTP
	default:
		return t
	}
}
