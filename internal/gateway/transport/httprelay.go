package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/ispbill/internal/gateway/domain"
	"go.uber.org/zap"
)

const DefaultRelayPath = "/isp/query.php"

// HTTPRelayConfig configures the query relay client.
type HTTPRelayConfig struct {
	Path      string
	UserAgent string
	RetryMax  int
	Timeout   time.Duration
}

// HTTPExecutor posts each statement to the gateway relay as form field
// "query", in order, stopping at the first failure.
type HTTPExecutor struct {
	client    *retryablehttp.Client
	path      string
	userAgent string
	log       *zap.Logger
}

func NewHTTPExecutor(cfg HTTPRelayConfig, log *zap.Logger) *HTTPExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if client.RetryMax < 0 {
		client.RetryMax = 0
	}
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = leveledLogger{log: log}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultRelayPath
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "ispbill-relay"
	}
	return &HTTPExecutor{
		client:    client,
		path:      path,
		userAgent: userAgent,
		log:       log,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, gw domain.Gateway, plan []domain.Statement) ([]domain.Stage, error) {
	endpoint := e.endpoint(gw)
	executed := make([]domain.Stage, 0, len(plan))
	for _, stmt := range plan {
		query, err := RenderSQL(stmt)
		if err != nil {
			return executed, &domain.ProvisionError{GatewayID: gw.ID, Stage: stmt.Stage, Statement: stmt.Query, Err: err}
		}
		if err := e.post(ctx, endpoint, query); err != nil {
			return executed, &domain.ProvisionError{GatewayID: gw.ID, Stage: stmt.Stage, Statement: stmt.Query, Err: err}
		}
		executed = append(executed, stmt.Stage)
	}
	return executed, nil
}

func (e *HTTPExecutor) post(ctx context.Context, endpoint, query string) error {
	form := url.Values{"query": {query}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d %s", domain.ErrRelayStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	e.log.Debug("relay statement applied",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

func (e *HTTPExecutor) endpoint(gw domain.Gateway) string {
	base := strings.TrimRight(strings.TrimSpace(gw.IPAddress), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + e.path
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log *zap.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}
