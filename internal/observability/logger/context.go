package logger

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	jobKey          contextKey = "job"
	runIDKey        contextKey = "run_id"
	connectionIDKey contextKey = "connection_id"
)

// WithRequestID stores the HTTP request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithJobRun tags the context with the scheduler job and run identifiers.
func WithJobRun(ctx context.Context, job, runID string) context.Context {
	ctx = context.WithValue(ctx, jobKey, strings.TrimSpace(job))
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

// JobRunFromContext returns the scheduler job and run identifiers, if any.
func JobRunFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, jobKey), stringValue(ctx, runIDKey)
}

// WithConnectionID tags the context with the connection being processed.
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDKey, strings.TrimSpace(connectionID))
}

// ConnectionIDFromContext returns the connection identifier, if any.
func ConnectionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, connectionIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
