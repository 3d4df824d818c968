package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency
const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrUser      = "user"
	attrProvider  = "provider"
	attrSource    = "source"
)

// Classification sources recorded by RecordClassifications.
const (
	SourceCache     = "cache"
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
	SourceFallback  = "fallback"
)

// Metrics provides methods for recording observability metrics.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Gmail API metrics
	gmailOperationsTotal   metric.Int64Counter
	gmailOperationDuration metric.Float64Histogram

	// LLM metrics
	llmCallsTotal   metric.Int64Counter
	llmCallDuration metric.Float64Histogram

	// Classification pipeline metrics
	classificationsTotal metric.Int64Counter
	cacheLookupsTotal    metric.Int64Counter

	rateLimitRejectionsTotal metric.Int64Counter
	oauthTokenRefreshTotal   metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.gmailOperationsTotal, err = meter.Int64Counter(
		"gmail_operations_total",
		metric.WithDescription("Total number of Gmail API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_operations_total counter: %w", err)
	}

	m.gmailOperationDuration, err = meter.Float64Histogram(
		"gmail_operation_duration_seconds",
		metric.WithDescription("Gmail API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_operation_duration_seconds histogram: %w", err)
	}

	m.llmCallsTotal, err = meter.Int64Counter(
		"llm_calls_total",
		metric.WithDescription("Total number of LLM provider calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_calls_total counter: %w", err)
	}

	m.llmCallDuration, err = meter.Float64Histogram(
		"llm_call_duration_seconds",
		metric.WithDescription("LLM provider call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0, 45.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_call_duration_seconds histogram: %w", err)
	}

	m.classificationsTotal, err = meter.Int64Counter(
		"classifications_total",
		metric.WithDescription("Total number of thread classifications by source"),
		metric.WithUnit("{classification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifications_total counter: %w", err)
	}

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"classification_cache_lookups_total",
		metric.WithDescription("Classification cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification_cache_lookups_total counter: %w", err)
	}

	m.rateLimitRejectionsTotal, err = meter.Int64Counter(
		"rate_limit_rejections_total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit_rejections_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of Google token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route pattern, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrRoute, route),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGmailOperation records a Gmail API operation.
//
// Parameters:
//   - operation: Operation type (list, get, get_raw, get_attachment)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGmailOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gmailOperationsTotal == nil || m.gmailOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.gmailOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.gmailOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordLLMCall records a single completion request against a provider.
// Status is one of "success", "error" or "skipped" (open circuit).
func (m *Metrics) RecordLLMCall(ctx context.Context, provider, status string, duration time.Duration) {
	if m == nil || m.llmCallsTotal == nil || m.llmCallDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrStatus, status),
	}

	m.llmCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordClassifications adds n classifications produced by source.
func (m *Metrics) RecordClassifications(ctx context.Context, source string, n int) {
	if m == nil || m.classificationsTotal == nil || n <= 0 {
		return
	}

	m.classificationsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrSource, source)))
}

// RecordCacheLookup records cache hits and misses for one pipeline run.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hits, misses int) {
	if m == nil || m.cacheLookupsTotal == nil {
		return
	}

	if hits > 0 {
		m.cacheLookupsTotal.Add(ctx, int64(hits), metric.WithAttributes(attribute.String(attrResult, "hit")))
	}
	if misses > 0 {
		m.cacheLookupsTotal.Add(ctx, int64(misses), metric.WithAttributes(attribute.String(attrResult, "miss")))
	}
}

// RecordRateLimitRejection records a request rejected for the given route.
func (m *Metrics) RecordRateLimitRejection(ctx context.Context, route string) {
	if m == nil || m.rateLimitRejectionsTotal == nil {
		return
	}

	m.rateLimitRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrRoute, route)))
}

// RecordOAuthTokenRefresh records a Google token refresh attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
// The user label is only attached when detailed labels are enabled.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, user string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels && user != "" {
		attrs = append(attrs, attribute.String(attrUser, user))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
