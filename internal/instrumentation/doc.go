// Package instrumentation provides OpenTelemetry instrumentation for the
// inboxbuckets service.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds: by method, route pattern and status
//
// Gmail:
//   - gmail_operations_total, gmail_operation_duration_seconds: by operation and status
//
// Classification pipeline:
//   - llm_calls_total, llm_call_duration_seconds: by provider and status (success, error, skipped)
//   - classifications_total: by source (cache, llm, heuristic, fallback)
//   - classification_cache_lookups_total: by result (hit, miss)
//
// Other:
//   - rate_limit_rejections_total: by route
//   - oauth_token_refresh_total: by result
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds: by tool and status
//
// # Tracing
//
// Spans are created for MCP tools (tool.<name>), Gmail calls (gmail.<operation>)
// and completion requests (llm.<provider>).
//
// # Configuration
//
// ConfigFromOSEnv reads these variables on top of DefaultConfig:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - PROMETHEUS_ENDPOINT: scrape path (default: /metrics)
//   - OTEL_METRIC_EXPORT_INTERVAL: push interval in milliseconds (default: 10000)
//   - METRICS_DETAILED_LABELS: add per-user labels (default: false)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate 0.0 to 1.0 (default: 0.1)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_SERVICE_NAME, OTEL_SERVICE_INSTANCE_ID
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	cfg, err := instrumentation.ConfigFromOSEnv()
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordLLMCall(ctx, "openai", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
