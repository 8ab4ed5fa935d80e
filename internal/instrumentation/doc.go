// Package instrumentation provides OpenTelemetry instrumentation for calbot.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of callback/health requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Calendar API Metrics:
//   - calendar_api_operations_total: Counter of Calendar API calls by operation and status
//   - calendar_api_operation_duration_seconds: Histogram of Calendar API call durations
//
// OAuth Metrics:
//   - oauth_flow_total: Counter of authorization flow steps by stage and result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Tool and chat Metrics:
//   - tool_invocations_total: Counter of tool invocations by tool name and status
//   - tool_duration_seconds: Histogram of tool execution durations
//   - chat_messages_total: Counter of inbound chat updates by kind
//
// # Tracing
//
// Spans are created for tool invocations (tool.<name>) and Calendar API calls
// (calendar.<operation>).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: calbot)
//
// # Example Usage
//
//	cfg, err := instrumentation.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordCalendarOperation(ctx, instrumentation.OperationList, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
