package instrumentation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfiguredTestProvider(t *testing.T, config Config) *Provider {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestNewProvider_DisabledSkipsValidation(t *testing.T) {
	// Exporter settings are irrelevant while instrumentation is off.
	provider := newConfiguredTestProvider(t, Config{
		Enabled:           false,
		MetricsExporter:   "graphite",
		TracingExporter:   ExporterOTLP,
		TraceSamplingRate: 7,
	})

	assert.False(t, provider.Enabled())
	assert.False(t, provider.PrometheusEnabled())

	assert.NotPanics(t, func() {
		provider.Metrics().RecordChatMessage(context.Background(), ChatKindText)
		provider.Metrics().RecordOAuthFlow(context.Background(), OAuthStageBegin, OAuthResultSuccess)
	})

	_, span := provider.Tracer("calbot/test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid(), "disabled provider hands out no-op spans")
	span.End()
}

func TestNewProvider_DisabledKeepsAuditLog(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	provider := newConfiguredTestProvider(t, Config{Enabled: false, AuditLogging: true})

	provider.AuditLogger().LogToolInvocation(
		NewToolInvocation("list_calendar_events").WithUser(42).Complete(true, nil),
	)

	assert.Contains(t, buf.String(), `"msg":"tool_executed"`)
	assert.Contains(t, buf.String(), `"tool":"list_calendar_events"`)
	assert.NotContains(t, buf.String(), `"42"`, "user ids are hashed in audit lines")
}

func TestNewProvider_AuditLoggingOff(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	provider := newConfiguredTestProvider(t, Config{Enabled: false, AuditLogging: false})
	provider.AuditLogger().LogToolInvocation(NewToolInvocation("create_calendar_event").Complete(false, nil))

	assert.Empty(t, buf.String())
}

func TestNewProvider_MetricsExporter(t *testing.T) {
	tests := []struct {
		name       string
		exporter   string
		prometheus bool
	}{
		{name: "unset defaults to prometheus", exporter: "", prometheus: true},
		{name: "prometheus", exporter: ExporterPrometheus, prometheus: true},
		{name: "stdout", exporter: ExporterStdout, prometheus: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newConfiguredTestProvider(t, Config{
				ServiceName:     "calbot",
				Enabled:         true,
				MetricsExporter: tt.exporter,
				TracingExporter: ExporterNone,
			})

			assert.True(t, provider.Enabled())
			assert.Equal(t, tt.prometheus, provider.PrometheusEnabled())
			assert.NotNil(t, provider.Metrics())
		})
	}
}

func TestNewProvider_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		reason string
	}{
		{
			name:   "unknown metrics exporter",
			config: Config{MetricsExporter: "graphite"},
			reason: "invalid metrics exporter",
		},
		{
			name:   "unknown tracing exporter",
			config: Config{TracingExporter: "zipkin"},
			reason: "invalid tracing exporter",
		},
		{
			name:   "otlp tracing without endpoint",
			config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterOTLP},
			reason: "OTLP endpoint is required",
		},
		{
			name:   "sampling rate out of range",
			config: Config{TraceSamplingRate: 1.5},
			reason: "sampling rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Enabled = true

			provider, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Nil(t, provider)
			assert.ErrorContains(t, err, "invalid instrumentation config")
			assert.ErrorContains(t, err, tt.reason)
		})
	}
}

func TestNewProvider_SampledTracing(t *testing.T) {
	provider := newConfiguredTestProvider(t, Config{
		ServiceName:       "calbot",
		Enabled:           true,
		MetricsExporter:   ExporterStdout,
		TracingExporter:   ExporterStdout,
		TraceSamplingRate: 1,
	})

	_, span := provider.Tracer("calbot/test").Start(context.Background(), "sampled")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
}

func TestProvider_NilSafe(t *testing.T) {
	var provider *Provider

	assert.False(t, provider.Enabled())
	assert.False(t, provider.PrometheusEnabled())
	assert.NotNil(t, provider.Metrics())
	assert.NotNil(t, provider.AuditLogger())
	assert.NotNil(t, provider.Tracer("calbot/test"))
	assert.NoError(t, provider.Shutdown(context.Background()))
}
