package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/calbot/internal/instrumentation"
)

func newRecordingMetrics(t *testing.T) (*instrumentation.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := instrumentation.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

// requestCounts sums http_requests_total by path and status.
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				path, _ := dp.Attributes.Value("path")
				status, _ := dp.Attributes.Value("status")
				counts[path.AsString()+" "+status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestCallbackServer_Routes(t *testing.T) {
	metrics, reader := newRecordingMetrics(t)
	health := NewHealthChecker("test")
	health.SetReady(true)

	callback := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	srv, err := NewCallbackServer(CallbackServerConfig{
		Addr:     "127.0.0.1:0",
		Callback: callback,
		Health:   health,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	for _, path := range []string{"/callback?state=a&code=b", "/healthz", "/readyz", "/nope"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		switch {
		case strings.HasPrefix(path, "/callback"):
			assert.Equal(t, http.StatusTeapot, rec.Code)
		case path == "/nope":
			assert.Equal(t, http.StatusNotFound, rec.Code)
		default:
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	}

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(1), counts["/callback 418"])
	assert.Equal(t, int64(1), counts["/healthz 200"])
	assert.Equal(t, int64(1), counts["/readyz 200"])
	assert.Equal(t, int64(1), counts["other 404"])
}

func TestNewCallbackServer_Validation(t *testing.T) {
	_, err := NewCallbackServer(CallbackServerConfig{Addr: ":8080"})
	assert.ErrorContains(t, err, "callback handler is required")

	_, err = NewCallbackServer(CallbackServerConfig{Callback: http.NotFoundHandler()})
	assert.ErrorContains(t, err, "listen address is required")
}

func TestCallbackServer_StartAndShutdown(t *testing.T) {
	srv, err := NewCallbackServer(CallbackServerConfig{
		Addr:     "127.0.0.1:0",
		Callback: http.NotFoundHandler(),
		Health:   NewHealthChecker("test"),
	})
	require.NoError(t, err)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after Shutdown")
	}
}
