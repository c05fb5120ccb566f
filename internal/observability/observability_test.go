package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("validated", "universe_id", "pilot")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "json handler output: %s", buf.String())

	buf.Reset()
	NewLogger(&buf, "warn", "text").Info("dropped")
	assert.Empty(t, buf.String())
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	m.Violation("character", "major")
	m.Validation("valid")
	m.Correction("applied")
	m.Update("ok")
	m.CacheLookup(true)
	assert.Nil(t, m.Registry())
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()
	m.Violation("plot", "critical")
	m.Violation("plot", "critical")
	m.Validation("invalid")
	m.CacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.violations.WithLabelValues("plot", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "continuity_violations_total")
}

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "continuity", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestObserverComponentFallsBackToDefault(t *testing.T) {
	var o Observer
	require.NotNil(t, o.Component("pipeline"))
}
