package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestHandler_ExposesCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))

	SweepOutcomes.WithLabelValues("ethereum", "submitted").Inc()
	ObserveProvider("coingecko", "ok", time.Now().Add(-50*time.Millisecond))
	assert.GreaterOrEqual(t, testutil.ToFloat64(SweepOutcomes.WithLabelValues("ethereum", "submitted")), float64(1))

	r := gin.New()
	r.GET("/metrics", Handler(reg))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `offramp_sweeps_total{chain="ethereum",outcome="submitted"}`)
	assert.Contains(t, w.Body.String(), "offramp_provider_request_duration_seconds_bucket")
}
