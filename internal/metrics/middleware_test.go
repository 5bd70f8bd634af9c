package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("Failed to read metric: %v", err)
	}
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestHTTPMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(HTTPMetrics())
	router.GET("/api/scans/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	routed := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/scans/:id", "200")
	health := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	missing := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unknown", "404")
	beforeRouted := metricValue(t, routed)
	beforeHealth := metricValue(t, health)
	beforeMissing := metricValue(t, missing)

	for _, path := range []string{"/api/scans/a", "/api/scans/b", "/health", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := metricValue(t, routed) - beforeRouted; got != 2 {
		t.Errorf("routed requests counted %v times, want 2 under the route pattern", got)
	}
	if got := metricValue(t, health) - beforeHealth; got != 0 {
		t.Errorf("health probes should not be counted, got %v", got)
	}
	if got := metricValue(t, missing) - beforeMissing; got != 1 {
		t.Errorf("unrouted requests counted %v times, want 1", got)
	}
	if got := metricValue(t, HTTPRequestsInFlight); got != 0 {
		t.Errorf("in-flight gauge = %v after all requests finished", got)
	}
}
