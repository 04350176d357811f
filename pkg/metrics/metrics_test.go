package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusiness_CountsAndNilSafety(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, err := NewBusiness(reg)
	require.NoError(t, err)

	b.SubscriptionEvent("created")
	b.SubscriptionEvent("created")
	b.InvoiceEvent("paid", "consent")
	b.Charged("consent", 500)
	b.Charged("consent", -1)

	assert.Equal(t, float64(2), testutil.ToFloat64(b.subscriptions.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.invoices.WithLabelValues("paid", "consent")))
	assert.Equal(t, float64(500), testutil.ToFloat64(b.charged.WithLabelValues("consent")))

	// registering twice reuses the existing collectors
	b2, err := NewBusiness(reg)
	require.NoError(t, err)
	b2.SubscriptionEvent("created")
	assert.Equal(t, float64(3), testutil.ToFloat64(b.subscriptions.WithLabelValues("created")))

	var nilB *Business
	assert.NotPanics(t, func() {
		nilB.SubscriptionEvent("x")
		nilB.Charged("wallet", 1)
		nilB.ChainCall("submit", "ok")
	})
}

func TestPrometheus_MiddlewareServesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(NewPrometheusOptions{Registry: reg})

	r := gin.New()
	p.Use(r)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "req_total")
	assert.Contains(t, w.Body.String(), `url="/ping"`)
}
