package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	m := New()
	m.PriceSettled("applied")
	m.PriceSettled("stale")
	m.PriceSettled("stale")
	m.TxSettled("swap", "confirmed")
	m.LoginVerified("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.prices.WithLabelValues("applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.prices.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("swap", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("ok")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	m.ObserveUpstream("price", 200, 50*time.Millisecond)

	h := m.Middleware("/api/siwe")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/siwe", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/siwe", http.MethodPost, "401")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "devcamp_http_requests_total"))
	assert.True(t, strings.Contains(string(body), "devcamp_aggregator_request_duration_seconds"))
}
