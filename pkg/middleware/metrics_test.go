package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *HTTPMetrics {
	t.Helper()
	m, err := NewHTTPMetrics(prometheus.NewRegistry(), "search")
	require.NoError(t, err)
	return m
}

func TestHTTPMetrics_CountsByRoutePattern(t *testing.T) {
	m := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/v1/users/{user_id}/info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"alice", "bob", "carol"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+id+"/info", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/v1/users/{user_id}/info", "404"))
	assert.Equal(t, float64(3), got)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestHTTPMetrics_InFlight(t *testing.T) {
	m := newTestMetrics(t)

	var seen float64
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = testutil.ToFloat64(m.inFlight)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, float64(1), seen)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))
}

func TestHTTPMetrics_UnroutedRequest(t *testing.T) {
	m := newTestMetrics(t)
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("GET", "unknown", "200")))
}

func TestNewHTTPMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewHTTPMetrics(reg, "user")
	require.NoError(t, err)
	_, err = NewHTTPMetrics(reg, "user")
	assert.Error(t, err)
}
