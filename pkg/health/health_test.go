package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler("user")
	h.RegisterCritical("postgres", func(ctx context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.Equal(t, StatusUp, resp.Status)
	assert.Equal(t, "user", resp.Service)
}

func TestReadinessHandler(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name        string
		critical    Checker
		nonCritical Checker
		wantCode    int
		wantStatus  Status
	}{
		{"all healthy", ok, ok, http.StatusOK, StatusUp},
		{"non-critical down", ok, fail, http.StatusOK, StatusDegraded},
		{"critical down", fail, ok, http.StatusServiceUnavailable, StatusDown},
		{"both down", fail, fail, http.StatusServiceUnavailable, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("search")
			h.RegisterCritical("elasticsearch", tt.critical)
			h.RegisterNonCritical("kafka", tt.nonCritical)

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decode(t, rec)
			assert.Equal(t, tt.wantStatus, resp.Status)
			require.Len(t, resp.Checks, 2)
			assert.True(t, resp.Checks["elasticsearch"].Critical)
			assert.False(t, resp.Checks["kafka"].Critical)
		})
	}
}

func TestCheck_ReportsErrorText(t *testing.T) {
	h := NewHandler("article")
	h.RegisterCritical("postgres", func(ctx context.Context) error { return errors.New("too many clients") })

	resp := h.Check(context.Background())
	assert.Equal(t, "too many clients", resp.Checks["postgres"].Error)
}

func TestCheck_AppliesTimeout(t *testing.T) {
	h := NewHandler("user")
	h.timeout = 20 * time.Millisecond
	h.RegisterNonCritical("cognito", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	resp := h.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestNoChecks_IsUp(t *testing.T) {
	resp := NewHandler("user").Check(context.Background())
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
}
