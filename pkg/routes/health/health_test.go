package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, e *echo.Echo, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var res Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return rec.Code, res
}

func TestChecker(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		setup    func(c *Checker)
		wantCode int
		want     Status
	}{
		{
			name:     "all healthy",
			setup:    func(c *Checker) { c.AddCheck("database", ok); c.AddCheck("redis", ok) },
			wantCode: http.StatusOK,
			want:     StatusHealthy,
		},
		{
			name:     "critical failure",
			setup:    func(c *Checker) { c.AddCheck("database", down); c.AddOptionalCheck("graph", ok) },
			wantCode: http.StatusServiceUnavailable,
			want:     StatusUnhealthy,
		},
		{
			name:     "optional failure degrades",
			setup:    func(c *Checker) { c.AddCheck("database", ok); c.AddOptionalCheck("graph", down) },
			wantCode: http.StatusOK,
			want:     StatusDegraded,
		},
		{
			name:     "no checks",
			setup:    func(c *Checker) {},
			wantCode: http.StatusOK,
			want:     StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker("test")
			tt.setup(checker)
			e := echo.New()
			checker.RegisterRoutes(e)

			code, res := get(t, e, "/api/v1/health")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestChecker_Readiness(t *testing.T) {
	checker := NewChecker("test")
	checker.AddCheck("database", func(context.Context) error { return nil })
	e := echo.New()
	checker.RegisterRoutes(e)

	code, res := get(t, e, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, res.Checks, "startup")

	checker.SetReady(true)
	code, res = get(t, e, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, res.Checks["database"].Status)

	code, _ = get(t, e, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, code)
}
