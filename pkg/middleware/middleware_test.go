package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid fragment", err: identity.ErrInvalidFragment, want: http.StatusBadRequest},
		{name: "not found", err: models.ErrContactNotFound, want: http.StatusNotFound},
		{name: "lock", err: fmt.Errorf("%w: email:a@x.io", identity.ErrLockUnavailable), want: http.StatusServiceUnavailable},
		{name: "store", err: &identity.StoreError{Op: "Update", Err: errors.New("deadlock")}, want: http.StatusInternalServerError},
		{name: "inconsistent", err: identity.ErrInconsistentCluster, want: http.StatusInternalServerError},
		{name: "already http", err: httperror.NewHTTPError(http.StatusConflict, "conflict"), want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := DomainError(tt.err)
			require.True(t, httperror.IsHTTPError(mapped))
			assert.Equal(t, tt.want, httperror.GetStatusCode(mapped))
		})
	}
}

func newTestEcho(handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = Error(noopLogger())
	e.Use(Context())
	e.Use(Logger(noopLogger()))
	e.GET("/test", handler)
	return e
}

func TestError_RendersEnvelope(t *testing.T) {
	e := newTestEcho(func(c echo.Context) error {
		return &identity.StoreError{Op: "FindByEmailOrPhone", Err: errors.New("dial tcp 10.0.0.1:5432: connection refused")}
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-42", body.RequestID)
	assert.NotContains(t, body.Message, "10.0.0.1")
}

func TestError_EchoErrors(t *testing.T) {
	e := newTestEcho(func(c echo.Context) error { return nil })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContext_SetsSourceAndRequestID(t *testing.T) {
	var source, requestID string
	e := newTestEcho(func(c echo.Context) error {
		source = appctx.GetSource(c.Request().Context())
		requestID = appctx.GetRequestID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, appctx.SourceHTTP, source)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get(echo.HeaderXRequestID))
}
