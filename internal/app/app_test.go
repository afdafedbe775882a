package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func memoryConfig() config.Config {
	return config.Config{
		AppName:            "fern-test",
		Version:            "test",
		StoreDriver:        StoreMemory,
		ResolveLockMode:    LockLocal,
		ResolveTimeout:     time.Second,
		StartupMaxAttempts: 1,
	}
}

func TestNew_RejectsUnknownModes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "store driver", mutate: func(c *config.Config) { c.StoreDriver = "mysql" }},
		{name: "lock mode", mutate: func(c *config.Config) { c.ResolveLockMode = "zookeeper" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(&cfg)

			_, err := New(cfg, noopLogger())
			assert.Error(t, err)
		})
	}
}

func TestApp_MemoryStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.ResolveTransactional = true

	a, err := New(cfg, noopLogger())
	require.NoError(t, err)
	require.Nil(t, a.Resolver())

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Stop(ctx) })

	res, err := a.Resolver().Resolve(ctx, models.NewFragment("marty@hillvalley.edu", "555"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Primary.ID)

	srv := a.NewServer()
	a.Checker().SetReady(true)

	req := httptest.NewRequest(http.MethodPost, "/identify", strings.NewReader(`{"email":"mcfly@hillvalley.edu","phoneNumber":"555"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"contact":{"primaryContactId":1,"emails":["marty@hillvalley.edu","mcfly@hillvalley.edu"],"phoneNumbers":["555"],"secondaryContactIds":[2]}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
