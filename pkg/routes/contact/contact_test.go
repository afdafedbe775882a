package contact_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contactrepo "github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/routes/contact"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newServer(resolver contact.Resolver) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(noopLogger())
	e.Use(middleware.Context())
	contact.NewHandler(resolver, time.Second).Register(e.Group(""))
	return e
}

func newResolver() (*identity.Resolver, *contactrepo.MemoryStore) {
	start := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store := contactrepo.NewMemoryStore(contactrepo.WithClock(func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}))
	return identity.NewResolver(store, noopLogger()), store
}

func identify(t *testing.T, e *echo.Echo, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/identify", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) models.ClusterView {
	t.Helper()
	var res models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Contact
}

func TestIdentify(t *testing.T) {
	resolver, _ := newResolver()
	e := newServer(resolver)

	rec := identify(t, e, `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = identify(t, e, `{"email":"mcfly@hillvalley.edu","phoneNumber":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeView(t, rec)
	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, view.Emails)
	assert.Equal(t, []string{"123456"}, view.PhoneNumbers)
	assert.Equal(t, []int64{2}, view.SecondaryContactIDs)

	// the raw shape keeps empty arrays rather than null
	rec = identify(t, e, `{"email":null,"phoneNumber":"999"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"contact":{"primaryContactId":3,"emails":[],"phoneNumbers":["999"],"secondaryContactIds":[]}}`, rec.Body.String())
}

func TestIdentify_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "both null", body: `{"email":null,"phoneNumber":null}`},
		{name: "both empty", body: `{"email":"","phoneNumber":""}`},
		{name: "malformed email", body: `{"email":"not-an-email"}`},
		{name: "malformed json", body: `{"email":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, store := newResolver()
			rec := identify(t, newServer(resolver), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
			assert.Empty(t, store.All())
		})
	}
}

func TestIdentify_UnknownFieldsIgnored(t *testing.T) {
	resolver, _ := newResolver()
	rec := identify(t, newServer(resolver), `{"email":"doc@brown.io","nickname":"Doc"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingResolver struct {
	err error
}

func (r failingResolver) Resolve(context.Context, models.Fragment) (*identity.Resolution, error) {
	return nil, r.err
}

func (r failingResolver) ClusterOf(context.Context, int64) (*identity.Cluster, error) {
	return nil, r.err
}

func TestIdentify_StoreFailure(t *testing.T) {
	e := newServer(failingResolver{err: &identity.StoreError{Op: "Create", Err: errors.New("pq: too many connections")}})

	rec := identify(t, e, `{"email":"doc@brown.io"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "too many connections")
}

func TestGetContact(t *testing.T) {
	resolver, _ := newResolver()
	e := newServer(resolver)

	require.Equal(t, http.StatusOK, identify(t, e, `{"email":"a@x.io","phoneNumber":"1"}`).Code)
	require.Equal(t, http.StatusOK, identify(t, e, `{"email":"b@x.io","phoneNumber":"1"}`).Code)

	tests := []struct {
		name string
		path string
		code int
	}{
		{name: "primary", path: "/contacts/1", code: http.StatusOK},
		{name: "secondary resolves to its primary", path: "/contacts/2", code: http.StatusOK},
		{name: "unknown", path: "/contacts/99", code: http.StatusNotFound},
		{name: "not a number", path: "/contacts/abc", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				view := decodeView(t, rec)
				assert.Equal(t, int64(1), view.PrimaryContactID)
				assert.Equal(t, []int64{2}, view.SecondaryContactIDs)
			}
		})
	}
}
