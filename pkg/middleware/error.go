package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// DomainError converts resolver and store errors into HTTP errors. Internal
// details never reach the response body.
func DomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case httperror.IsHTTPError(err):
		return err
	case errors.Is(err, identity.ErrInvalidFragment):
		return httperror.NewHTTPError(http.StatusBadRequest, identity.ErrInvalidFragment.Error())
	case errors.Is(err, models.ErrContactNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, "contact not found")
	case errors.Is(err, identity.ErrLockUnavailable):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "contact is being updated, retry shortly")
	default:
		return httperror.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		} else {
			mapped := DomainError(err)
			httperr := httperror.ToHTTPError(mapped)
			code = httperror.GetStatusCode(mapped)
			message = httperr.Error()
			if httperr.Meta != nil {
				meta = httperr.Meta
			}
		}

		log := logger.WithContext(ctx).WithError(err).WithField("status", code)
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Warn("api is returning an error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
