package contact

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Resolver is the part of identity.Resolver the routes need
type Resolver interface {
	Resolve(ctx context.Context, fragment models.Fragment) (*identity.Resolution, error)
	ClusterOf(ctx context.Context, id int64) (*identity.Cluster, error)
}

// IdentifyRequest is the POST /identify body. Null and empty values mean absent.
type IdentifyRequest struct {
	Email       *string `json:"email" validate:"omitempty,email,max=320"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=32"`
}

type Handler struct {
	resolver Resolver
	timeout  time.Duration
}

// NewHandler creates the contact routes. A zero timeout leaves the request context alone.
func NewHandler(resolver Resolver, timeout time.Duration) *Handler {
	return &Handler{
		resolver: resolver,
		timeout:  timeout,
	}
}

// Register registers contact routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/identify", h.Identify)
	g.GET("/contacts/:id", h.GetContact)
}

// Identify resolves a fragment and returns the consolidated contact
func (h *Handler) Identify(c echo.Context) error {
	var req IdentifyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	fragment := models.Fragment{Email: req.Email, PhoneNumber: req.PhoneNumber}.Normalize()
	if fragment.IsEmpty() {
		return httperror.NewHTTPError(http.StatusBadRequest, "email or phoneNumber is required")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.resolver.Resolve(ctx, fragment)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: res.View()})
}

// GetContact returns the consolidated contact that contact :id belongs to
func (h *Handler) GetContact(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid id: must be a positive integer")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	cluster, err := h.resolver.ClusterOf(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.IdentifyResponse{Contact: cluster.View()})
}

func (h *Handler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if h.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.timeout)
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	fe := verrs[0]
	field := fe.StructField()
	switch field {
	case "Email":
		field = "email"
	case "PhoneNumber":
		field = "phoneNumber"
	}
	return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: failed '%s' validation", field, fe.Tag())
}
