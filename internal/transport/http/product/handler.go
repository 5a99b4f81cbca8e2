package product

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/presentation/http/response"
	service "github.com/Additional-Code/vendo/internal/service/product"
	settingservice "github.com/Additional-Code/vendo/internal/service/setting"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vendo/transport/http/product")

// Handler exposes the public storefront catalog and announcement endpoints.
type Handler struct {
	svc      *service.Service
	settings *settingservice.Service
}

// NewHandler constructs a product Handler.
func NewHandler(svc *service.Service, settings *settingservice.Service) *Handler {
	return &Handler{svc: svc, settings: settings}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/products", h.list)
	e.GET("/products/:id", h.getByID)
	e.GET("/announcement", h.announcement)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "products.list")
	defer span.End()

	catalog, err := h.svc.ListActive(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(catalog).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "products.getByID", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(product).Build()
}

func (h *Handler) announcement(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "products.announcement")
	defer span.End()

	content, err := h.settings.Announcement(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]string{"announcement": content}).Build()
}
