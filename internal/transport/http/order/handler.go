package order

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/presentation/http/response"
	service "github.com/Additional-Code/vendo/internal/service/order"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vendo/transport/http/order")

// Handler exposes checkout and the buyer-facing order status page.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.checkout)
	g.GET("/:no", h.getByNo)
}

func (h *Handler) checkout(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		ProductID int64  `json:"product_id"`
		Email     string `json:"email"`
		UserID    string `json:"user_id"`
		Username  string `json:"username"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.ProductID == 0 || payload.Email == "" {
		return b.WithError(errorbank.BadRequest("product_id and email are required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.checkout", trace.WithAttributes(attribute.Int64("product.id", payload.ProductID)))
	defer span.End()

	checkout, err := h.svc.Checkout(ctx, payload.ProductID, payload.Email, service.Buyer{
		UserID:   payload.UserID,
		Username: payload.Username,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(checkout).Build()
}

func (h *Handler) getByNo(c echo.Context) error {
	b := response.New(c)

	orderNo := c.Param("no")
	if orderNo == "" {
		return b.WithError(errorbank.BadRequest("order number is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByNo", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	order, err := h.svc.Get(ctx, orderNo)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(order).Build()
}
