package review

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/presentation/http/response"
	service "github.com/Additional-Code/vendo/internal/service/review"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vendo/transport/http/review")

// Handler exposes review listing, eligibility and submission for a product.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a review Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/products/:id/reviews")
	g.GET("", h.list)
	g.GET("/eligibility", h.eligibility)
	g.POST("", h.submit)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid product id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "reviews.list", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	reviews, err := h.svc.ListByProduct(ctx, productID)
	if err != nil {
		return b.WithError(err).Build()
	}
	rating, err := h.svc.Rating(ctx, productID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(reviews).WithMeta("rating", rating).Build()
}

func (h *Handler) eligibility(c echo.Context) error {
	b := response.New(c)

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid product id", errorbank.WithCause(err))).Build()
	}
	buyer := service.Buyer{
		UserID:   c.QueryParam("user_id"),
		Username: c.QueryParam("username"),
	}
	if buyer.UserID == "" && buyer.Username == "" {
		return b.WithError(errorbank.BadRequest("user_id or username is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "reviews.eligibility", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	eligibility, err := h.svc.Eligibility(ctx, buyer, productID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(eligibility).Build()
}

func (h *Handler) submit(c echo.Context) error {
	b := response.New(c)

	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid product id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		OrderNo  string `json:"order_no"`
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Rating   int    `json:"rating"`
		Comment  string `json:"comment"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.OrderNo == "" {
		return b.WithError(errorbank.BadRequest("order_no is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "reviews.submit", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.String("order.no", payload.OrderNo),
	))
	defer span.End()

	review, err := h.svc.Submit(ctx, service.Buyer{UserID: payload.UserID, Username: payload.Username},
		productID, payload.OrderNo, payload.Rating, payload.Comment)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(review).Build()
}
