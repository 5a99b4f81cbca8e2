package admin

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/presentation/http/response"
	orderservice "github.com/Additional-Code/vendo/internal/service/order"
	productservice "github.com/Additional-Code/vendo/internal/service/product"
	settingservice "github.com/Additional-Code/vendo/internal/service/setting"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vendo/transport/http/admin")

// TokenHeader carries the shared admin secret on every admin request.
const TokenHeader = "X-Admin-Token"

// Handler exposes the admin panel API: product CRUD, inventory import,
// dashboard stats, announcement management and refunds.
type Handler struct {
	products *productservice.Service
	orders   *orderservice.Service
	settings *settingservice.Service
	token    string
}

// NewHandler constructs an admin Handler.
func NewHandler(products *productservice.Service, orders *orderservice.Service, settings *settingservice.Service, cfg config.Config) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
		settings: settings,
		token:    cfg.Admin.Token,
	}
}

// Register routes with provided Echo instance. All admin routes sit behind
// the token guard.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/admin", h.requireToken)
	g.GET("/products", h.listProducts)
	g.POST("/products", h.createProduct)
	g.PUT("/products/:id", h.updateProduct)
	g.DELETE("/products/:id", h.deleteProduct)
	g.GET("/products/:id/cards", h.listCards)
	g.POST("/products/:id/cards", h.importCards)
	g.GET("/stats", h.stats)
	g.PUT("/announcement", h.setAnnouncement)
	g.POST("/orders/:no/refund", h.refund)
}

// requireToken rejects requests whose header token does not match the
// configured secret. An unset token disables the whole admin API.
func (h *Handler) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		supplied := c.Request().Header.Get(TokenHeader)
		if h.token == "" || supplied == "" ||
			subtle.ConstantTimeCompare([]byte(supplied), []byte(h.token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin token")
		}
		return next(c)
	}
}

type productPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	IsActive    bool   `json:"is_active"`
	SortOrder   int    `json:"sort_order"`
}

func (p productPayload) toInput() productservice.Input {
	return productservice.Input{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Image:       p.Image,
		Category:    p.Category,
		IsActive:    p.IsActive,
		SortOrder:   p.SortOrder,
	}
}

func (h *Handler) listProducts(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.products.list")
	defer span.End()

	products, err := h.products.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(products).Build()
}

func (h *Handler) createProduct(c echo.Context) error {
	b := response.New(c)

	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.products.create", trace.WithAttributes(attribute.String("product.name", payload.Name)))
	defer span.End()

	product, err := h.products.Create(ctx, payload.toInput())
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(product).Build()
}

func (h *Handler) updateProduct(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.products.update", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if err := h.products.Update(ctx, id, payload.toInput()); err != nil {
		return b.WithError(err).Build()
	}
	return b.Build()
}

func (h *Handler) deleteProduct(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.products.delete", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if err := h.products.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.Build()
}

func (h *Handler) listCards(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.cards.list", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	cards, err := h.products.ListUnusedCards(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(cards).Build()
}

func (h *Handler) importCards(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}
	var payload struct {
		Cards string `json:"cards"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.cards.import", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	n, err := h.products.ImportCards(ctx, id, payload.Cards)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(map[string]int{"imported": n}).Build()
}

func (h *Handler) stats(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.stats")
	defer span.End()

	stats, err := h.orders.DashboardStats(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(stats).Build()
}

func (h *Handler) setAnnouncement(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.announcement.set")
	defer span.End()

	if err := h.settings.SetAnnouncement(ctx, payload.Content); err != nil {
		return b.WithError(err).Build()
	}
	return b.Build()
}

func (h *Handler) refund(c echo.Context) error {
	b := response.New(c)

	orderNo := c.Param("no")
	if orderNo == "" {
		return b.WithError(errorbank.BadRequest("order number is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "admin.orders.refund", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	if err := h.orders.Refund(ctx, orderNo); err != nil {
		return b.WithError(err).Build()
	}
	return b.Build()
}
