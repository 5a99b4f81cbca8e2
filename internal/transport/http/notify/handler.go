package notify

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	service "github.com/Additional-Code/vendo/internal/service/fulfillment"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vendo/transport/http/notify")

// Handler exposes the payment gateway webhook.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a notify Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/api/notify", h.notify)
}

// notify receives the gateway's form-encoded payment notification and answers
// with the plain-text sentinel its retry logic keys on.
func (h *Handler) notify(c echo.Context) error {
	ctx, span := httpTracer.Start(c.Request().Context(), "notify.receive")
	defer span.End()

	values, err := c.FormParams()
	if err != nil {
		return c.String(http.StatusBadRequest, string(service.AckFail))
	}
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}

	ack := h.svc.HandleNotification(ctx, params)
	switch ack {
	case service.AckFail:
		return c.String(http.StatusBadRequest, string(ack))
	case service.AckError:
		return c.String(http.StatusInternalServerError, string(ack))
	default:
		return c.String(http.StatusOK, string(ack))
	}
}
