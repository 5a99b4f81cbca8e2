package fulfillment

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/messaging"
	fulfillmentsvc "github.com/Additional-Code/vendo/internal/service/fulfillment"
	"github.com/Additional-Code/vendo/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/vendo/worker/fulfillment")

// Module registers fulfillment-related worker handlers.
var Module = fx.Module("worker_fulfillment",
	fx.Provide(
		fx.Annotate(
			NewOrderDeliveredHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderDeliveredHandler sets up a worker handler consuming delivered-order
// events, the hook point for post-delivery side effects such as receipt
// emails.
func NewOrderDeliveredHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.fulfillment.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event fulfillmentsvc.OrderDeliveredEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order delivered", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		logger.Info("order delivered event processed",
			zap.String("order_no", event.OrderNo),
			zap.Int64("product_id", event.ProductID),
			zap.String("product_name", event.ProductName),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
