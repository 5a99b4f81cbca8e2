package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
	"github.com/Additional-Code/vendo/internal/gateway"
	"github.com/Additional-Code/vendo/internal/messaging"
	cardrepo "github.com/Additional-Code/vendo/internal/repository/card"
	orderrepo "github.com/Additional-Code/vendo/internal/repository/order"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/vendo/service/fulfillment")

// Ack is the plain-text acknowledgment the gateway expects. Anything other
// than AckSuccess makes the gateway retry the notification later.
type Ack string

const (
	AckSuccess Ack = "success"
	AckFail    Ack = "fail"
	AckError   Ack = "error"
)

// errAlreadyHandled aborts the fulfillment transaction when a concurrent
// notification delivered the order first; the rollback releases the claimed
// card.
var errAlreadyHandled = errors.New("order already handled")

// Service coordinates order fulfillment in response to asynchronous payment
// notifications: verify the signature, load the order, claim one unused card
// and commit the delivery atomically, or park the order as paid when the
// pool is empty.
type Service struct {
	writer    *bun.DB
	orders    *orderrepo.Repository
	cards     *cardrepo.Repository
	secret    string
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
}

type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Connections *database.Connections
	Orders      *orderrepo.Repository
	Cards       *cardrepo.Repository
	Config      config.Config
	Logger      *zap.Logger
	Publisher   messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		writer:    p.Connections.Writer,
		orders:    p.Orders,
		cards:     p.Cards,
		secret:    p.Config.Gateway.MerchantKey,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
	}
}

// HandleNotification processes one inbound gateway notification end to end
// and returns the acknowledgment to send back. It never returns an error;
// faults are logged and surfaced as AckError so the gateway retries.
func (s *Service) HandleNotification(ctx context.Context, params map[string]string) Ack {
	ctx, span := serviceTracer.Start(ctx, "Fulfillment.HandleNotification", trace.WithAttributes(
		attribute.String("order.no", params[gateway.FieldOutTradeNo]),
		attribute.String("trade.status", params[gateway.FieldTradeStat]),
	))
	defer span.End()

	if !gateway.Verify(params, s.secret) {
		s.logger.Warn("notification signature mismatch",
			zap.String("order_no", params[gateway.FieldOutTradeNo]))
		span.SetStatus(codes.Error, "bad signature")
		return AckFail
	}

	// Any trade status other than the success sentinel is acknowledged
	// without touching state, so the gateway stops retrying.
	if params[gateway.FieldTradeStat] != gateway.TradeSuccess {
		return AckSuccess
	}

	orderNo := params[gateway.FieldOutTradeNo]
	tradeNo := params[gateway.FieldTradeNo]

	ord, err := s.orders.GetByOrderNoOn(ctx, s.writer, orderNo)
	if errors.Is(err, orderrepo.ErrNotFound) {
		// Nothing to fulfill; acknowledge so the gateway stops retrying.
		return AckSuccess
	}
	if err != nil {
		s.logger.Error("order lookup failed", zap.String("order_no", orderNo), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return AckError
	}
	if ord.Status != entity.OrderStatusPending {
		// Duplicate delivery of an already-processed notification.
		return AckSuccess
	}

	now := time.Now().UTC()
	var delivered *entity.Card

	err = s.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		card, err := s.cards.ClaimUnused(ctx, tx, ord.ProductID, now)
		if errors.Is(err, cardrepo.ErrNoStock) {
			// Paid but out of stock: park the order for manual restock.
			// A false CAS here means a concurrent notification won; either
			// way the order is no longer pending.
			_, err := s.orders.MarkPaid(ctx, tx, orderNo, tradeNo, now)
			return err
		}
		if err != nil {
			return err
		}

		ok, err := s.orders.MarkDelivered(ctx, tx, orderNo, tradeNo, card.CardKey, now)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyHandled
		}
		delivered = card
		return nil
	})
	if errors.Is(err, errAlreadyHandled) {
		return AckSuccess
	}
	if err != nil {
		s.logger.Error("fulfillment transaction failed", zap.String("order_no", orderNo), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		return AckError
	}

	if delivered != nil {
		s.logger.Info("order delivered",
			zap.String("order_no", orderNo),
			zap.Int64("product_id", ord.ProductID),
			zap.Int64("card_id", delivered.ID))
		s.publishOrderDelivered(ctx, ord, tradeNo, now)
	} else {
		s.logger.Warn("order paid without stock",
			zap.String("order_no", orderNo),
			zap.Int64("product_id", ord.ProductID))
	}

	return AckSuccess
}

// OrderDeliveredEvent is emitted after a fulfillment commits. The card key is
// deliberately absent; consumers read delivery details from the store.
type OrderDeliveredEvent struct {
	OrderNo     string    `json:"order_no"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	TradeNo     string    `json:"trade_no"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (s *Service) publishOrderDelivered(ctx context.Context, ord *entity.Order, tradeNo string, at time.Time) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := OrderDeliveredEvent{
		OrderNo:     ord.OrderNo,
		ProductID:   ord.ProductID,
		ProductName: ord.ProductName,
		TradeNo:     tradeNo,
		DeliveredAt: at,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order delivered", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%s", ord.OrderNo)), payload); err != nil {
		s.logger.Error("publish order delivered", zap.Error(err))
	}
}
