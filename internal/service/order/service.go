package order

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/dto"
	"github.com/Additional-Code/vendo/internal/entity"
	"github.com/Additional-Code/vendo/internal/gateway"
	cardrepo "github.com/Additional-Code/vendo/internal/repository/card"
	orderrepo "github.com/Additional-Code/vendo/internal/repository/order"
	productrepo "github.com/Additional-Code/vendo/internal/repository/product"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/vendo/service/order")

// Buyer captures the optional identity attached to an order at checkout.
type Buyer struct {
	UserID   string
	Username string
}

// Service encapsulates checkout, order status, refunds and dashboard stats.
type Service struct {
	writer   *bun.DB
	orders   *orderrepo.Repository
	products *productrepo.Repository
	cards    *cardrepo.Repository
	gateway  config.Gateway
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Connections *database.Connections
	Orders      *orderrepo.Repository
	Products    *productrepo.Repository
	Cards       *cardrepo.Repository
	Config      config.Config
	Logger      *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		writer:   p.Connections.Writer,
		orders:   p.Orders,
		products: p.Products,
		cards:    p.Cards,
		gateway:  p.Config.Gateway,
		logger:   p.Logger,
	}
}

// Checkout creates a pending order for an active product and returns the
// signed gateway payment URL the buyer is redirected to.
func (s *Service) Checkout(ctx context.Context, productID int64, email string, buyer Buyer) (*dto.CheckoutResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Checkout", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, productrepo.ErrNotFound) {
			return nil, errorbank.NotFound("product not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}
	if !product.IsActive {
		return nil, errorbank.Unprocessable("product is not for sale")
	}

	now := time.Now().UTC()
	ord := &entity.Order{
		OrderNo:     uuid.NewString(),
		ProductID:   product.ID,
		ProductName: product.Name,
		Amount:      product.Price,
		Email:       email,
		Status:      entity.OrderStatusPending,
		UserID:      buyer.UserID,
		Username:    buyer.Username,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Create(ctx, ord); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	payURL := gateway.PayURL(s.gateway.Endpoint, s.gateway.MerchantID, s.gateway.MerchantKey, map[string]string{
		gateway.FieldOutTradeNo: ord.OrderNo,
		"name":                  product.Name,
		"money":                 product.Price,
		"notify_url":            s.gateway.NotifyURL,
		"return_url":            s.gateway.ReturnURL,
	})

	s.logger.Info("checkout created",
		zap.String("order_no", ord.OrderNo),
		zap.Int64("product_id", product.ID))

	return &dto.CheckoutResponse{OrderNo: ord.OrderNo, PayURL: payURL}, nil
}

// Get returns the order as shown on the buyer-facing status page. Delivery is
// observed here: once fulfilled the response carries the card key.
func (s *Service) Get(ctx context.Context, orderNo string) (*dto.OrderResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	ord, err := s.orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return ToResponse(ord), nil
}

// Refund reverses a paid or delivered order: the order moves to refunded and
// a consumed card, if any, returns to the pool. Both writes commit in one
// transaction; the status guard excludes a racing duplicate delivery.
func (s *Service) Refund(ctx context.Context, orderNo string) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Refund", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	ord, err := s.orders.GetByOrderNoOn(ctx, s.writer, orderNo)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if ord.Status != entity.OrderStatusPaid && ord.Status != entity.OrderStatusDelivered {
		return errorbank.Unprocessable("order is not refundable")
	}

	now := time.Now().UTC()
	err = s.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.orders.MarkRefunded(ctx, tx, orderNo, now)
		if err != nil {
			return err
		}
		if !ok {
			return errorbank.Conflict("order state changed; refund aborted")
		}
		if ord.CardKey != nil {
			if _, err := s.cards.ReleaseByKey(ctx, tx, ord.ProductID, *ord.CardKey); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *errorbank.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		return errorbank.Internal("refund failed", errorbank.WithCause(err))
	}

	s.logger.Info("order refunded", zap.String("order_no", orderNo))
	return nil
}

// DashboardStats aggregates delivered-order counts and revenue for the admin
// dashboard over today/week/month/total windows.
func (s *Service) DashboardStats(ctx context.Context) (*dto.DashboardStats, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.DashboardStats")
	defer span.End()

	orders, err := s.orders.ListDelivered(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load orders", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &dto.DashboardStats{}
	for _, ord := range orders {
		amount, err := strconv.ParseFloat(ord.Amount, 64)
		if err != nil {
			s.logger.Warn("unparseable order amount",
				zap.String("order_no", ord.OrderNo),
				zap.String("amount", ord.Amount))
			amount = 0
		}
		add(&stats.Total, amount)
		if ord.PaidAt == nil {
			continue
		}
		if !ord.PaidAt.Before(dayStart) {
			add(&stats.Today, amount)
		}
		if !ord.PaidAt.Before(weekStart) {
			add(&stats.Week, amount)
		}
		if !ord.PaidAt.Before(monthStart) {
			add(&stats.Month, amount)
		}
	}
	return stats, nil
}

func add(b *dto.StatsBucket, amount float64) {
	b.Count++
	b.Revenue += amount
}

// ToResponse maps an order entity onto its transport representation.
func ToResponse(ord *entity.Order) *dto.OrderResponse {
	return &dto.OrderResponse{
		OrderNo:     ord.OrderNo,
		ProductID:   ord.ProductID,
		ProductName: ord.ProductName,
		Amount:      ord.Amount,
		Email:       ord.Email,
		Status:      ord.Status,
		CardKey:     ord.CardKey,
		PaidAt:      ord.PaidAt,
		DeliveredAt: ord.DeliveredAt,
		CreatedAt:   ord.CreatedAt,
	}
}
