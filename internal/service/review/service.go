package review

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/dto"
	"github.com/Additional-Code/vendo/internal/entity"
	orderrepo "github.com/Additional-Code/vendo/internal/repository/order"
	repo "github.com/Additional-Code/vendo/internal/repository/review"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/vendo/service/review")

// Buyer identifies the reviewer. Matching falls back from user id to
// username, tolerating orders placed before an account existed.
type Buyer struct {
	UserID   string
	Username string
}

// Service encapsulates review eligibility and submission.
type Service struct {
	repo   *repo.Repository
	orders *orderrepo.Repository
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Orders     *orderrepo.Repository
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:   p.Repository,
		orders: p.Orders,
		logger: p.Logger,
	}
}

// Eligibility reports whether the buyer can review the product: they must
// own a delivered order for it that has no review yet. Delivered orders are
// matched by user id first; only when that yields nothing is the username
// fallback consulted. The first unreviewed order wins.
func (s *Service) Eligibility(ctx context.Context, buyer Buyer, productID int64) (*dto.ReviewEligibility, error) {
	ctx, span := serviceTracer.Start(ctx, "ReviewService.Eligibility", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	orders, err := s.deliveredOrders(ctx, buyer, productID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load orders", errorbank.WithCause(err))
	}

	for _, ord := range orders {
		reviewed, err := s.repo.ExistsForOrder(ctx, ord.OrderNo)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, errorbank.Internal("failed to check reviews", errorbank.WithCause(err))
		}
		if !reviewed {
			return &dto.ReviewEligibility{Eligible: true, OrderNo: ord.OrderNo}, nil
		}
	}
	return &dto.ReviewEligibility{Eligible: false}, nil
}

func (s *Service) deliveredOrders(ctx context.Context, buyer Buyer, productID int64) ([]entity.Order, error) {
	if buyer.UserID != "" {
		orders, err := s.orders.ListDeliveredByUserID(ctx, productID, buyer.UserID)
		if err != nil {
			return nil, err
		}
		if len(orders) > 0 {
			return orders, nil
		}
	}
	if buyer.Username != "" {
		return s.orders.ListDeliveredByUsername(ctx, productID, buyer.Username)
	}
	return nil, nil
}

// Submit records a review for a delivered order. An order can be reviewed at
// most once; the duplicate check here is backed by a unique index at write
// time, so a concurrent double submission still ends in a conflict.
func (s *Service) Submit(ctx context.Context, buyer Buyer, productID int64, orderNo string, rating int, comment string) (*dto.ReviewResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ReviewService.Submit", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.String("order.no", orderNo),
	))
	defer span.End()

	if rating < 1 || rating > 5 {
		return nil, errorbank.BadRequest("rating must be between 1 and 5")
	}

	ord, err := s.orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if ord.ProductID != productID {
		return nil, errorbank.BadRequest("order does not belong to this product")
	}
	if ord.Status != entity.OrderStatusDelivered {
		return nil, errorbank.Unprocessable("only delivered orders can be reviewed")
	}

	reviewed, err := s.repo.ExistsForOrder(ctx, orderNo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to check reviews", errorbank.WithCause(err))
	}
	if reviewed {
		return nil, errorbank.Conflict("order already reviewed")
	}

	username := buyer.Username
	if username == "" {
		username = "Anonymous"
	}
	review := &entity.Review{
		ProductID: productID,
		OrderNo:   orderNo,
		UserID:    buyer.UserID,
		Username:  username,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, review); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, errorbank.Conflict("order already reviewed")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create review", errorbank.WithCause(err))
	}

	s.logger.Info("review submitted",
		zap.Int64("product_id", productID),
		zap.String("order_no", orderNo),
		zap.Int("rating", rating))

	resp := toResponse(review)
	return &resp, nil
}

// ListByProduct returns a product's reviews for display.
func (s *Service) ListByProduct(ctx context.Context, productID int64) ([]dto.ReviewResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ReviewService.ListByProduct", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	reviews, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load reviews", errorbank.WithCause(err))
	}
	out := make([]dto.ReviewResponse, 0, len(reviews))
	for i := range reviews {
		out = append(out, toResponse(&reviews[i]))
	}
	return out, nil
}

// Rating returns the aggregated score for a product.
func (s *Service) Rating(ctx context.Context, productID int64) (*dto.ProductRating, error) {
	ctx, span := serviceTracer.Start(ctx, "ReviewService.Rating", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	average, count, err := s.repo.Rating(ctx, productID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load rating", errorbank.WithCause(err))
	}
	return &dto.ProductRating{Average: average, Count: count}, nil
}

func toResponse(review *entity.Review) dto.ReviewResponse {
	return dto.ReviewResponse{
		ID:        review.ID,
		ProductID: review.ProductID,
		Username:  review.Username,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
	}
}
