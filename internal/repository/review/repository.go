package review

import (
	"context"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/vendo/repository/review")

// ErrDuplicate is returned when an order already has a review. The reviews
// table carries a unique index on order_no, so the write itself is the final
// arbiter under concurrency.
var ErrDuplicate = errors.New("order already reviewed")

// Repository encapsulates read/write access for product reviews.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a review, mapping a unique-index violation to ErrDuplicate.
func (r *Repository) Create(ctx context.Context, review *entity.Review) error {
	if review == nil {
		return errors.New("nil review")
	}
	ctx, span := repoTracer.Start(ctx, "ReviewRepository.Create", trace.WithAttributes(attribute.String("order.no", review.OrderNo)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(review).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// ExistsForOrder reports whether the order already has a review.
func (r *Repository) ExistsForOrder(ctx context.Context, orderNo string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ReviewRepository.ExistsForOrder", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	exists, err := r.reader.NewSelect().Model((*entity.Review)(nil)).
		Where("order_no = ?", orderNo).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return false, err
	}
	return exists, nil
}

// ListByProduct returns a product's reviews, newest first.
func (r *Repository) ListByProduct(ctx context.Context, productID int64) ([]entity.Review, error) {
	ctx, span := repoTracer.Start(ctx, "ReviewRepository.ListByProduct", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	var reviews []entity.Review
	err := r.reader.NewSelect().Model(&reviews).
		Where("product_id = ?", productID).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return reviews, nil
}

// Rating aggregates the average score and review count for a product.
func (r *Repository) Rating(ctx context.Context, productID int64) (float64, int, error) {
	ctx, span := repoTracer.Start(ctx, "ReviewRepository.Rating", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	var row struct {
		Average float64 `bun:"average"`
		Count   int     `bun:"count"`
	}
	err := r.reader.NewSelect().Model((*entity.Review)(nil)).
		ColumnExpr("COALESCE(AVG(rating), 0) AS average").
		ColumnExpr("COUNT(*) AS count").
		Where("product_id = ?", productID).
		Scan(ctx, &row)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return 0, 0, err
	}
	return row.Average, row.Count, nil
}

// isUniqueViolation matches unique-index errors across the supported drivers
// (pgdriver SQLSTATE 23505, mysql 1062, sqlite constraint messages).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
