package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/vendo/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Repository encapsulates read/write access for orders. Orders are an
// append-only audit trail: rows are created at checkout and only ever move
// forward through their status lifecycle, never deleted.
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

// Create persists a new pending order using the write connection.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.no", order.OrderNo)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByOrderNo fetches an order by its merchant order number using the read
// replica when available.
func (r *Repository) GetByOrderNo(ctx context.Context, orderNo string) (*entity.Order, error) {
	return r.getByOrderNo(ctx, r.reader, orderNo)
}

// GetByOrderNoOn fetches an order through the supplied connection. Fulfillment
// reads through the writer so a freshly created order is never missed due to
// replica lag.
func (r *Repository) GetByOrderNoOn(ctx context.Context, idb bun.IDB, orderNo string) (*entity.Order, error) {
	return r.getByOrderNo(ctx, idb, orderNo)
}

func (r *Repository) getByOrderNo(ctx context.Context, idb bun.IDB, orderNo string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByOrderNo", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	order := new(entity.Order)
	err := idb.NewSelect().Model(order).Where("order_no = ?", orderNo).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// MarkDelivered transitions a pending order to delivered, recording the
// gateway trade number and the consumed card key. The update is guarded on
// the order still being pending; false means another fulfillment got there
// first and nothing was changed.
func (r *Repository) MarkDelivered(ctx context.Context, idb bun.IDB, orderNo, tradeNo, cardKey string, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkDelivered", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	res, err := idb.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusDelivered).
		Set("trade_no = ?", tradeNo).
		Set("card_key = ?", cardKey).
		Set("paid_at = ?", at).
		Set("delivered_at = ?", at).
		Set("updated_at = ?", at).
		Where("order_no = ?", orderNo).
		Where("status = ?", entity.OrderStatusPending).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkPaid transitions a pending order to paid when payment arrived but no
// stock was available. The card key stays null until an admin restocks and
// delivers manually.
func (r *Repository) MarkPaid(ctx context.Context, idb bun.IDB, orderNo, tradeNo string, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkPaid", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	res, err := idb.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusPaid).
		Set("trade_no = ?", tradeNo).
		Set("paid_at = ?", at).
		Set("updated_at = ?", at).
		Where("order_no = ?", orderNo).
		Where("status = ?", entity.OrderStatusPending).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkRefunded transitions a paid or delivered order to refunded and detaches
// its card key. The status guard makes the refund mutually exclusive with a
// late duplicate delivery notification racing on the same order.
func (r *Repository) MarkRefunded(ctx context.Context, idb bun.IDB, orderNo string, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkRefunded", trace.WithAttributes(attribute.String("order.no", orderNo)))
	defer span.End()

	res, err := idb.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusRefunded).
		Set("card_key = NULL").
		Set("updated_at = ?", at).
		Where("order_no = ?", orderNo).
		Where("status IN (?)", bun.In([]string{entity.OrderStatusPaid, entity.OrderStatusDelivered})).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListDelivered returns all delivered orders, used for dashboard revenue
// aggregation.
func (r *Repository) ListDelivered(ctx context.Context) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListDelivered")
	defer span.End()

	var orders []entity.Order
	err := r.reader.NewSelect().Model(&orders).
		Where("status = ?", entity.OrderStatusDelivered).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// ListDeliveredByUserID returns a buyer's delivered orders for one product,
// oldest first.
func (r *Repository) ListDeliveredByUserID(ctx context.Context, productID int64, userID string) ([]entity.Order, error) {
	return r.listDelivered(ctx, productID, "user_id", userID)
}

// ListDeliveredByUsername matches by display name instead of user id, to
// tolerate orders placed before the buyer had an account.
func (r *Repository) ListDeliveredByUsername(ctx context.Context, productID int64, username string) ([]entity.Order, error) {
	return r.listDelivered(ctx, productID, "username", username)
}

func (r *Repository) listDelivered(ctx context.Context, productID int64, column, value string) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListDeliveredForBuyer", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.String("match", column),
	))
	defer span.End()

	var orders []entity.Order
	err := r.reader.NewSelect().Model(&orders).
		Where("product_id = ?", productID).
		Where("? = ?", bun.Ident(column), value).
		Where("status = ?", entity.OrderStatusDelivered).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}
