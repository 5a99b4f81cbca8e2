package card

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

var repoTracer = otel.Tracer("github.com/Additional-Code/vendo/repository/card")

// ErrNoStock is returned when no unused card exists for a product.
var ErrNoStock = errors.New("no unused card available")

// Claiming a card is a compare-and-set on the is_used flag. When a concurrent
// fulfillment wins the race for the selected card, a different card is picked
// and the claim retried up to this many times.
const maxClaimAttempts = 3

// Repository encapsulates access to the per-product pool of redemption keys.
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

// BulkInsert imports a batch of keys into a product's pool.
func (r *Repository) BulkInsert(ctx context.Context, productID int64, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, span := repoTracer.Start(ctx, "CardRepository.BulkInsert", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("card.count", len(keys)),
	))
	defer span.End()

	now := time.Now().UTC()
	cards := make([]entity.Card, 0, len(keys))
	for _, key := range keys {
		cards = append(cards, entity.Card{
			ProductID: productID,
			CardKey:   key,
			CreatedAt: now,
		})
	}

	if _, err := r.writer.NewInsert().Model(&cards).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return 0, err
	}
	return len(cards), nil
}

// ListUnused returns the unsold keys for a product, newest first.
func (r *Repository) ListUnused(ctx context.Context, productID int64) ([]entity.Card, error) {
	ctx, span := repoTracer.Start(ctx, "CardRepository.ListUnused", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	var cards []entity.Card
	err := r.reader.NewSelect().Model(&cards).
		Where("product_id = ?", productID).
		Where("NOT is_used").
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return cards, nil
}

// ClaimUnused atomically flips one unused card of the product to used. The
// flip is guarded on is_used still being false, so two transactions can never
// claim the same card; losing the race re-picks another card. Returns
// ErrNoStock when the pool is exhausted. idb is typically the fulfillment
// transaction.
func (r *Repository) ClaimUnused(ctx context.Context, idb bun.IDB, productID int64, at time.Time) (*entity.Card, error) {
	ctx, span := repoTracer.Start(ctx, "CardRepository.ClaimUnused", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		card := new(entity.Card)
		err := idb.NewSelect().Model(card).
			Where("product_id = ?", productID).
			Where("NOT is_used").
			OrderExpr("id ASC").
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoStock
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "select failed")
			return nil, err
		}

		res, err := idb.NewUpdate().Model((*entity.Card)(nil)).
			Set("is_used = ?", true).
			Set("used_at = ?", at).
			Where("id = ?", card.ID).
			Where("NOT is_used").
			Exec(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "claim failed")
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			card.IsUsed = true
			usedAt := at
			card.UsedAt = &usedAt
			return card, nil
		}
		// Lost the race for this card; pick another.
	}
	return nil, ErrNoStock
}

// ReleaseByKey returns a consumed key to the pool during a refund reversal.
func (r *Repository) ReleaseByKey(ctx context.Context, idb bun.IDB, productID int64, key string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "CardRepository.ReleaseByKey", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	res, err := idb.NewUpdate().Model((*entity.Card)(nil)).
		Set("is_used = ?", false).
		Set("used_at = NULL").
		Where("product_id = ?", productID).
		Where("card_key = ?", key).
		Where("is_used").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
