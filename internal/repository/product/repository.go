package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/vendo/repository/product")

// ErrNotFound is returned when a product is missing.
var ErrNotFound = errors.New("product not found")

// WithStock extends a product row with live inventory counts derived from its
// card pool.
type WithStock struct {
	entity.Product `bun:",extend"`

	Stock int `bun:"stock,scanonly"`
	Sold  int `bun:"sold,scanonly"`
}

// Repository encapsulates read/write access for products.
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

// Create persists a new product using the write connection.
func (r *Repository) Create(ctx context.Context, product *entity.Product) error {
	if product == nil {
		return errors.New("nil product")
	}
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Create", trace.WithAttributes(attribute.String("product.name", product.Name)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(product).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// Update overwrites the mutable columns of an existing product.
func (r *Repository) Update(ctx context.Context, product *entity.Product) error {
	if product == nil {
		return errors.New("nil product")
	}
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Update", trace.WithAttributes(attribute.Int64("product.id", product.ID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model(product).
		Column("name", "description", "price", "image", "category", "is_active", "sort_order", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a product; its card pool is cascade-deleted by the schema.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.Delete", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.Product)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches a product by primary key using the read replica.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetByID", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	product := new(entity.Product)
	err := r.reader.NewSelect().Model(product).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return product, nil
}

// List returns products together with unused (stock) and used (sold) card
// counts. activeOnly restricts the listing to visible storefront products.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]WithStock, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.List", trace.WithAttributes(attribute.Bool("active_only", activeOnly)))
	defer span.End()

	var rows []WithStock
	q := r.reader.NewSelect().Model(&rows).
		ColumnExpr("product.*").
		ColumnExpr("count(CASE WHEN card.id IS NOT NULL AND NOT card.is_used THEN 1 END) AS stock").
		ColumnExpr("count(CASE WHEN card.is_used THEN 1 END) AS sold").
		Join("LEFT JOIN cards AS card ON card.product_id = product.id").
		GroupExpr("product.id").
		OrderExpr("product.sort_order ASC, product.created_at DESC")
	if activeOnly {
		q = q.Where("product.is_active")
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// GetWithStock fetches one product with its inventory counts.
func (r *Repository) GetWithStock(ctx context.Context, id int64) (*WithStock, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetWithStock", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	row := new(WithStock)
	err := r.reader.NewSelect().Model(row).
		ColumnExpr("product.*").
		ColumnExpr("count(CASE WHEN card.id IS NOT NULL AND NOT card.is_used THEN 1 END) AS stock").
		ColumnExpr("count(CASE WHEN card.is_used THEN 1 END) AS sold").
		Join("LEFT JOIN cards AS card ON card.product_id = product.id").
		Where("product.id = ?", id).
		GroupExpr("product.id").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return row, nil
}
