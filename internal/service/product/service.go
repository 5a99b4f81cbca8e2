package product

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/cache"
	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/dto"
	"github.com/Additional-Code/vendo/internal/entity"
	cardrepo "github.com/Additional-Code/vendo/internal/repository/card"
	repo "github.com/Additional-Code/vendo/internal/repository/product"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/vendo/service/product")

const catalogCacheKey = "catalog:active"

// Service encapsulates the product catalog and its inventory pool.
type Service struct {
	repo     *repo.Repository
	cards    *cardrepo.Repository
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cards      *cardrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		cards:    p.Cards,
		cache:    p.Cache,
		cacheTTL: p.Config.Cache.DefaultTTL,
		logger:   p.Logger,
	}
}

// ListActive returns the storefront catalog, consulting cache when available.
// Stock counts may lag by at most the cache TTL.
func (s *Service) ListActive(ctx context.Context) ([]dto.ProductResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.ListActive")
	defer span.End()

	if cached, err := s.catalogFromCache(ctx); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("catalog cache read failed", zap.Error(err))
	}

	rows, err := s.repo.List(ctx, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load catalog", errorbank.WithCause(err))
	}
	catalog := toResponses(rows)

	if err := s.storeCatalogInCache(ctx, catalog); err != nil {
		s.logger.Warn("catalog cache write failed", zap.Error(err))
	}
	return catalog, nil
}

// List returns all products including inactive ones, for the admin panel.
func (s *Service) List(ctx context.Context) ([]dto.ProductResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.List")
	defer span.End()

	rows, err := s.repo.List(ctx, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load products", errorbank.WithCause(err))
	}
	return toResponses(rows), nil
}

// Get returns one product with live stock counts. Uncached so the buy page
// shows accurate availability.
func (s *Service) Get(ctx context.Context, id int64) (*dto.ProductResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Get", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	row, err := s.repo.GetWithStock(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("product not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}
	resp := toResponse(*row)
	return &resp, nil
}

// Input carries the admin-editable product fields.
type Input struct {
	Name        string
	Description string
	Price       string
	Image       string
	Category    string
	IsActive    bool
	SortOrder   int
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, in Input) (*dto.ProductResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Create", trace.WithAttributes(attribute.String("product.name", in.Name)))
	defer span.End()

	if in.Name == "" || in.Price == "" {
		return nil, errorbank.BadRequest("name and price are required")
	}

	now := time.Now().UTC()
	product := &entity.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Image:       in.Image,
		Category:    in.Category,
		IsActive:    in.IsActive,
		SortOrder:   in.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create product", errorbank.WithCause(err))
	}
	s.invalidateCatalog(ctx)

	resp := toResponse(repo.WithStock{Product: *product})
	return &resp, nil
}

// Update overwrites a product's editable fields.
func (s *Service) Update(ctx context.Context, id int64, in Input) error {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Update", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if in.Name == "" || in.Price == "" {
		return errorbank.BadRequest("name and price are required")
	}

	product := &entity.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Image:       in.Image,
		Category:    in.Category,
		IsActive:    in.IsActive,
		SortOrder:   in.SortOrder,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Update(ctx, product); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("product not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to update product", errorbank.WithCause(err))
	}
	s.invalidateCatalog(ctx)
	return nil
}

// Delete removes a product and, via the schema, its card pool.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ctx, span := serviceTracer.Start(ctx, "ProductService.Delete", trace.WithAttributes(attribute.Int64("product.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("product not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to delete product", errorbank.WithCause(err))
	}
	s.invalidateCatalog(ctx)
	return nil
}

// ImportCards bulk-imports inventory keys pasted as one key per line. Blank
// lines are skipped; keys are stored verbatim after trimming.
func (s *Service) ImportCards(ctx context.Context, productID int64, text string) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.ImportCards", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	if _, err := s.repo.GetByID(ctx, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, errorbank.NotFound("product not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return 0, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}

	var keys []string
	for _, line := range strings.Split(text, "\n") {
		if key := strings.TrimSpace(line); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return 0, errorbank.BadRequest("no keys supplied")
	}

	n, err := s.cards.BulkInsert(ctx, productID, keys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return 0, errorbank.Internal("failed to import keys", errorbank.WithCause(err))
	}
	s.invalidateCatalog(ctx)

	s.logger.Info("cards imported", zap.Int64("product_id", productID), zap.Int("count", n))
	return n, nil
}

// ListUnusedCards returns the keys currently available for sale.
func (s *Service) ListUnusedCards(ctx context.Context, productID int64) ([]entity.Card, error) {
	ctx, span := serviceTracer.Start(ctx, "ProductService.ListUnusedCards", trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	cards, err := s.cards.ListUnused(ctx, productID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load keys", errorbank.WithCause(err))
	}
	return cards, nil
}

func (s *Service) catalogFromCache(ctx context.Context) ([]dto.ProductResponse, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, catalogCacheKey)
	if err != nil {
		return nil, err
	}
	var catalog []dto.ProductResponse
	if err := json.Unmarshal(bytes, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (s *Service) storeCatalogInCache(ctx context.Context, catalog []dto.ProductResponse) error {
	if s.cache == nil {
		return nil
	}
	bytes, err := json.Marshal(catalog)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, catalogCacheKey, bytes, s.cacheTTL)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, catalogCacheKey); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func toResponses(rows []repo.WithStock) []dto.ProductResponse {
	out := make([]dto.ProductResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toResponse(row))
	}
	return out
}

func toResponse(row repo.WithStock) dto.ProductResponse {
	return dto.ProductResponse{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price,
		Image:       row.Image,
		Category:    row.Category,
		IsActive:    row.IsActive,
		SortOrder:   row.SortOrder,
		Stock:       row.Stock,
		Sold:        row.Sold,
		CreatedAt:   row.CreatedAt,
	}
}
