package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Catalog seeds example products with a handful of unused keys each, if the
// products are missing.
func (s *Seeder) Catalog(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []entity.Product{
		{Name: "Starter License", Description: "Single-seat license key", Price: "9.99", Category: "licenses", IsActive: true, SortOrder: 1, CreatedAt: now, UpdatedAt: now},
		{Name: "Pro License", Description: "Five-seat license key", Price: "39.99", Category: "licenses", IsActive: true, SortOrder: 2, CreatedAt: now, UpdatedAt: now},
	}

	for i := range samples {
		product := samples[i]
		exists, err := s.db.NewSelect().Model((*entity.Product)(nil)).
			Where("name = ?", product.Name).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.NewInsert().Model(&product).Exec(ctx); err != nil {
			return err
		}

		cards := make([]entity.Card, 0, 5)
		for n := 1; n <= 5; n++ {
			cards = append(cards, entity.Card{
				ProductID: product.ID,
				CardKey:   fmt.Sprintf("DEMO-%d-%04d", product.ID, n),
				CreatedAt: now,
			})
		}
		if _, err := s.db.NewInsert().Model(&cards).Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded catalog", zap.Int("products", len(samples)))
	}
	return nil
}
