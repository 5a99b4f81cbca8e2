package setting

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

var repoTracer = otel.Tracer("github.com/Additional-Code/vendo/repository/setting")

// ErrNotFound is returned when a setting key has no value.
var ErrNotFound = errors.New("setting not found")

// Repository encapsulates access to key/value storefront settings.
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

// Get returns the value stored under key.
func (r *Repository) Get(ctx context.Context, key string) (string, error) {
	ctx, span := repoTracer.Start(ctx, "SettingRepository.Get", trace.WithAttributes(attribute.String("setting.key", key)))
	defer span.End()

	setting := new(entity.Setting)
	err := r.reader.NewSelect().Model(setting).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return "", err
	}
	return setting.Value, nil
}

// Upsert stores value under key, replacing any previous value.
func (r *Repository) Upsert(ctx context.Context, key, value string) error {
	ctx, span := repoTracer.Start(ctx, "SettingRepository.Upsert", trace.WithAttributes(attribute.String("setting.key", key)))
	defer span.End()

	setting := &entity.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := r.writer.NewInsert().Model(setting).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
	}
	return err
}
