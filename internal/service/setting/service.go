package setting

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/cache"
	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/entity"
	repo "github.com/Additional-Code/vendo/internal/repository/setting"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/vendo/service/setting")

const announcementCacheKey = "settings:announcement"

// Service exposes storefront settings; currently just the announcement
// banner shown on the home page.
type Service struct {
	repo     *repo.Repository
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		cache:    p.Cache,
		cacheTTL: p.Config.Cache.DefaultTTL,
		logger:   p.Logger,
	}
}

// Announcement returns the current banner text; empty when never set.
func (s *Service) Announcement(ctx context.Context) (string, error) {
	ctx, span := serviceTracer.Start(ctx, "SettingService.Announcement")
	defer span.End()

	if s.cache != nil {
		if bytes, err := s.cache.Get(ctx, announcementCacheKey); err == nil {
			return string(bytes), nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("announcement cache read failed", zap.Error(err))
		}
	}

	value, err := s.repo.Get(ctx, entity.SettingAnnouncement)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return "", errorbank.Internal("failed to load announcement", errorbank.WithCause(err))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, announcementCacheKey, []byte(value), s.cacheTTL); err != nil {
			s.logger.Warn("announcement cache write failed", zap.Error(err))
		}
	}
	return value, nil
}

// SetAnnouncement replaces the banner text and drops the cached copy.
func (s *Service) SetAnnouncement(ctx context.Context, content string) error {
	ctx, span := serviceTracer.Start(ctx, "SettingService.SetAnnouncement")
	defer span.End()

	if err := s.repo.Upsert(ctx, entity.SettingAnnouncement, content); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to save announcement", errorbank.WithCause(err))
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, announcementCacheKey); err != nil {
			s.logger.Warn("announcement cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}
