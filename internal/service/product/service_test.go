package product

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/cache"
	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
	cardrepo "github.com/Additional-Code/vendo/internal/repository/card"
	productrepo "github.com/Additional-Code/vendo/internal/repository/product"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

func newTestService(t *testing.T) (*Service, *bun.DB, *miniredis.Miniredis) {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*entity.Product)(nil), (*entity.Card)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	srv := miniredis.RunT(t)
	cfg := config.Config{Cache: config.Cache{
		Enabled:    true,
		Driver:     "redis",
		DefaultTTL: time.Minute,
		Redis:      config.Redis{Addr: srv.Addr()},
	}}

	lc := fxtest.NewLifecycle(t)
	store, err := cache.NewStore(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)

	conns := &database.Connections{Writer: db, Reader: db}
	svc := NewService(Params{
		Repository: productrepo.NewRepository(conns),
		Cards:      cardrepo.NewRepository(conns),
		Cache:      store,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	return svc, db, srv
}

func TestCatalogReportsStockAndSold(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{Name: "Starter License", Price: "9.99", IsActive: true})
	require.NoError(t, err)

	n, err := svc.ImportCards(ctx, created.ID, "KEY-1\nKEY-2\n\n  KEY-3  \n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Consume one key so sold and stock diverge.
	_, err = cardrepo.NewRepository(&database.Connections{Writer: db, Reader: db}).
		ClaimUnused(ctx, db, created.ID, time.Now().UTC())
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
	assert.Equal(t, 1, got.Sold)
}

func TestListActiveHidesInactiveProducts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Input{Name: "Visible", Price: "1.00", IsActive: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Input{Name: "Hidden", Price: "1.00", IsActive: false})
	require.NoError(t, err)

	catalog, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "Visible", catalog[0].Name)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListActiveUsesCache(t *testing.T) {
	svc, db, srv := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{Name: "Starter License", Price: "9.99", IsActive: true})
	require.NoError(t, err)

	first, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, srv.Exists("catalog:active"))

	// A write bypassing the service is not visible until the cache expires.
	_, err = db.NewUpdate().Model((*entity.Product)(nil)).
		Set("name = ?", "Renamed").
		Where("id = ?", created.ID).
		Exec(ctx)
	require.NoError(t, err)

	cached, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Starter License", cached[0].Name)

	srv.FastForward(2 * time.Minute)

	fresh, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "Renamed", fresh[0].Name)
}

func TestUpdateInvalidatesCatalogCache(t *testing.T) {
	svc, _, srv := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{Name: "Starter License", Price: "9.99", IsActive: true})
	require.NoError(t, err)

	_, err = svc.ListActive(ctx)
	require.NoError(t, err)
	require.True(t, srv.Exists("catalog:active"))

	require.NoError(t, svc.Update(ctx, created.ID, Input{Name: "Pro License", Price: "19.99", IsActive: true}))
	assert.False(t, srv.Exists("catalog:active"))

	catalog, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "Pro License", catalog[0].Name)
}

func TestImportCardsValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportCards(ctx, 99, "KEY-1")
	assertKind(t, err, errorbank.KindNotFound)

	created, err := svc.Create(ctx, Input{Name: "Starter License", Price: "9.99", IsActive: true})
	require.NoError(t, err)

	_, err = svc.ImportCards(ctx, created.ID, "\n  \n")
	assertKind(t, err, errorbank.KindBadRequest)
}

func TestCreateRequiresNameAndPrice(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), Input{Name: "", Price: "9.99"})
	assertKind(t, err, errorbank.KindBadRequest)
	_, err = svc.Create(context.Background(), Input{Name: "No Price"})
	assertKind(t, err, errorbank.KindBadRequest)
}

func TestDeleteMissingProduct(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Delete(context.Background(), 12345)
	assertKind(t, err, errorbank.KindNotFound)
}

func assertKind(t *testing.T, err error, kind errorbank.Kind) {
	t.Helper()

	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, kind, appErr.Kind())
}
