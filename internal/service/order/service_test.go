package order

import (
	"context"
	"database/sql"
	"net/url"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/config"
	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
	"github.com/Additional-Code/vendo/internal/gateway"
	cardrepo "github.com/Additional-Code/vendo/internal/repository/card"
	orderrepo "github.com/Additional-Code/vendo/internal/repository/order"
	productrepo "github.com/Additional-Code/vendo/internal/repository/product"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

const testSecret = "merchant-key"

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*entity.Product)(nil), (*entity.Card)(nil), (*entity.Order)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	conns := &database.Connections{Writer: db, Reader: db}
	cfg := config.Config{Gateway: config.Gateway{
		MerchantID:  "1001",
		MerchantKey: testSecret,
		Endpoint:    "https://pay.example.com/submit.php",
		NotifyURL:   "https://shop.example.com/api/notify",
		ReturnURL:   "https://shop.example.com/orders",
	}}
	svc := NewService(Params{
		Connections: conns,
		Orders:      orderrepo.NewRepository(conns),
		Products:    productrepo.NewRepository(conns),
		Cards:       cardrepo.NewRepository(conns),
		Config:      cfg,
		Logger:      zap.NewNop(),
	})
	return svc, db
}

func seedProduct(t *testing.T, db *bun.DB, active bool) *entity.Product {
	t.Helper()

	product := &entity.Product{Name: "Starter License", Price: "9.99", IsActive: active, CreatedAt: time.Now().UTC()}
	_, err := db.NewInsert().Model(product).Exec(context.Background())
	require.NoError(t, err)
	return product
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	svc, db := newTestService(t)
	product := seedProduct(t, db, true)

	resp, err := svc.Checkout(context.Background(), product.ID, "buyer@example.com", Buyer{UserID: "u-1", Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.OrderNo)

	order := new(entity.Order)
	require.NoError(t, db.NewSelect().Model(order).Where("order_no = ?", resp.OrderNo).Scan(context.Background()))
	assert.Equal(t, entity.OrderStatusPending, order.Status)
	assert.Equal(t, product.ID, order.ProductID)
	assert.Equal(t, "9.99", order.Amount)
	assert.Equal(t, "buyer@example.com", order.Email)
	assert.Equal(t, "u-1", order.UserID)
	assert.Nil(t, order.CardKey)

	parsed, err := url.Parse(resp.PayURL)
	require.NoError(t, err)
	values := parsed.Query()
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	assert.Equal(t, resp.OrderNo, params[gateway.FieldOutTradeNo])
	assert.Equal(t, "9.99", params["money"])
	assert.True(t, gateway.Verify(params, testSecret))
}

func TestCheckoutRejectsInactiveProduct(t *testing.T) {
	svc, db := newTestService(t)
	product := seedProduct(t, db, false)

	_, err := svc.Checkout(context.Background(), product.ID, "buyer@example.com", Buyer{})
	assertKind(t, err, errorbank.KindUnprocessableEntity)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Checkout(context.Background(), 99, "buyer@example.com", Buyer{})
	assertKind(t, err, errorbank.KindNotFound)
}

func TestRefundReleasesCard(t *testing.T) {
	svc, db := newTestService(t)
	product := seedProduct(t, db, true)

	ctx := context.Background()
	now := time.Now().UTC()
	used := now
	key := "KEY-AAA"
	card := &entity.Card{ProductID: product.ID, CardKey: key, IsUsed: true, UsedAt: &used, CreatedAt: now}
	_, err := db.NewInsert().Model(card).Exec(ctx)
	require.NoError(t, err)

	order := &entity.Order{
		OrderNo:     "ORD-1",
		ProductID:   product.ID,
		Amount:      "9.99",
		Status:      entity.OrderStatusDelivered,
		CardKey:     &key,
		PaidAt:      &now,
		DeliveredAt: &now,
		CreatedAt:   now,
	}
	_, err = db.NewInsert().Model(order).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Refund(ctx, "ORD-1"))

	refunded := new(entity.Order)
	require.NoError(t, db.NewSelect().Model(refunded).Where("order_no = ?", "ORD-1").Scan(ctx))
	assert.Equal(t, entity.OrderStatusRefunded, refunded.Status)
	assert.Nil(t, refunded.CardKey)

	freed := new(entity.Card)
	require.NoError(t, db.NewSelect().Model(freed).Where("card_key = ?", key).Scan(ctx))
	assert.False(t, freed.IsUsed)
	assert.Nil(t, freed.UsedAt)

	// A second refund finds the order already refunded.
	err = svc.Refund(ctx, "ORD-1")
	assertKind(t, err, errorbank.KindUnprocessableEntity)
}

func TestRefundPendingOrderRejected(t *testing.T) {
	svc, db := newTestService(t)
	product := seedProduct(t, db, true)

	order := &entity.Order{OrderNo: "ORD-1", ProductID: product.ID, Status: entity.OrderStatusPending, CreatedAt: time.Now().UTC()}
	_, err := db.NewInsert().Model(order).Exec(context.Background())
	require.NoError(t, err)

	err = svc.Refund(context.Background(), "ORD-1")
	assertKind(t, err, errorbank.KindUnprocessableEntity)
}

func TestDashboardStats(t *testing.T) {
	svc, db := newTestService(t)
	product := seedProduct(t, db, true)

	ctx := context.Background()
	now := time.Now().UTC()
	old := now.AddDate(0, -2, 0)
	key := "KEY"

	for i, paidAt := range []time.Time{now, old} {
		order := &entity.Order{
			OrderNo:     []string{"ORD-TODAY", "ORD-OLD"}[i],
			ProductID:   product.ID,
			Amount:      "10.00",
			Status:      entity.OrderStatusDelivered,
			CardKey:     &key,
			PaidAt:      &paidAt,
			DeliveredAt: &paidAt,
			CreatedAt:   paidAt,
		}
		_, err := db.NewInsert().Model(order).Exec(ctx)
		require.NoError(t, err)
	}
	// Pending orders never count towards revenue.
	pending := &entity.Order{OrderNo: "ORD-PENDING", ProductID: product.ID, Amount: "10.00", Status: entity.OrderStatusPending, CreatedAt: now}
	_, err := db.NewInsert().Model(pending).Exec(ctx)
	require.NoError(t, err)

	stats, err := svc.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total.Count)
	assert.InDelta(t, 20.0, stats.Total.Revenue, 0.001)
	assert.Equal(t, 1, stats.Today.Count)
	assert.InDelta(t, 10.0, stats.Today.Revenue, 0.001)
	assert.Equal(t, 1, stats.Week.Count)
	assert.Equal(t, 1, stats.Month.Count)
}

func assertKind(t *testing.T, err error, kind errorbank.Kind) {
	t.Helper()

	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, kind, appErr.Kind())
}
