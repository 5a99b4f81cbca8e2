package fulfillment

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
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
)

const testSecret = "merchant-key"

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive and serialises
	// concurrent transactions the way a row lock would.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*entity.Product)(nil), (*entity.Card)(nil), (*entity.Order)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func newTestService(t *testing.T, db *bun.DB) *Service {
	t.Helper()

	conns := &database.Connections{Writer: db, Reader: db}
	cfg := config.Config{Gateway: config.Gateway{MerchantKey: testSecret}}
	return NewService(Params{
		Connections: conns,
		Orders:      orderrepo.NewRepository(conns),
		Cards:       cardrepo.NewRepository(conns),
		Config:      cfg,
		Logger:      zap.NewNop(),
	})
}

func seedProduct(t *testing.T, db *bun.DB, keys ...string) *entity.Product {
	t.Helper()

	ctx := context.Background()
	product := &entity.Product{Name: "Starter License", Price: "9.99", IsActive: true, CreatedAt: time.Now().UTC()}
	_, err := db.NewInsert().Model(product).Exec(ctx)
	require.NoError(t, err)

	for _, key := range keys {
		card := &entity.Card{ProductID: product.ID, CardKey: key, CreatedAt: time.Now().UTC()}
		_, err := db.NewInsert().Model(card).Exec(ctx)
		require.NoError(t, err)
	}
	return product
}

func seedOrder(t *testing.T, db *bun.DB, productID int64, orderNo string) *entity.Order {
	t.Helper()

	order := &entity.Order{
		OrderNo:     orderNo,
		ProductID:   productID,
		ProductName: "Starter License",
		Amount:      "9.99",
		Email:       "buyer@example.com",
		Status:      entity.OrderStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(order).Exec(context.Background())
	require.NoError(t, err)
	return order
}

func signedNotification(orderNo, tradeNo, status string) map[string]string {
	params := map[string]string{
		gateway.FieldOutTradeNo: orderNo,
		gateway.FieldTradeNo:    tradeNo,
		gateway.FieldTradeStat:  status,
		"money":                 "9.99",
	}
	params[gateway.FieldSign] = gateway.Sign(params, testSecret)
	params[gateway.FieldSignType] = "MD5"
	return params
}

func loadOrder(t *testing.T, db *bun.DB, orderNo string) *entity.Order {
	t.Helper()

	order := new(entity.Order)
	require.NoError(t, db.NewSelect().Model(order).Where("order_no = ?", orderNo).Scan(context.Background()))
	return order
}

func countUnusedCards(t *testing.T, db *bun.DB, productID int64) int {
	t.Helper()

	n, err := db.NewSelect().Model((*entity.Card)(nil)).
		Where("product_id = ?", productID).
		Where("NOT is_used").
		Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestHandleNotificationDeliversOrder(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db, "KEY-AAA")
	seedOrder(t, db, product.ID, "ORD-1")

	ack := svc.HandleNotification(context.Background(), signedNotification("ORD-1", "T-100", gateway.TradeSuccess))
	assert.Equal(t, AckSuccess, ack)

	order := loadOrder(t, db, "ORD-1")
	assert.Equal(t, entity.OrderStatusDelivered, order.Status)
	assert.Equal(t, "T-100", order.TradeNo)
	require.NotNil(t, order.CardKey)
	assert.Equal(t, "KEY-AAA", *order.CardKey)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.DeliveredAt)
	assert.Equal(t, 0, countUnusedCards(t, db, product.ID))
}

func TestHandleNotificationOutOfStock(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db) // empty pool
	seedOrder(t, db, product.ID, "ORD-1")

	ack := svc.HandleNotification(context.Background(), signedNotification("ORD-1", "T-100", gateway.TradeSuccess))
	assert.Equal(t, AckSuccess, ack)

	order := loadOrder(t, db, "ORD-1")
	assert.Equal(t, entity.OrderStatusPaid, order.Status)
	assert.Nil(t, order.CardKey)
	require.NotNil(t, order.PaidAt)
	assert.Nil(t, order.DeliveredAt)
}

func TestHandleNotificationReplayIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db, "KEY-AAA", "KEY-BBB")
	seedOrder(t, db, product.ID, "ORD-1")

	params := signedNotification("ORD-1", "T-100", gateway.TradeSuccess)
	assert.Equal(t, AckSuccess, svc.HandleNotification(context.Background(), params))
	assert.Equal(t, AckSuccess, svc.HandleNotification(context.Background(), params))

	order := loadOrder(t, db, "ORD-1")
	assert.Equal(t, entity.OrderStatusDelivered, order.Status)
	require.NotNil(t, order.CardKey)
	assert.Equal(t, "KEY-AAA", *order.CardKey)
	// The replay must not consume a second card.
	assert.Equal(t, 1, countUnusedCards(t, db, product.ID))
}

func TestHandleNotificationBadSignature(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db, "KEY-AAA")
	seedOrder(t, db, product.ID, "ORD-1")

	params := signedNotification("ORD-1", "T-100", gateway.TradeSuccess)
	params["money"] = "0.01"

	assert.Equal(t, AckFail, svc.HandleNotification(context.Background(), params))

	order := loadOrder(t, db, "ORD-1")
	assert.Equal(t, entity.OrderStatusPending, order.Status)
	assert.Nil(t, order.CardKey)
	assert.Equal(t, 1, countUnusedCards(t, db, product.ID))
}

func TestHandleNotificationNonSuccessStatus(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db, "KEY-AAA")
	seedOrder(t, db, product.ID, "ORD-1")

	ack := svc.HandleNotification(context.Background(), signedNotification("ORD-1", "T-100", "WAIT_BUYER_PAY"))
	assert.Equal(t, AckSuccess, ack)

	order := loadOrder(t, db, "ORD-1")
	assert.Equal(t, entity.OrderStatusPending, order.Status)
	assert.Equal(t, 1, countUnusedCards(t, db, product.ID))
}

func TestHandleNotificationUnknownOrder(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	ack := svc.HandleNotification(context.Background(), signedNotification("ORD-MISSING", "T-100", gateway.TradeSuccess))
	assert.Equal(t, AckSuccess, ack)
}

func TestHandleNotificationConcurrentOrders(t *testing.T) {
	const (
		orders = 4
		keys   = 2
	)

	db := newTestDB(t)
	svc := newTestService(t, db)
	product := seedProduct(t, db, "KEY-1", "KEY-2")
	for i := 0; i < orders; i++ {
		seedOrder(t, db, product.ID, fmt.Sprintf("ORD-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			orderNo := fmt.Sprintf("ORD-%d", i)
			assert.Equal(t, AckSuccess, svc.HandleNotification(context.Background(),
				signedNotification(orderNo, "T-"+orderNo, gateway.TradeSuccess)))
		}(i)
	}
	wg.Wait()

	var all []entity.Order
	require.NoError(t, db.NewSelect().Model(&all).Scan(context.Background()))
	require.Len(t, all, orders)

	seen := make(map[string]string)
	var delivered, paid int
	for _, order := range all {
		switch order.Status {
		case entity.OrderStatusDelivered:
			delivered++
			require.NotNil(t, order.CardKey)
			if prev, dup := seen[*order.CardKey]; dup {
				t.Fatalf("card %s delivered to both %s and %s", *order.CardKey, prev, order.OrderNo)
			}
			seen[*order.CardKey] = order.OrderNo
		case entity.OrderStatusPaid:
			paid++
			assert.Nil(t, order.CardKey)
		default:
			t.Fatalf("order %s left in unexpected status %s", order.OrderNo, order.Status)
		}
	}
	assert.Equal(t, keys, delivered, "every key in the pool is consumed exactly once")
	assert.Equal(t, orders-keys, paid)
	assert.Equal(t, 0, countUnusedCards(t, db, product.ID))
}
