package review

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/Additional-Code/vendo/internal/database"
	"github.com/Additional-Code/vendo/internal/entity"
	orderrepo "github.com/Additional-Code/vendo/internal/repository/order"
	reviewrepo "github.com/Additional-Code/vendo/internal/repository/review"
	"github.com/Additional-Code/vendo/pkg/errorbank"
)

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*entity.Order)(nil), (*entity.Review)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	conns := &database.Connections{Writer: db, Reader: db}
	svc := NewService(Params{
		Repository: reviewrepo.NewRepository(conns),
		Orders:     orderrepo.NewRepository(conns),
		Logger:     zap.NewNop(),
	})
	return svc, db
}

func seedDeliveredOrder(t *testing.T, db *bun.DB, orderNo string, productID int64, userID, username string) {
	t.Helper()

	now := time.Now().UTC()
	key := "KEY-" + orderNo
	order := &entity.Order{
		OrderNo:     orderNo,
		ProductID:   productID,
		Status:      entity.OrderStatusDelivered,
		CardKey:     &key,
		UserID:      userID,
		Username:    username,
		PaidAt:      &now,
		DeliveredAt: &now,
		CreatedAt:   now,
	}
	_, err := db.NewInsert().Model(order).Exec(context.Background())
	require.NoError(t, err)
}

func TestEligibilityByUserID(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "alice")

	got, err := svc.Eligibility(context.Background(), Buyer{UserID: "u-1"}, 1)
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Equal(t, "ORD-1", got.OrderNo)
}

func TestEligibilityUsernameFallback(t *testing.T) {
	svc, db := newTestService(t)
	// Order placed before the buyer had an account: no user id recorded.
	seedDeliveredOrder(t, db, "ORD-1", 1, "", "alice")

	got, err := svc.Eligibility(context.Background(), Buyer{UserID: "u-1", Username: "alice"}, 1)
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Equal(t, "ORD-1", got.OrderNo)
}

func TestEligibilityUserIDMatchSkipsFallback(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "alice")
	seedDeliveredOrder(t, db, "ORD-2", 1, "", "alice")

	// With a user id match present the username fallback is never consulted,
	// so ORD-2 does not count.
	_, err := svc.Submit(context.Background(), Buyer{UserID: "u-1", Username: "alice"}, 1, "ORD-1", 5, "great")
	require.NoError(t, err)

	got, err := svc.Eligibility(context.Background(), Buyer{UserID: "u-1", Username: "alice"}, 1)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
}

func TestEligibilitySkipsReviewedOrders(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "alice")
	seedDeliveredOrder(t, db, "ORD-2", 1, "u-1", "alice")

	_, err := svc.Submit(context.Background(), Buyer{UserID: "u-1", Username: "alice"}, 1, "ORD-1", 4, "")
	require.NoError(t, err)

	got, err := svc.Eligibility(context.Background(), Buyer{UserID: "u-1"}, 1)
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Equal(t, "ORD-2", got.OrderNo)
}

func TestEligibilityNoOrders(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.Eligibility(context.Background(), Buyer{UserID: "u-1", Username: "alice"}, 1)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Empty(t, got.OrderNo)
}

func TestSubmitValidation(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "alice")

	ctx := context.Background()
	buyer := Buyer{UserID: "u-1", Username: "alice"}

	_, err := svc.Submit(ctx, buyer, 1, "ORD-1", 0, "")
	assertKind(t, err, errorbank.KindBadRequest)

	_, err = svc.Submit(ctx, buyer, 1, "ORD-MISSING", 5, "")
	assertKind(t, err, errorbank.KindNotFound)

	// Wrong product for the order.
	_, err = svc.Submit(ctx, buyer, 2, "ORD-1", 5, "")
	assertKind(t, err, errorbank.KindBadRequest)
}

func TestSubmitRequiresDeliveredOrder(t *testing.T) {
	svc, db := newTestService(t)

	order := &entity.Order{OrderNo: "ORD-1", ProductID: 1, Status: entity.OrderStatusPending, CreatedAt: time.Now().UTC()}
	_, err := db.NewInsert().Model(order).Exec(context.Background())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), Buyer{Username: "alice"}, 1, "ORD-1", 5, "")
	assertKind(t, err, errorbank.KindUnprocessableEntity)
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "alice")

	ctx := context.Background()
	buyer := Buyer{UserID: "u-1", Username: "alice"}

	resp, err := svc.Submit(ctx, buyer, 1, "ORD-1", 5, "works perfectly")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, 5, resp.Rating)

	_, err = svc.Submit(ctx, buyer, 1, "ORD-1", 3, "changed my mind")
	assertKind(t, err, errorbank.KindConflict)
}

func TestSubmitAnonymousUsername(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "")

	resp, err := svc.Submit(context.Background(), Buyer{UserID: "u-1"}, 1, "ORD-1", 4, "")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", resp.Username)
}

func TestRatingAggregation(t *testing.T) {
	svc, db := newTestService(t)
	seedDeliveredOrder(t, db, "ORD-1", 1, "u-1", "alice")
	seedDeliveredOrder(t, db, "ORD-2", 1, "u-2", "bob")

	ctx := context.Background()
	_, err := svc.Submit(ctx, Buyer{UserID: "u-1", Username: "alice"}, 1, "ORD-1", 5, "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, Buyer{UserID: "u-2", Username: "bob"}, 1, "ORD-2", 3, "")
	require.NoError(t, err)

	rating, err := svc.Rating(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rating.Count)
	assert.InDelta(t, 4.0, rating.Average, 0.001)

	reviews, err := svc.ListByProduct(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
}

func assertKind(t *testing.T, err error, kind errorbank.Kind) {
	t.Helper()

	var appErr *errorbank.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, kind, appErr.Kind())
}
