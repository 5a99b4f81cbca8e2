package notify

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
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
	service "github.com/Additional-Code/vendo/internal/service/fulfillment"
)

const testSecret = "merchant-key"

func newTestServer(t *testing.T) (*echo.Echo, *bun.DB) {
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
	svc := service.NewService(service.Params{
		Connections: conns,
		Orders:      orderrepo.NewRepository(conns),
		Cards:       cardrepo.NewRepository(conns),
		Config:      config.Config{Gateway: config.Gateway{MerchantKey: testSecret}},
		Logger:      zap.NewNop(),
	})

	e := echo.New()
	Register(e, NewHandler(svc))
	return e, db
}

func seedDeliverableOrder(t *testing.T, db *bun.DB) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	product := &entity.Product{Name: "Starter License", Price: "9.99", IsActive: true, CreatedAt: now}
	_, err := db.NewInsert().Model(product).Exec(ctx)
	require.NoError(t, err)

	card := &entity.Card{ProductID: product.ID, CardKey: "KEY-AAA", CreatedAt: now}
	_, err = db.NewInsert().Model(card).Exec(ctx)
	require.NoError(t, err)

	order := &entity.Order{OrderNo: "ORD-1", ProductID: product.ID, Amount: "9.99", Status: entity.OrderStatusPending, CreatedAt: now}
	_, err = db.NewInsert().Model(order).Exec(ctx)
	require.NoError(t, err)
}

func postNotification(e *echo.Echo, params map[string]string) *httptest.ResponseRecorder {
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/notify", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNotifyAcksSuccess(t *testing.T) {
	e, db := newTestServer(t)
	seedDeliverableOrder(t, db)

	params := map[string]string{
		gateway.FieldOutTradeNo: "ORD-1",
		gateway.FieldTradeNo:    "T-100",
		gateway.FieldTradeStat:  gateway.TradeSuccess,
	}
	params[gateway.FieldSign] = gateway.Sign(params, testSecret)

	rec := postNotification(e, params)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())

	order := new(entity.Order)
	require.NoError(t, db.NewSelect().Model(order).Where("order_no = ?", "ORD-1").Scan(context.Background()))
	assert.Equal(t, entity.OrderStatusDelivered, order.Status)
}

func TestNotifyRejectsBadSignature(t *testing.T) {
	e, db := newTestServer(t)
	seedDeliverableOrder(t, db)

	rec := postNotification(e, map[string]string{
		gateway.FieldOutTradeNo: "ORD-1",
		gateway.FieldTradeNo:    "T-100",
		gateway.FieldTradeStat:  gateway.TradeSuccess,
		gateway.FieldSign:       "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fail", rec.Body.String())

	order := new(entity.Order)
	require.NoError(t, db.NewSelect().Model(order).Where("order_no = ?", "ORD-1").Scan(context.Background()))
	assert.Equal(t, entity.OrderStatusPending, order.Status)
}

func TestNotifyUnknownOrderStopsRetries(t *testing.T) {
	e, _ := newTestServer(t)

	params := map[string]string{
		gateway.FieldOutTradeNo: "ORD-MISSING",
		gateway.FieldTradeNo:    "T-100",
		gateway.FieldTradeStat:  gateway.TradeSuccess,
	}
	params[gateway.FieldSign] = gateway.Sign(params, testSecret)

	rec := postNotification(e, params)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
}
