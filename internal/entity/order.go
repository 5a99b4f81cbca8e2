package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order lifecycle states. Transitions never regress: pending orders move to
// paid or delivered through fulfillment, and paid/delivered orders can only
// move to refunded through an admin reversal.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusDelivered = "delivered"
	OrderStatusRefunded  = "refunded"
)

// Order represents a purchase tracked from checkout through delivery. OrderNo
// is the merchant-assigned identifier the payment gateway reconciles against.
// CardKey is set exactly when the order reaches the delivered state.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          int64      `bun:",pk,autoincrement"`
	OrderNo     string     `bun:"order_no,notnull,unique"`
	ProductID   int64      `bun:"product_id,notnull"`
	ProductName string     `bun:"product_name"`
	Amount      string     `bun:"amount"`
	Email       string     `bun:"email"`
	Status      string     `bun:"status,notnull"`
	TradeNo     string     `bun:"trade_no"`
	CardKey     *string    `bun:"card_key,nullzero"`
	UserID      string     `bun:"user_id"`
	Username    string     `bun:"username"`
	PaidAt      *time.Time `bun:"paid_at,nullzero"`
	DeliveredAt *time.Time `bun:"delivered_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero"`
}
