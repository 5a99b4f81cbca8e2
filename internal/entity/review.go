package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Review is a buyer rating for a delivered order. OrderNo carries a unique
// index so an order can be reviewed at most once.
type Review struct {
	bun.BaseModel `bun:"table:reviews"`

	ID        int64     `bun:",pk,autoincrement"`
	ProductID int64     `bun:"product_id,notnull"`
	OrderNo   string    `bun:"order_no,notnull,unique"`
	UserID    string    `bun:"user_id"`
	Username  string    `bun:"username"`
	Rating    int       `bun:"rating,notnull"`
	Comment   string    `bun:"comment"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
