package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Card is a single redemption key belonging to a product's inventory pool.
// A card is consumed at most once; UsedAt is set when fulfillment claims it.
type Card struct {
	bun.BaseModel `bun:"table:cards"`

	ID        int64      `bun:",pk,autoincrement"`
	ProductID int64      `bun:"product_id,notnull"`
	CardKey   string     `bun:"card_key,notnull"`
	IsUsed    bool       `bun:"is_used"`
	UsedAt    *time.Time `bun:"used_at,nullzero"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
