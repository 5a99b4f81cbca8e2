package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Product is a digital good offered in the storefront catalog.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID          int64     `bun:",pk,autoincrement"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	Price       string    `bun:"price"`
	Image       string    `bun:"image"`
	Category    string    `bun:"category"`
	IsActive    bool      `bun:"is_active"`
	SortOrder   int       `bun:"sort_order"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero"`
}
