package dto

import "time"

// ProductResponse represents a product as exposed via transport layers,
// including live stock/sold counts derived from the card pool.
type ProductResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Image       string    `json:"image,omitempty"`
	Category    string    `json:"category,omitempty"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
	Stock       int       `json:"stock"`
	Sold        int       `json:"sold"`
	CreatedAt   time.Time `json:"created_at"`
}
