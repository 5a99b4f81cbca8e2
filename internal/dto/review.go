package dto

import "time"

// ReviewResponse represents a product review as exposed via transport layers.
type ReviewResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductRating aggregates review scores for a product.
type ProductRating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// ReviewEligibility reports whether a buyer may review a product and which
// delivered order the review would attach to.
type ReviewEligibility struct {
	Eligible bool   `json:"eligible"`
	OrderNo  string `json:"order_no,omitempty"`
}
