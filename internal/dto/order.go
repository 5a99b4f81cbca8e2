package dto

import "time"

// OrderResponse represents an order as exposed via transport layers. CardKey
// is only populated once the order has been delivered.
type OrderResponse struct {
	OrderNo     string     `json:"order_no"`
	ProductID   int64      `json:"product_id"`
	ProductName string     `json:"product_name"`
	Amount      string     `json:"amount"`
	Email       string     `json:"email,omitempty"`
	Status      string     `json:"status"`
	CardKey     *string    `json:"card_key,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CheckoutResponse is returned when a pending order has been created and the
// buyer should be redirected to the payment gateway.
type CheckoutResponse struct {
	OrderNo string `json:"order_no"`
	PayURL  string `json:"pay_url"`
}

// StatsBucket aggregates delivered orders over a time window.
type StatsBucket struct {
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// DashboardStats summarises delivered-order volume for the admin dashboard.
type DashboardStats struct {
	Today StatsBucket `json:"today"`
	Week  StatsBucket `json:"week"`
	Month StatsBucket `json:"month"`
	Total StatsBucket `json:"total"`
}
