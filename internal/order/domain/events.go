package domain

import "github.com/shopspring/decimal"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
)

type OrderPlaced struct {
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items"`
}

type OrderStatusChanged struct {
	OrderID int64       `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type OrderDeleted struct {
	OrderID int64 `json:"order_id"`
}
