package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

var knownStatuses = []OrderStatus{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
}

// ParseStatus accepts any of the known labels, case-insensitively.
func ParseStatus(s string) (OrderStatus, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range knownStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Status            OrderStatus     `json:"status"`
	Address           string          `json:"address"`
	PhoneNumber       string          `json:"phone_number"`
	PaymentScreenshot string          `json:"payment_screenshot"`
	CreatedAt         time.Time       `json:"created_at"`
	Items             []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID              int64           `json:"id,omitempty"`
	OrderID         int64           `json:"order_id,omitempty"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"name,omitempty"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderSummary is an order row as listed to customers and admins.
type OrderSummary struct {
	Order
	ItemCount     int    `json:"total_items"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// NewOrder builds a pending order whose total is the exact sum of its item subtotals.
func NewOrder(userID int64, in PlaceOrderInput, items []OrderItem) Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return Order{
		UserID:            userID,
		TotalAmount:       total,
		Status:            StatusPending,
		Address:           strings.TrimSpace(in.Address),
		PhoneNumber:       strings.TrimSpace(in.PhoneNumber),
		PaymentScreenshot: in.PaymentProof,
		CreatedAt:         time.Now().UTC(),
		Items:             items,
	}
}
