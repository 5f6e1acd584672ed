package application

import (
	"context"

	"github.com/dmehra2102/storefront/internal/order/domain"
)

// Store opens transactions and serves the read side of the order lifecycle.
type Store interface {
	// WithinTx runs fn in one transaction. It commits only if fn returns nil and
	// always releases the underlying connection.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListForUser(ctx context.Context, userID int64) ([]domain.OrderSummary, error)
	ListAll(ctx context.Context) ([]domain.OrderSummary, error)
	Items(ctx context.Context, orderID int64) ([]domain.OrderItem, error)
}

// Tx is the set of writes available inside WithinTx.
type Tx interface {
	// LockProduct reads a product row and holds an exclusive row lock on it until the
	// transaction ends. It returns domain.ErrProductNotFound if the row does not exist.
	LockProduct(ctx context.Context, id int64) (domain.Product, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	InsertItems(ctx context.Context, orderID int64, items []domain.OrderItem) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error

	SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error

	AppendEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error
}
