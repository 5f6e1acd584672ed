package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/order/domain"
)

type Service struct {
	log   *slog.Logger
	store Store
}

func NewService(log *slog.Logger, store Store) *Service {
	return &Service{log: log, store: store}
}

// PlaceOrder validates the cart, then locks, prices and decrements every product and
// persists the order in a single transaction. Any failure leaves no trace in the store.
func (s *Service) PlaceOrder(ctx context.Context, in domain.PlaceOrderInput, traceparent string) (domain.Order, error) {
	if err := in.Validate(); err != nil {
		return domain.Order{}, err
	}

	quantities := in.Quantities()
	var placed domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		prices, err := s.lockAndPrice(ctx, tx, quantities)
		if err != nil {
			return err
		}

		items := make([]domain.OrderItem, 0, len(in.Items))
		for _, li := range in.Items {
			items = append(items, domain.OrderItem{
				ProductID:       li.ProductID,
				Quantity:        li.Quantity,
				PriceAtPurchase: prices[li.ProductID],
			})
		}
		o := domain.NewOrder(in.UserID, in, items)
		if err := s.writeOrder(ctx, tx, &o, quantities, traceparent); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		s.log.Warn("order rejected", "user_id", in.UserID, "kind", domain.KindOf(err), "err", err)
		return domain.Order{}, err
	}

	s.log.Info("order placed", "order_id", placed.ID, "user_id", placed.UserID, "total", placed.TotalAmount.StringFixed(2))
	return placed, nil
}

// lockAndPrice locks each distinct product once, in ascending id order, and checks the
// summed requested quantity against its stock. It returns the unit price per product.
func (s *Service) lockAndPrice(ctx context.Context, tx Tx, quantities map[int64]int) (map[int64]decimal.Decimal, error) {
	ids := make([]int64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	prices := make(map[int64]decimal.Decimal, len(ids))
	for _, id := range ids {
		p, err := tx.LockProduct(ctx, id)
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, domain.ProductNotFound(id)
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %d: %w", id, err)
		}
		if p.Stock < quantities[id] {
			return nil, domain.InsufficientStock(p.Name)
		}
		prices[id] = p.UnitPrice()
	}
	return prices, nil
}

func (s *Service) writeOrder(ctx context.Context, tx Tx, o *domain.Order, quantities map[int64]int, traceparent string) error {
	if err := tx.InsertOrder(ctx, o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	if err := tx.InsertItems(ctx, o.ID, o.Items); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	ids := make([]int64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := tx.DecrementStock(ctx, id, quantities[id]); err != nil {
			return fmt.Errorf("decrement stock for product %d: %w", id, err)
		}
	}

	payload, err := json.Marshal(domain.OrderPlaced{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       o.Items,
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, strconv.FormatInt(o.ID, 10), domain.EventOrderPlaced, payload, traceparent)
}

func (s *Service) ChangeStatus(ctx context.Context, orderID int64, status string, traceparent string) (domain.Order, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.SetStatus(ctx, orderID, st)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(domain.OrderStatusChanged{OrderID: orderID, Status: st})
		if err != nil {
			return err
		}
		updated = o
		return tx.AppendEvent(ctx, strconv.FormatInt(orderID, 10), domain.EventOrderStatusChanged, payload, traceparent)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order status changed", "order_id", orderID, "status", st)
	return updated, nil
}

// Delete removes an order and its items. Stock is not restored.
func (s *Service) Delete(ctx context.Context, orderID int64, traceparent string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return err
		}
		payload, err := json.Marshal(domain.OrderDeleted{OrderID: orderID})
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, strconv.FormatInt(orderID, 10), domain.EventOrderDeleted, payload, traceparent)
	})
	if err != nil {
		return err
	}
	s.log.Info("order deleted", "order_id", orderID)
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.OrderSummary, error) {
	return s.store.ListForUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.OrderSummary, error) {
	return s.store.ListAll(ctx)
}

func (s *Service) Items(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	return s.store.Items(ctx, orderID)
}
