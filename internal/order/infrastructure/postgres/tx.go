package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/order/domain"
)

// pgTx implements application.Tx on top of an open pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProduct(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	var price string
	var discount *string
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, price::text, discount_price::text, stock, category
		FROM products
		WHERE id = $1
		FOR UPDATE`, id).
		Scan(&p.ID, &p.Name, &price, &discount, &p.Stock, &p.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("product %d price: %w", id, err)
	}
	if discount != nil {
		d, err := decimal.NewFromString(*discount)
		if err != nil {
			return domain.Product{}, fmt.Errorf("product %d discount price: %w", id, err)
		}
		p.DiscountPrice = &d
	}
	return p, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, address, phone_number, payment_screenshot, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at`,
		o.UserID, o.TotalAmount.String(), string(o.Status), o.Address, o.PhoneNumber, o.PaymentScreenshot, o.CreatedAt).
		Scan(&o.ID, &o.CreatedAt)
}

func (t *pgTx) InsertItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
			VALUES ($1, $2, $3, $4::numeric)
			RETURNING id`,
			orderID, item.ProductID, item.Quantity, item.PriceAtPurchase.String())
	}
	br := t.tx.SendBatch(ctx, batch)
	for i := range items {
		if err := br.QueryRow().Scan(&items[i].ID); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2`, quantity, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %d: %d rows updated", productID, ct.RowsAffected())
	}
	return nil
}

func (t *pgTx) SetStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (domain.Order, error) {
	var o domain.Order
	var total, st string
	err := t.tx.QueryRow(ctx, `
		UPDATE orders o SET status = $1, updated_at = now()
		WHERE o.id = $2
		RETURNING `+orderColumns, string(status), orderID).
		Scan(&o.ID, &o.UserID, &total, &st, &o.Address, &o.PhoneNumber, &o.PaymentScreenshot, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("order %d total: %w", o.ID, err)
	}
	o.Status = domain.OrderStatus(st)
	return o, nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, orderID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, aggregateID, eventType string, payload []byte, traceparent string) error {
	headers, err := json.Marshal(map[string]string{"source": "order-service"})
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		"order", aggregateID, eventType, payload, headers, traceparent)
	return err
}
