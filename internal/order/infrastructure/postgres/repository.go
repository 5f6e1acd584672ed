package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
)

const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
)

type Repository struct {
	log         *slog.Logger
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	tracer      trace.Tracer
}

// NewRepository returns a store whose transactions wait at most lockTimeout for any
// row lock. Zero leaves the server default in place.
func NewRepository(log *slog.Logger, pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{
		log:         log,
		pool:        pool,
		lockTimeout: lockTimeout,
		tracer:      otel.Tracer("order-postgres"),
	}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	ctx, span := r.tracer.Start(ctx, "WithinTx")
	defer span.End()

	err := r.withinTx(ctx, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
	}
	return err
}

func (r *Repository) withinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		// Rollback after Commit is a no-op; the pool connection is released either way.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())); err != nil {
			return classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// classify turns lock waits and deadlock aborts into transient domain errors.
// Errors that already carry a domain kind pass through untouched.
func classify(err error) error {
	if err == nil || domain.KindOf(err) != "" {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable:
			return domain.Transient(domain.KindLockTimeout, err)
		case codeDeadlockDetected, codeSerializationFailure:
			return domain.Transient(domain.KindDeadlock, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(domain.KindLockTimeout, err)
	}
	return err
}

const orderColumns = `o.id, o.user_id, o.total_amount::text, o.status, o.address, o.phone_number, o.payment_screenshot, o.created_at`

func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]domain.OrderSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`,
			(SELECT COUNT(*) FROM order_items WHERE order_id = o.id)
		FROM orders o
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderSummary
	for rows.Next() {
		var s domain.OrderSummary
		var total, status string
		if err := rows.Scan(&s.ID, &s.UserID, &total, &status, &s.Address, &s.PhoneNumber, &s.PaymentScreenshot, &s.CreatedAt, &s.ItemCount); err != nil {
			return nil, err
		}
		if s.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("order %d total: %w", s.ID, err)
		}
		s.Status = domain.OrderStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.OrderSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`,
			(SELECT COUNT(*) FROM order_items WHERE order_id = o.id),
			u.name, u.email
		FROM orders o
		JOIN users u ON o.user_id = u.id
		ORDER BY o.created_at DESC, o.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderSummary
	for rows.Next() {
		var s domain.OrderSummary
		var total, status string
		if err := rows.Scan(&s.ID, &s.UserID, &total, &status, &s.Address, &s.PhoneNumber, &s.PaymentScreenshot, &s.CreatedAt,
			&s.ItemCount, &s.CustomerName, &s.CustomerEmail); err != nil {
			return nil, err
		}
		if s.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("order %d total: %w", s.ID, err)
		}
		s.Status = domain.OrderStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) Items(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.price_at_purchase::text
		FROM order_items oi
		LEFT JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var price string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.PriceAtPurchase, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order item %d price: %w", it.ID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
