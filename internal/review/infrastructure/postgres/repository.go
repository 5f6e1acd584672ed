package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront/internal/review/domain"
)

const codeUniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) HasDeliveredPurchase(ctx context.Context, userID, productID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM order_items oi
			JOIN orders o ON oi.order_id = o.id
			WHERE o.user_id = $1
			  AND oi.product_id = $2
			  AND o.status = 'delivered'
		)`, userID, productID).Scan(&ok)
	return ok, err
}

func (r *Repository) Insert(ctx context.Context, rv *domain.Review) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reviews (product_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		rv.ProductID, rv.UserID, rv.Rating, rv.Comment).
		Scan(&rv.ID, &rv.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return domain.ErrDuplicateReview
	}
	return err
}

func (r *Repository) ListForProduct(ctx context.Context, productID int64) ([]domain.Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rv.id, rv.product_id, rv.user_id, u.name, rv.rating, rv.comment, rv.created_at
		FROM reviews rv
		JOIN users u ON rv.user_id = u.id
		WHERE rv.product_id = $1
		ORDER BY rv.created_at DESC, rv.id DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrReviewNotFound
	}
	return nil
}
