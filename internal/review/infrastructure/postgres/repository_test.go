package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/review/domain"
	"github.com/dmehra2102/storefront/internal/review/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/testutil"
)

func TestRepository(t *testing.T) {
	pool := testutil.Postgres(t)
	ctx := context.Background()
	require.NoError(t, orderpg.Migrate(ctx, pool))

	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, email) VALUES (1, 'Asha', 'asha@example.com'), (2, 'Ravi', 'ravi@example.com');
		INSERT INTO products (id, name, price, stock) VALUES (7, 'Blue Scarf', 10.00, 5);
		INSERT INTO orders (id, user_id, total_amount, status, address, phone_number, payment_screenshot)
			VALUES (1, 1, 10.00, 'delivered', 'a', '1', 'p.png'), (2, 2, 10.00, 'shipped', 'a', '1', 'p.png');
		INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase) VALUES (1, 7, 1, 10.00), (2, 7, 1, 10.00);`)
	require.NoError(t, err)

	repo := postgres.NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)

	ok, err := repo.HasDeliveredPurchase(ctx, 1, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasDeliveredPurchase(ctx, 2, 7)
	require.NoError(t, err)
	assert.False(t, ok, "shipped is not delivered")

	rv := domain.Review{ProductID: 7, UserID: 1, Rating: 4, Comment: "soft"}
	require.NoError(t, repo.Insert(ctx, &rv))
	assert.NotZero(t, rv.ID)
	assert.False(t, rv.CreatedAt.IsZero())

	dup := domain.Review{ProductID: 7, UserID: 1, Rating: 5}
	assert.ErrorIs(t, repo.Insert(ctx, &dup), domain.ErrDuplicateReview)

	list, err := repo.ListForProduct(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Asha", list[0].UserName)

	require.NoError(t, repo.Delete(ctx, rv.ID))
	assert.ErrorIs(t, repo.Delete(ctx, rv.ID), domain.ErrReviewNotFound)
}
