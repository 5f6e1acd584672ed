package application

import (
	"context"

	"github.com/dmehra2102/storefront/internal/review/domain"
)

type ReviewRepository interface {
	// HasDeliveredPurchase reports whether userID has a delivered order containing productID.
	HasDeliveredPurchase(ctx context.Context, userID, productID int64) (bool, error)
	// Insert returns domain.ErrDuplicateReview when the user already reviewed the product.
	Insert(ctx context.Context, r *domain.Review) error
	ListForProduct(ctx context.Context, productID int64) ([]domain.Review, error)
	Delete(ctx context.Context, id int64) error
}
