package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/storefront/internal/review/domain"
)

type Service struct {
	log  *slog.Logger
	repo ReviewRepository
}

func NewService(log *slog.Logger, repo ReviewRepository) *Service {
	return &Service{log: log, repo: repo}
}

// Add records a review from a customer who has received the product.
func (s *Service) Add(ctx context.Context, userID, productID int64, rating int, comment string) (domain.Review, error) {
	r, err := domain.NewReview(userID, productID, rating, comment)
	if err != nil {
		return domain.Review{}, err
	}

	ok, err := s.repo.HasDeliveredPurchase(ctx, userID, productID)
	if err != nil {
		return domain.Review{}, err
	}
	if !ok {
		return domain.Review{}, domain.ErrNotVerifiedBuyer
	}

	if err := s.repo.Insert(ctx, &r); err != nil {
		return domain.Review{}, err
	}
	s.log.Info("review added", "review_id", r.ID, "product_id", productID, "user_id", userID)
	return r, nil
}

func (s *Service) ListForProduct(ctx context.Context, productID int64) ([]domain.Review, error) {
	return s.repo.ListForProduct(ctx, productID)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
