package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrNotVerifiedBuyer = errors.New("no delivered order contains this product")
	ErrDuplicateReview  = errors.New("product already reviewed by this user")
	ErrReviewNotFound   = errors.New("review not found")
	ErrInvalidProduct   = errors.New("product id is required")
)

type Review struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func NewReview(userID, productID int64, rating int, comment string) (Review, error) {
	if productID <= 0 {
		return Review{}, ErrInvalidProduct
	}
	if rating < 1 || rating > 5 {
		return Review{}, ErrInvalidRating
	}
	return Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	}, nil
}
