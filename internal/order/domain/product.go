package domain

import "github.com/shopspring/decimal"

// Product is the locked view of a catalog row used while pricing an order.
type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	Stock         int
	Category      string
}

// UnitPrice is the price charged per unit: the discount price when one is set, else the list price.
func (p Product) UnitPrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() {
		return *p.DiscountPrice
	}
	return p.Price
}
