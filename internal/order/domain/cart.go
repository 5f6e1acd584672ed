package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MaxQuantity bounds the quantity of one product in a cart, per line and summed
// across lines. It matches the INTEGER columns that store quantities.
const MaxQuantity = math.MaxInt32

// LineItem is one (product, quantity) pair of a submitted cart.
type LineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// PlaceOrderInput is everything a customer submits at checkout.
// PaymentProof is an opaque reference: an uploaded file path or a URL.
type PlaceOrderInput struct {
	UserID       int64
	Items        []LineItem
	Address      string
	PhoneNumber  string
	PaymentProof string
}

// Validate checks the input in the order the storefront reports problems:
// empty cart, bad line items, delivery info, then payment proof.
func (in PlaceOrderInput) Validate() error {
	if len(in.Items) == 0 {
		return ErrEmptyCart
	}
	summed := make(map[int64]int64, len(in.Items))
	for i, item := range in.Items {
		if item.ProductID <= 0 {
			return MalformedCart(fmt.Sprintf("item %d has no product id", i), nil)
		}
		if item.Quantity <= 0 {
			return MalformedCart(fmt.Sprintf("item %d has non-positive quantity %d", i, item.Quantity), nil)
		}
		if int64(item.Quantity) > MaxQuantity {
			return MalformedCart(fmt.Sprintf("item %d quantity %d exceeds %d", i, item.Quantity, MaxQuantity), nil)
		}
		// Each term is at most MaxQuantity and the sum is cut off as soon as it
		// passes it, so the int64 cannot wrap.
		summed[item.ProductID] += int64(item.Quantity)
		if summed[item.ProductID] > MaxQuantity {
			return MalformedCart(fmt.Sprintf("total quantity for product %d exceeds %d", item.ProductID, MaxQuantity), nil)
		}
	}
	if strings.TrimSpace(in.Address) == "" || strings.TrimSpace(in.PhoneNumber) == "" {
		return ErrMissingDeliveryInfo
	}
	if strings.TrimSpace(in.PaymentProof) == "" {
		return ErrMissingPaymentProof
	}
	return nil
}

// Quantities sums requested quantity per product. Call it only on input that passed
// Validate, which keeps every sum within MaxQuantity.
func (in PlaceOrderInput) Quantities() map[int64]int {
	q := make(map[int64]int, len(in.Items))
	for _, item := range in.Items {
		q[item.ProductID] += item.Quantity
	}
	return q
}

type lineItemPayload struct {
	ProductID      int64 `json:"product_id"`
	ProductIDCamel int64 `json:"productId"`
	ID             int64 `json:"id"`
	Quantity       int   `json:"quantity"`
}

func (p lineItemPayload) productID() int64 {
	switch {
	case p.ProductID != 0:
		return p.ProductID
	case p.ProductIDCamel != 0:
		return p.ProductIDCamel
	default:
		return p.ID
	}
}

// ParseLineItems decodes a cart given either as a JSON array or as a JSON string
// holding that array (multipart checkouts send JSON.stringify(cart)).
// An absent cart decodes to nil; Validate reports it as EmptyCart.
func ParseLineItems(raw []byte) ([]LineItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, MalformedCart("invalid string encoding", err)
		}
		return ParseLineItems([]byte(inner))
	}

	var payload []lineItemPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, MalformedCart("expected a list of {product_id, quantity}", err)
	}
	items := make([]LineItem, 0, len(payload))
	for _, p := range payload {
		items = append(items, LineItem{ProductID: p.productID(), Quantity: p.Quantity})
	}
	return items, nil
}
