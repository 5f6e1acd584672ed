package domain

import (
	"errors"
	"fmt"
)

// Kind classifies why an order operation was rejected.
type Kind string

const (
	KindEmptyCart           Kind = "EmptyCart"
	KindMissingDeliveryInfo Kind = "MissingDeliveryInfo"
	KindMissingPaymentProof Kind = "MissingPaymentProof"
	KindMalformedCart       Kind = "MalformedCart"
	KindInvalidPaymentProof Kind = "InvalidPaymentProof"
	KindProductNotFound     Kind = "ProductNotFound"
	KindInsufficientStock   Kind = "InsufficientStock"
	KindOrderNotFound       Kind = "OrderNotFound"
	KindInvalidStatus       Kind = "InvalidStatus"
	KindLockTimeout         Kind = "LockTimeout"
	KindDeadlock            Kind = "Deadlock"
)

// Error is a classified order failure. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInsufficientStock) works
// regardless of the product named in the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrEmptyCart           = &Error{Kind: KindEmptyCart, Message: "Cart is empty"}
	ErrMissingDeliveryInfo = &Error{Kind: KindMissingDeliveryInfo, Message: "Address and phone are required"}
	ErrMissingPaymentProof = &Error{Kind: KindMissingPaymentProof, Message: "Payment proof is required"}
	ErrMalformedCart       = &Error{Kind: KindMalformedCart, Message: "Cart payload is malformed"}
	ErrInvalidPaymentProof = &Error{Kind: KindInvalidPaymentProof, Message: "Payment proof must be a jpg, jpeg or png image"}
	ErrProductNotFound     = &Error{Kind: KindProductNotFound, Message: "Product not found"}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock, Message: "Insufficient stock"}
	ErrOrderNotFound       = &Error{Kind: KindOrderNotFound, Message: "Order not found"}
	ErrInvalidStatus       = &Error{Kind: KindInvalidStatus, Message: "Invalid order status"}
	ErrLockTimeout         = &Error{Kind: KindLockTimeout, Message: "Timed out waiting for stock lock, please retry"}
	ErrDeadlock            = &Error{Kind: KindDeadlock, Message: "Checkout conflicted with another order, please retry"}
)

func ProductNotFound(id int64) error {
	return &Error{Kind: KindProductNotFound, Message: fmt.Sprintf("Product with ID %d not found", id)}
}

func InsufficientStock(name string) error {
	return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf("Insufficient stock for %s", name)}
}

func MalformedCart(reason string, err error) error {
	return &Error{Kind: KindMalformedCart, Message: "Cart payload is malformed: " + reason, Err: err}
}

// Transient wraps a store error that aborted the transaction but may succeed on resubmission.
func Transient(kind Kind, err error) error {
	base := ErrLockTimeout
	if kind == KindDeadlock {
		base = ErrDeadlock
	}
	return &Error{Kind: base.Kind, Message: base.Message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindEmptyCart, KindMissingDeliveryInfo, KindMissingPaymentProof, KindMalformedCart,
		KindInvalidPaymentProof, KindProductNotFound, KindInsufficientStock, KindInvalidStatus:
		return true
	}
	return false
}

func IsTransient(err error) bool {
	k := KindOf(err)
	return k == KindLockTimeout || k == KindDeadlock
}
