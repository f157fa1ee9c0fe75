package checkout

import "errors"

var (
	// ErrEmptyCart means there was nothing to check out.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrPaymentUnverified means the gateway's own lookup did not confirm the
	// transaction as completed. No local state is mutated on this error.
	ErrPaymentUnverified = errors.New("payment could not be verified")

	// ErrOrderNotFound means the gateway reference resolved to no local order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderStateConflict means a gateway confirmation arrived for an order
	// that is not awaiting approval. The confirmation is rejected without any
	// state change.
	ErrOrderStateConflict = errors.New("order is not awaiting gateway approval")
)
