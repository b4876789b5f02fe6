package matching

import "errors"

var (
	// ErrInvalidOrder rejects orders with a non-positive price or quantity.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrNoLiquidity rejects market orders when the opposite side is empty.
	ErrNoLiquidity = errors.New("no crossable liquidity")
	// ErrInsufficientBalance rejects operations whose funding exceeds the
	// owner's available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
