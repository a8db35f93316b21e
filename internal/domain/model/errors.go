package model

import "errors"

var (
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrOutOfStock             = errors.New("out of stock")
	ErrInvalidPrice           = errors.New("price must be at least 0.01")
	ErrNegativeStock          = errors.New("stock cannot be negative")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrTransitionNotAllowed   = errors.New("status transition not allowed")
	ErrTrackingNumberRequired = errors.New("tracking number required")
)
