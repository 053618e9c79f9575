package orders

import "errors"

// Sentinel errors surfaced at the request boundary. Callers match with
// errors.Is; wrapped messages carry the detail.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
)
