package portfolio

import "errors"

// Error kinds reported by engine operations. Callers match them with
// errors.Is; the HTTP layer maps each kind to a 4xx status.
var (
	ErrValidation         = errors.New("validation failed")
	ErrAuth               = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)
