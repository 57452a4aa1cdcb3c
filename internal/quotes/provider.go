package quotes

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnknownSymbol is returned when the provider has no listing for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Quote is a point-in-time name/price lookup result for one symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

// Provider resolves a ticker symbol to its current quote.
// Implementations report a lookup miss as ErrUnknownSymbol.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (*Quote, error)
}
