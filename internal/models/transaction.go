package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is one row of the append-only ledger. Shares are signed:
// positive for a buy, negative for a sell, and Cost carries the same sign.
// Price is the quote at trade time and is never updated afterwards.
type Transaction struct {
	gorm.Model
	UserID    uint            `gorm:"index:idx_user_symbol;not null" json:"user_id"`
	Symbol    string          `gorm:"index:idx_user_symbol;not null" json:"symbol"`
	StockName string          `json:"stock_name"`
	Price     decimal.Decimal `gorm:"type:numeric;not null" json:"price"`
	Shares    int64           `gorm:"not null" json:"shares"`
	Cost      decimal.Decimal `gorm:"type:numeric;not null" json:"cost"`
}
