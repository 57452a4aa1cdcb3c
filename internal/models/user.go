package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a registered account holding virtual cash.
// PortfolioValue is a derived cache refreshed on summary reads; cash and
// the transaction ledger are the source of truth.
type User struct {
	gorm.Model
	Username       string          `gorm:"uniqueIndex;not null" json:"username"`
	Hash           string          `gorm:"not null" json:"-"`
	Cash           decimal.Decimal `gorm:"type:numeric;not null" json:"cash"`
	PortfolioValue decimal.Decimal `gorm:"type:numeric;not null" json:"portfolio_value"`
}
