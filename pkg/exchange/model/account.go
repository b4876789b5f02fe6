package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds an owner's available balance. Mutated by fill settlement,
// funding debits and liquidation payouts.
type Account struct {
	OwnerID   string          `gorm:"primaryKey"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2)"`
	UpdatedAt time.Time
}

func (Account) TableName() string { return "accounts" }
