package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderFill is one side of an executed match. Fills are written in pairs
// (one per matched order) inside the same transaction and never mutated.
type OrderFill struct {
	ID           string `gorm:"primaryKey"`
	MatchID      string `gorm:"index"`
	OrderID      string `gorm:"index"`
	OwnerID      string
	InstrumentID string `gorm:"index"`
	Side         OrderSide
	Price        decimal.Decimal `gorm:"type:numeric(20,2)"`
	Quantity     int64
	CreatedAt    time.Time
}

func (OrderFill) TableName() string { return "order_fills" }
