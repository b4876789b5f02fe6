package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a tradeable skin with one live book and one mark price.
// MarkPrice is the last traded price and is mutated only by matching fills.
type Instrument struct {
	ID        string          `gorm:"primaryKey"`
	Name      string          `gorm:"uniqueIndex"`
	MarkPrice decimal.Decimal `gorm:"type:numeric(20,2)"`
	UpdatedAt time.Time
}

func (Instrument) TableName() string { return "instruments" }
