package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionIntent string

const (
	PositionIntentLong  PositionIntent = "LONG"
	PositionIntentShort PositionIntent = "SHORT"
)

// CloseSide is the order side that reduces a position with this intent.
func (p PositionIntent) CloseSide() OrderSide {
	if p == PositionIntentLong {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OpenSide is the order side that builds a position with this intent.
func (p PositionIntent) OpenSide() OrderSide {
	if p == PositionIntentLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Position is a leveraged exposure against an instrument. A position is open
// while ClosedAt is nil; closing sets ClosedAt, ExitPrice and RealizedPnL.
type Position struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"index"`
	InstrumentID string `gorm:"index"`

	Intent     PositionIntent
	EntryPrice decimal.Decimal `gorm:"type:numeric(20,2)"`
	Size       int64
	Margin     decimal.Decimal `gorm:"type:numeric(20,2)"`

	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExitPrice   decimal.Decimal `gorm:"type:numeric(20,2)"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(20,2)"`
}

func (Position) TableName() string { return "positions" }

func (p *Position) IsOpen() bool { return p.ClosedAt == nil }

// UnrealizedPnL values the position at the given mark price.
func (p *Position) UnrealizedPnL(mark float64) float64 {
	entry := p.EntryPrice.InexactFloat64()
	if p.Intent == PositionIntentLong {
		return (mark - entry) * float64(p.Size)
	}
	return (entry - mark) * float64(p.Size)
}

// Close settles the position at the given exit price.
func (p *Position) Close(exitPrice float64, pnl float64, at time.Time) {
	p.ClosedAt = &at
	p.ExitPrice = DecimalFromPrice(exitPrice)
	p.RealizedPnL = DecimalFromPrice(pnl)
}
