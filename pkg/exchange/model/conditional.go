package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ConditionalKind string

const (
	ConditionalKindStopLoss   ConditionalKind = "STOP_LOSS"
	ConditionalKindTakeProfit ConditionalKind = "TAKE_PROFIT"
	ConditionalKindStopLimit  ConditionalKind = "STOP_LIMIT"
)

type ConditionalStatus string

const (
	ConditionalStatusPending   ConditionalStatus = "PENDING"
	ConditionalStatusTriggered ConditionalStatus = "TRIGGERED"
	ConditionalStatusFilled    ConditionalStatus = "FILLED"
	ConditionalStatusCancelled ConditionalStatus = "CANCELLED"
)

// ConditionalOrder waits off-book until the mark price crosses its trigger,
// then submits a real order. PENDING -> TRIGGERED -> FILLED, or
// PENDING -> CANCELLED.
type ConditionalOrder struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"index"`
	InstrumentID string `gorm:"index"`
	PositionID   string `gorm:"index"`

	Kind         ConditionalKind
	Side         OrderSide
	Intent       PositionIntent
	TriggerPrice decimal.Decimal `gorm:"type:numeric(20,2)"`
	LimitPrice   decimal.Decimal `gorm:"type:numeric(20,2)"` // STOP_LIMIT only
	Quantity     int64

	Status      ConditionalStatus `gorm:"index"`
	CreatedAt   time.Time
	TriggeredAt *time.Time
	FilledAt    *time.Time
	CancelledAt *time.Time
}

func (ConditionalOrder) TableName() string { return "conditional_orders" }

func (c *ConditionalOrder) CanCancel() bool {
	return c.Status == ConditionalStatusPending
}
