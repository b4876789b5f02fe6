package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the counter side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderKind string

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
)

type OrderTimeInForce string

const (
	OrderTimeInForceGTC OrderTimeInForce = "GTC"
	OrderTimeInForceIOC OrderTimeInForce = "IOC"
	OrderTimeInForceFOK OrderTimeInForce = "FOK"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type Order struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"index"`
	InstrumentID string `gorm:"index"`

	Side        OrderSide
	Kind        OrderKind
	Intent      PositionIntent
	TimeInForce OrderTimeInForce

	Price     decimal.Decimal `gorm:"type:numeric(20,2)"`
	Quantity  int64
	Remaining int64
	Filled    int64

	Status      OrderStatus `gorm:"index"`
	CreatedAt   time.Time
	FilledAt    *time.Time
	CancelledAt *time.Time
}

func (Order) TableName() string { return "orders" }

// Resting reports whether the order still holds a place in the book.
func (o *Order) Resting() bool {
	return (o.Status == OrderStatusOpen || o.Status == OrderStatusPartial) && o.Remaining > 0
}

func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

func (o *Order) CanCancel() bool {
	return !o.IsTerminal()
}

// ApplyFill decrements remaining quantity and moves the order through
// PARTIAL/FILLED. Conservation: filled + remaining == quantity at all times.
func (o *Order) ApplyFill(qty int64, at time.Time) {
	o.Remaining -= qty
	o.Filled += qty
	if o.Remaining == 0 {
		o.Status = OrderStatusFilled
		o.FilledAt = &at
	} else {
		o.Status = OrderStatusPartial
	}
}
