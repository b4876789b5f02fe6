package model

import "time"

type OrderEventType string

const (
	EventOrderPlaced          OrderEventType = "ORDER_PLACED"
	EventOrderFilled          OrderEventType = "ORDER_FILLED"
	EventOrderCancelled       OrderEventType = "ORDER_CANCELLED"
	EventPositionLiquidated   OrderEventType = "POSITION_LIQUIDATED"
	EventConditionalTriggered OrderEventType = "CONDITIONAL_TRIGGERED"
	EventFundingApplied       OrderEventType = "FUNDING_APPLIED"
)

// OrderEvent is one entry of the order lifecycle journal. Events flow from
// the engine to kafka and are archived into the order_events table by the
// worker.
type OrderEvent struct {
	EventID      string         `gorm:"primaryKey" json:"event_id"`
	Type         OrderEventType `gorm:"index" json:"type"`
	OrderID      string         `gorm:"index" json:"order_id"`
	OwnerID      string         `json:"owner_id"`
	InstrumentID string         `json:"instrument_id"`
	Price        float64        `json:"price"`
	Quantity     int64          `json:"quantity"`
	Timestamp    time.Time      `json:"timestamp"`
}

func (OrderEvent) TableName() string { return "order_events" }
