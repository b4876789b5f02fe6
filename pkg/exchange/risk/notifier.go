package risk

import (
	"context"

	"go.uber.org/zap"

	kafkawrapper "github.com/joripage/skin-exchange/pkg/kafka_wrapper"
)

// LogNotifier writes margin warnings to the structured log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, m *Metrics) error {
	n.log.Warn("margin warning",
		zap.String("position_id", m.Position.ID),
		zap.String("owner_id", m.Position.OwnerID),
		zap.String("instrument_id", m.Position.InstrumentID),
		zap.String("level", string(m.Level)),
		zap.Float64("margin_ratio", m.MarginRatio),
		zap.Float64("mark_price", m.MarkPrice),
		zap.Float64("liquidation_price", m.LiquidationPrice))
	return nil
}

// KafkaNotifier publishes margin warnings for downstream delivery (mail,
// push, websocket fan-out).
type KafkaNotifier struct {
	producer *kafkawrapper.Producer
	topic    string
}

func NewKafkaNotifier(producer *kafkawrapper.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

type warningPayload struct {
	PositionID       string  `json:"position_id"`
	OwnerID          string  `json:"owner_id"`
	InstrumentID     string  `json:"instrument_id"`
	Level            string  `json:"level"`
	MarginRatio      float64 `json:"margin_ratio"`
	MarkPrice        float64 `json:"mark_price"`
	LiquidationPrice float64 `json:"liquidation_price"`
}

func (n *KafkaNotifier) Notify(ctx context.Context, m *Metrics) error {
	return n.producer.PublishJSON(ctx, n.topic, m.Position.OwnerID, warningPayload{
		PositionID:       m.Position.ID,
		OwnerID:          m.Position.OwnerID,
		InstrumentID:     m.Position.InstrumentID,
		Level:            string(m.Level),
		MarginRatio:      m.MarginRatio,
		MarkPrice:        m.MarkPrice,
		LiquidationPrice: m.LiquidationPrice,
	}, nil)
}
