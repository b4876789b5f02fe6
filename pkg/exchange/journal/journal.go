package journal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
	kafkawrapper "github.com/joripage/skin-exchange/pkg/kafka_wrapper"
)

// Journal is an in-memory, append-only log of order lifecycle events. Each
// event is optionally published to kafka, where the worker archives it into
// the order_events table. Publishing is best effort and never blocks the
// match path.
type Journal struct {
	mu      sync.RWMutex
	byOrder map[string][]*model.OrderEvent
	recent  []*model.OrderEvent

	producer *kafkawrapper.Producer
	topic    string
	log      *zap.Logger
}

const recentCap = 1024

type Option func(*Journal)

// WithProducer enables kafka publishing of every recorded event.
func WithProducer(p *kafkawrapper.Producer, topic string) Option {
	return func(j *Journal) {
		j.producer = p
		j.topic = topic
	}
}

func New(log *zap.Logger, opts ...Option) *Journal {
	j := &Journal{
		byOrder: make(map[string][]*model.OrderEvent),
		log:     log,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record appends an event, assigning id and timestamp when absent.
func (j *Journal) Record(ctx context.Context, ev *model.OrderEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	j.mu.Lock()
	if ev.OrderID != "" {
		j.byOrder[ev.OrderID] = append(j.byOrder[ev.OrderID], ev)
	}
	j.recent = append(j.recent, ev)
	if len(j.recent) > recentCap {
		j.recent = j.recent[len(j.recent)-recentCap:]
	}
	j.mu.Unlock()

	if j.producer != nil {
		if err := j.producer.PublishJSON(ctx, j.topic, ev.OrderID, ev, nil); err != nil {
			j.log.Warn("journal publish failed",
				zap.String("event_id", ev.EventID),
				zap.Error(err))
		}
	}
}

// EventsForOrder returns the lifecycle chain of one order, oldest first.
func (j *Journal) EventsForOrder(orderID string) []*model.OrderEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	evs := j.byOrder[orderID]
	out := make([]*model.OrderEvent, len(evs))
	copy(out, evs)
	return out
}

// Recent returns up to n of the latest events, newest last.
func (j *Journal) Recent(n int) []*model.OrderEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n > len(j.recent) {
		n = len(j.recent)
	}
	out := make([]*model.OrderEvent, n)
	copy(out, j.recent[len(j.recent)-n:])
	return out
}
