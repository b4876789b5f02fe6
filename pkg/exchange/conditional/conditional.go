package conditional

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

// ErrInvalidTrigger rejects conditional orders whose trigger or limit price
// sits on the wrong side of the reference price.
var ErrInvalidTrigger = errors.New("invalid trigger price")

// Manager owns the off-book conditional orders: stop-loss, take-profit and
// stop-limit. PENDING orders are polled against the instrument mark price and
// submitted to the matching engine once triggered.
type Manager struct {
	store   store.Store
	matcher *matching.Engine
	log     *zap.Logger
}

func NewManager(st store.Store, matcher *matching.Engine, log *zap.Logger) *Manager {
	return &Manager{store: st, matcher: matcher, log: log}
}

// CreateStopLoss attaches a stop-loss to an open position. The order side is
// the opposite of the position and the trigger must sit on the losing side of
// the entry price.
func (m *Manager) CreateStopLoss(ctx context.Context, ownerID, positionID string, triggerPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	return m.createProtective(ctx, model.ConditionalKindStopLoss, ownerID, positionID, triggerPrice, quantity)
}

// CreateTakeProfit is the mirror of CreateStopLoss: the trigger must sit on
// the winning side of the entry price.
func (m *Manager) CreateTakeProfit(ctx context.Context, ownerID, positionID string, triggerPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	return m.createProtective(ctx, model.ConditionalKindTakeProfit, ownerID, positionID, triggerPrice, quantity)
}

func (m *Manager) createProtective(ctx context.Context, kind model.ConditionalKind, ownerID, positionID string, triggerPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	if triggerPrice <= 0 || quantity <= 0 {
		return nil, fmt.Errorf("%w: trigger and quantity must be positive", ErrInvalidTrigger)
	}

	pos, err := m.store.Positions().Get(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if pos.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if !pos.IsOpen() {
		return nil, fmt.Errorf("%w: position %s is closed", ErrInvalidTrigger, positionID)
	}

	entry := pos.EntryPrice.InexactFloat64()
	if err := validateProtectiveTrigger(kind, pos.Intent, triggerPrice, entry); err != nil {
		return nil, err
	}

	c := &model.ConditionalOrder{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		InstrumentID: pos.InstrumentID,
		PositionID:   positionID,
		Kind:         kind,
		Side:         pos.Intent.CloseSide(),
		Intent:       pos.Intent,
		TriggerPrice: model.DecimalFromPrice(triggerPrice),
		Quantity:     quantity,
		Status:       model.ConditionalStatusPending,
		CreatedAt:    time.Now(),
	}
	if err := m.store.Conditionals().Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// validateProtectiveTrigger checks that the trigger sits on the correct side
// of the entry: stop-loss below entry for LONG and above for SHORT,
// take-profit the reverse.
func validateProtectiveTrigger(kind model.ConditionalKind, intent model.PositionIntent, trigger, entry float64) error {
	long := intent == model.PositionIntentLong
	switch kind {
	case model.ConditionalKindStopLoss:
		if long && trigger >= entry {
			return fmt.Errorf("%w: stop loss %.2f must be below entry %.2f", ErrInvalidTrigger, trigger, entry)
		}
		if !long && trigger <= entry {
			return fmt.Errorf("%w: stop loss %.2f must be above entry %.2f", ErrInvalidTrigger, trigger, entry)
		}
	case model.ConditionalKindTakeProfit:
		if long && trigger <= entry {
			return fmt.Errorf("%w: take profit %.2f must be above entry %.2f", ErrInvalidTrigger, trigger, entry)
		}
		if !long && trigger >= entry {
			return fmt.Errorf("%w: take profit %.2f must be below entry %.2f", ErrInvalidTrigger, trigger, entry)
		}
	}
	return nil
}

// CreateStopLimit registers a stop that submits a limit order at LimitPrice
// once the mark crosses the trigger in the order's direction. The limit must
// be marketable past the trigger, or it could never execute.
func (m *Manager) CreateStopLimit(ctx context.Context, ownerID, instrumentID string, side model.OrderSide, intent model.PositionIntent, triggerPrice, limitPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	if triggerPrice <= 0 || limitPrice <= 0 || quantity <= 0 {
		return nil, fmt.Errorf("%w: prices and quantity must be positive", ErrInvalidTrigger)
	}
	if side == model.OrderSideBuy && limitPrice < triggerPrice {
		return nil, fmt.Errorf("%w: buy limit %.2f below trigger %.2f", ErrInvalidTrigger, limitPrice, triggerPrice)
	}
	if side == model.OrderSideSell && limitPrice > triggerPrice {
		return nil, fmt.Errorf("%w: sell limit %.2f above trigger %.2f", ErrInvalidTrigger, limitPrice, triggerPrice)
	}

	c := &model.ConditionalOrder{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		InstrumentID: instrumentID,
		Kind:         model.ConditionalKindStopLimit,
		Side:         side,
		Intent:       intent,
		TriggerPrice: model.DecimalFromPrice(triggerPrice),
		LimitPrice:   model.DecimalFromPrice(limitPrice),
		Quantity:     quantity,
		Status:       model.ConditionalStatusPending,
		CreatedAt:    time.Now(),
	}
	if err := m.store.Conditionals().Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

type TriggerResult struct {
	ConditionalID string
	OrderID       string
	MarkPrice     float64
	Triggered     bool
	Filled        bool
	Err           string
}

// CheckTriggers walks every PENDING conditional order, compares the
// instrument mark price to its trigger and submits the resulting order.
// Failures are recorded per order and never abort the sweep.
func (m *Manager) CheckTriggers(ctx context.Context) ([]*TriggerResult, error) {
	pending, err := m.store.Conditionals().ListPending(ctx)
	if err != nil {
		return nil, err
	}

	marks := make(map[string]float64)
	var results []*TriggerResult
	for _, c := range pending {
		mark, ok := marks[c.InstrumentID]
		if !ok {
			in, err := m.store.Instruments().Get(ctx, c.InstrumentID)
			if err != nil {
				results = append(results, &TriggerResult{ConditionalID: c.ID, Err: err.Error()})
				continue
			}
			mark = in.MarkPrice.InexactFloat64()
			marks[c.InstrumentID] = mark
		}

		if !shouldTrigger(c, mark) {
			continue
		}
		results = append(results, m.trigger(ctx, c, mark))
	}
	return results, nil
}

// shouldTrigger applies the (kind, side) inequality matrix against the mark.
func shouldTrigger(c *model.ConditionalOrder, mark float64) bool {
	trigger := c.TriggerPrice.InexactFloat64()
	sell := c.Side == model.OrderSideSell
	switch c.Kind {
	case model.ConditionalKindStopLoss:
		if sell {
			return mark <= trigger
		}
		return mark >= trigger
	case model.ConditionalKindTakeProfit:
		if sell {
			return mark >= trigger
		}
		return mark <= trigger
	case model.ConditionalKindStopLimit:
		if sell {
			return mark <= trigger
		}
		return mark >= trigger
	}
	return false
}

func (m *Manager) trigger(ctx context.Context, c *model.ConditionalOrder, mark float64) *TriggerResult {
	res := &TriggerResult{ConditionalID: c.ID, MarkPrice: mark}

	now := time.Now()
	c.Status = model.ConditionalStatusTriggered
	c.TriggeredAt = &now
	if err := m.store.Conditionals().Update(ctx, c); err != nil {
		res.Err = err.Error()
		return res
	}
	res.Triggered = true

	req := &matching.PlaceOrderRequest{
		OwnerID:      c.OwnerID,
		InstrumentID: c.InstrumentID,
		Side:         c.Side,
		Intent:       c.Intent,
		Quantity:     c.Quantity,
	}
	if c.Kind == model.ConditionalKindStopLimit {
		req.Kind = model.OrderKindLimit
		req.Price = c.LimitPrice.InexactFloat64()
		req.TimeInForce = model.OrderTimeInForceGTC
	} else {
		req.Kind = model.OrderKindMarket
		req.TimeInForce = model.OrderTimeInForceIOC
	}

	order, match, err := m.matcher.PlaceOrder(ctx, req)
	if err != nil {
		m.log.Warn("triggered order submission failed",
			zap.String("conditional_id", c.ID),
			zap.Error(err))
		res.Err = err.Error()
		return res
	}
	res.OrderID = order.ID

	if match.FilledQuantity > 0 {
		c.Status = model.ConditionalStatusFilled
		c.FilledAt = &now
		if err := m.store.Conditionals().Update(ctx, c); err != nil {
			res.Err = err.Error()
			return res
		}
		res.Filled = true
	}
	return res
}

// CancelConditionalOrder succeeds only from PENDING and only for the owner.
func (m *Manager) CancelConditionalOrder(ctx context.Context, id, ownerID string) (bool, error) {
	c, err := m.store.Conditionals().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if c.OwnerID != ownerID || !c.CanCancel() {
		return false, nil
	}

	now := time.Now()
	c.Status = model.ConditionalStatusCancelled
	c.CancelledAt = &now
	if err := m.store.Conditionals().Update(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// ListConditionalOrders returns every conditional order of one owner.
func (m *Manager) ListConditionalOrders(ctx context.Context, ownerID string) ([]*model.ConditionalOrder, error) {
	return m.store.Conditionals().ListByOwner(ctx, ownerID)
}
