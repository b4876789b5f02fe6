// Package exchange wires the trading and risk engine together and exposes
// the operation surface consumed by the API layer: order placement, books,
// positions, risk, conditional orders, funding and scheduler control.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/conditional"
	"github.com/joripage/skin-exchange/pkg/exchange/funding"
	"github.com/joripage/skin-exchange/pkg/exchange/marketmaker"
	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/oracle"
	"github.com/joripage/skin-exchange/pkg/exchange/risk"
	"github.com/joripage/skin-exchange/pkg/exchange/scheduler"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

// ErrInsufficientBalance rejects position opens whose margin exceeds the
// owner's available balance.
var ErrInsufficientBalance = matching.ErrInsufficientBalance

// Intervals configures the periodic engine tasks.
type Intervals struct {
	Liquidation      time.Duration `yaml:"liquidation"`
	MarketMaking     time.Duration `yaml:"market_making"`
	MarketMakingGap  time.Duration `yaml:"market_making_gap"`
	Funding          time.Duration `yaml:"funding"`
	ConditionalCheck time.Duration `yaml:"conditional_check"`
	HealthLog        time.Duration `yaml:"health_log"`
}

func DefaultIntervals() Intervals {
	return Intervals{
		Liquidation:      30 * time.Second,
		MarketMaking:     2 * time.Minute,
		MarketMakingGap:  2 * time.Second,
		Funding:          time.Hour,
		ConditionalCheck: 5 * time.Second,
		HealthLog:        5 * time.Minute,
	}
}

// Exchange aggregates the engine services. Construct with New and inject into
// the transport layer; there is no package-level instance.
type Exchange struct {
	Store       store.Store
	Matcher     *matching.Engine
	Risk        *risk.Engine
	MarketMaker *marketmaker.MarketMaker
	Funding     *funding.Manager
	Conditional *conditional.Manager
	Oracle      *oracle.Oracle
	Monitor     *scheduler.Monitor

	intervals Intervals
	log       *zap.Logger
}

func New(
	st store.Store,
	matcher *matching.Engine,
	riskEngine *risk.Engine,
	mm *marketmaker.MarketMaker,
	fundingMgr *funding.Manager,
	conditionalMgr *conditional.Manager,
	orc *oracle.Oracle,
	intervals Intervals,
	log *zap.Logger,
) *Exchange {
	x := &Exchange{
		Store:       st,
		Matcher:     matcher,
		Risk:        riskEngine,
		MarketMaker: mm,
		Funding:     fundingMgr,
		Conditional: conditionalMgr,
		Oracle:      orc,
		Monitor:     scheduler.NewMonitor(log),
		intervals:   intervals,
		log:         log,
	}
	x.registerTasks()
	return x
}

func (x *Exchange) registerTasks() {
	x.Monitor.Register(scheduler.Task{
		Name:     "liquidation-check",
		Interval: x.intervals.Liquidation,
		Critical: true,
		Run: func(ctx context.Context) error {
			if err := x.Risk.SendRiskWarnings(ctx); err != nil {
				x.log.Warn("risk warnings failed", zap.Error(err))
			}
			_, err := x.Risk.LiquidatePositions(ctx)
			return err
		},
	})
	x.Monitor.Register(scheduler.Task{
		Name:     "market-making",
		Interval: x.intervals.MarketMaking,
		Critical: true,
		Run:      x.runMarketMaking,
	})
	x.Monitor.Register(scheduler.Task{
		Name:     "funding",
		Interval: x.intervals.Funding,
		Critical: true,
		Run:      x.runFunding,
	})
	x.Monitor.Register(scheduler.Task{
		Name:     "conditional-triggers",
		Interval: x.intervals.ConditionalCheck,
		Critical: true,
		Run: func(ctx context.Context) error {
			_, err := x.Conditional.CheckTriggers(ctx)
			return err
		},
	})
	x.Monitor.Register(scheduler.Task{
		Name:     "health-log",
		Interval: x.intervals.HealthLog,
		Critical: false,
		Run:      x.Monitor.LogStatus,
	})
}

// runMarketMaking quotes every instrument in turn with a gap between them to
// bound load. One instrument's failure does not stop the rest.
func (x *Exchange) runMarketMaking(ctx context.Context) error {
	instruments, err := x.Store.Instruments().List(ctx)
	if err != nil {
		return err
	}
	for i, in := range instruments {
		if err := x.MarketMaker.PlaceMarketMakingOrders(ctx, in.ID); err != nil {
			x.log.Warn("market making failed for instrument",
				zap.String("instrument_id", in.ID),
				zap.Error(err))
		}
		if i < len(instruments)-1 && x.intervals.MarketMakingGap > 0 {
			select {
			case <-time.After(x.intervals.MarketMakingGap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (x *Exchange) runFunding(ctx context.Context) error {
	instruments, err := x.Store.Instruments().List(ctx)
	if err != nil {
		return err
	}
	for _, in := range instruments {
		if _, err := x.Funding.ApplyFundingRate(ctx, in.ID); err != nil {
			x.log.Warn("funding failed for instrument",
				zap.String("instrument_id", in.ID),
				zap.Error(err))
		}
	}
	return nil
}

// --- order surface ---

func (x *Exchange) PlaceOrder(ctx context.Context, req *matching.PlaceOrderRequest) (*model.Order, *matching.MatchResult, error) {
	return x.Matcher.PlaceOrder(ctx, req)
}

func (x *Exchange) CancelOrder(ctx context.Context, orderID, ownerID string) (bool, error) {
	return x.Matcher.CancelOrder(ctx, orderID, ownerID)
}

func (x *Exchange) GetOrderBook(ctx context.Context, instrumentID string) (*matching.OrderBook, error) {
	return x.Matcher.GetOrderBook(ctx, instrumentID, "")
}

func (x *Exchange) GetOrderBookDepth(ctx context.Context, instrumentID string, levels int) (*matching.Depth, error) {
	return x.Matcher.GetOrderBookDepth(ctx, instrumentID, levels)
}

func (x *Exchange) GetBestPrices(ctx context.Context, instrumentID string) (*matching.BestPrices, error) {
	return x.Matcher.GetBestPrices(ctx, instrumentID)
}

func (x *Exchange) GetMarketPrice(ctx context.Context, instrumentID string) (float64, error) {
	return x.Matcher.GetMarketPrice(ctx, instrumentID)
}

// --- position surface ---

type OpenPositionRequest struct {
	OwnerID      string
	InstrumentID string
	Intent       model.PositionIntent
	Quantity     int64
	Margin       float64
}

// OpenPosition debits the posted margin, fills the entry through the book
// with an IOC market order and opens the position at the fill VWAP. A zero
// fill refunds the margin and surfaces ErrNoLiquidity.
func (x *Exchange) OpenPosition(ctx context.Context, req *OpenPositionRequest) (*model.Position, error) {
	if req.Quantity <= 0 || req.Margin <= 0 {
		return nil, fmt.Errorf("%w: quantity and margin must be positive", matching.ErrInvalidOrder)
	}

	acct, err := x.Store.Accounts().Get(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	margin := decimal.NewFromFloat(model.Round2(req.Margin))
	if acct.Balance.LessThan(margin) {
		return nil, fmt.Errorf("%w: margin %.2f exceeds balance", ErrInsufficientBalance, req.Margin)
	}
	if err := x.Store.Accounts().Adjust(ctx, req.OwnerID, margin.Neg()); err != nil {
		return nil, err
	}

	_, match, err := x.Matcher.PlaceOrder(ctx, &matching.PlaceOrderRequest{
		OwnerID:      req.OwnerID,
		InstrumentID: req.InstrumentID,
		Side:         req.Intent.OpenSide(),
		Kind:         model.OrderKindMarket,
		Intent:       req.Intent,
		Quantity:     req.Quantity,
		TimeInForce:  model.OrderTimeInForceIOC,
	})
	if err == nil && match.FilledQuantity == 0 {
		err = fmt.Errorf("%w: entry order did not fill", matching.ErrNoLiquidity)
	}
	if err != nil {
		if rerr := x.Store.Accounts().Adjust(ctx, req.OwnerID, margin); rerr != nil {
			x.log.Error("margin refund failed",
				zap.String("owner_id", req.OwnerID),
				zap.Error(rerr))
		}
		return nil, err
	}

	pos := &model.Position{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		InstrumentID: req.InstrumentID,
		Intent:       req.Intent,
		EntryPrice:   model.DecimalFromPrice(match.AvgPrice),
		Size:         match.FilledQuantity,
		Margin:       margin,
		OpenedAt:     time.Now(),
	}
	if err := x.Store.Positions().Create(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// ClosePosition exits through the book with an IOC market order, realizes
// P&L at the fill VWAP and returns remaining equity (margin plus P&L,
// clamped at zero) to the owner's balance.
func (x *Exchange) ClosePosition(ctx context.Context, ownerID, positionID string) (*model.Position, error) {
	pos, err := x.Store.Positions().Get(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if pos.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if !pos.IsOpen() {
		return nil, fmt.Errorf("%w: position already closed", matching.ErrInvalidOrder)
	}

	_, match, err := x.Matcher.PlaceOrder(ctx, &matching.PlaceOrderRequest{
		OwnerID:      ownerID,
		InstrumentID: pos.InstrumentID,
		Side:         pos.Intent.CloseSide(),
		Kind:         model.OrderKindMarket,
		Intent:       pos.Intent,
		Quantity:     pos.Size,
		TimeInForce:  model.OrderTimeInForceIOC,
	})
	if err != nil {
		return nil, err
	}
	if match.FilledQuantity == 0 {
		return nil, fmt.Errorf("%w: close order did not fill", matching.ErrNoLiquidity)
	}

	exit := match.AvgPrice
	pnl := pos.UnrealizedPnL(exit)
	equity := pos.Margin.InexactFloat64() + pnl
	if equity < 0 {
		equity = 0
	}

	err = x.Store.Atomically(ctx, func(tx store.Store) error {
		pos.Close(exit, pnl, time.Now())
		if err := tx.Positions().Update(ctx, pos); err != nil {
			return err
		}
		if equity > 0 {
			return tx.Accounts().Adjust(ctx, ownerID, decimal.NewFromFloat(model.Round2(equity)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (x *Exchange) GetPositions(ctx context.Context, ownerID string) ([]*model.Position, error) {
	return x.Store.Positions().ListByOwner(ctx, ownerID)
}

// --- risk surface ---

func (x *Exchange) GetRiskSummary(ctx context.Context) ([]*risk.Metrics, error) {
	return x.Risk.MonitorPositions(ctx)
}

func (x *Exchange) TriggerLiquidationSweep(ctx context.Context) ([]*risk.LiquidationResult, error) {
	return x.Risk.LiquidatePositions(ctx)
}

// --- conditional order surface ---

func (x *Exchange) CreateStopLoss(ctx context.Context, ownerID, positionID string, triggerPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	return x.Conditional.CreateStopLoss(ctx, ownerID, positionID, triggerPrice, quantity)
}

func (x *Exchange) CreateTakeProfit(ctx context.Context, ownerID, positionID string, triggerPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	return x.Conditional.CreateTakeProfit(ctx, ownerID, positionID, triggerPrice, quantity)
}

func (x *Exchange) CreateStopLimit(ctx context.Context, ownerID, instrumentID string, side model.OrderSide, intent model.PositionIntent, triggerPrice, limitPrice float64, quantity int64) (*model.ConditionalOrder, error) {
	return x.Conditional.CreateStopLimit(ctx, ownerID, instrumentID, side, intent, triggerPrice, limitPrice, quantity)
}

func (x *Exchange) CancelConditionalOrder(ctx context.Context, id, ownerID string) (bool, error) {
	return x.Conditional.CancelConditionalOrder(ctx, id, ownerID)
}

func (x *Exchange) ListConditionalOrders(ctx context.Context, ownerID string) ([]*model.ConditionalOrder, error) {
	return x.Conditional.ListConditionalOrders(ctx, ownerID)
}

// --- funding / market maker surface ---

func (x *Exchange) GetFundingRate(ctx context.Context, instrumentID string) (*funding.Rate, error) {
	return x.Funding.CalculateFundingRate(ctx, instrumentID)
}

func (x *Exchange) ApplyFundingRate(ctx context.Context, instrumentID string) (*funding.ApplyResult, error) {
	return x.Funding.ApplyFundingRate(ctx, instrumentID)
}

func (x *Exchange) GetMarketMakerStats(instrumentID string) marketmaker.Stats {
	return x.MarketMaker.GetStats(instrumentID)
}

// --- scheduler surface ---

func (x *Exchange) StartScheduler(ctx context.Context) error { return x.Monitor.Start(ctx) }

func (x *Exchange) StopScheduler() { x.Monitor.Stop() }

func (x *Exchange) Healthy() bool { return x.Monitor.Healthy() }

func (x *Exchange) TaskStatus() []scheduler.TaskStatus { return x.Monitor.Status() }
