package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/journal"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

const (
	// priceTolerance keeps repeated float arithmetic from breaking the cross
	// check on prices that are equal at cent precision.
	priceTolerance = 0.001
	// marketPriceOffset is added past the opposite best so a resolved market
	// order is guaranteed to cross at least the top level.
	marketPriceOffset = 0.01
)

// MarkPriceCache receives the post-fill mark price. Satisfied by
// marketdata.PriceCache; optional and best effort.
type MarkPriceCache interface {
	SetMarkPrice(ctx context.Context, instrumentID string, price float64) error
}

// Engine runs price-time-priority matching for every instrument. All match
// attempts for one instrument serialize on a per-instrument mutex held across
// snapshot, match and commit: single-writer semantics per book.
type Engine struct {
	store   store.Store
	log     *zap.Logger
	journal *journal.Journal
	marks   MarkPriceCache

	locks sync.Map // instrumentID -> *sync.Mutex
}

type Option func(*Engine)

func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithMarkPriceCache(c MarkPriceCache) Option {
	return func(e *Engine) { e.marks = c }
}

func NewEngine(st store.Store, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{store: st, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lockFor(instrumentID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(instrumentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

type PlaceOrderRequest struct {
	OwnerID      string
	InstrumentID string
	Side         model.OrderSide
	Kind         model.OrderKind
	Intent       model.PositionIntent
	Price        float64 // ignored for MARKET
	Quantity     int64
	TimeInForce  model.OrderTimeInForce
}

// Fill is one executed match inside a MatchResult.
type Fill struct {
	MatchID      string
	MakerOrderID string
	TakerOrderID string
	Price        float64
	Quantity     int64
}

type MatchResult struct {
	Fills          []Fill
	FilledQuantity int64
	AvgPrice       float64 // volume-weighted, 0 when nothing filled
	Remaining      int64
}

// PlaceOrder validates, persists and immediately attempts to match a new
// order. Market orders resolve their execution price from the opposite best
// and never rest: any remainder is cancelled in the same commit.
func (e *Engine) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*model.Order, *MatchResult, error) {
	if req.Quantity <= 0 {
		return nil, nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	switch req.Kind {
	case model.OrderKindMarket, model.OrderKindLimit:
	default:
		return nil, nil, fmt.Errorf("%w: unknown order kind %q", ErrInvalidOrder, req.Kind)
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = model.OrderTimeInForceGTC
	}

	mu := e.lockFor(req.InstrumentID)
	mu.Lock()
	defer mu.Unlock()

	var price float64
	if req.Kind == model.OrderKindMarket {
		resolved, err := e.resolveMarketPrice(ctx, req.InstrumentID, req.Side, req.OwnerID)
		if err != nil {
			return nil, nil, err
		}
		price = resolved
	} else {
		if req.Price <= 0 {
			return nil, nil, fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
		}
		price = model.Round2(req.Price)
	}

	now := time.Now()
	order := &model.Order{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Kind:         req.Kind,
		Intent:       req.Intent,
		TimeInForce:  tif,
		Price:        model.DecimalFromPrice(price),
		Quantity:     req.Quantity,
		Remaining:    req.Quantity,
		Status:       model.OrderStatusPending,
		CreatedAt:    now,
	}
	if err := e.store.Orders().Create(ctx, order); err != nil {
		return nil, nil, err
	}

	e.record(ctx, model.EventOrderPlaced, order, price, req.Quantity)

	result, err := e.match(ctx, order)
	if err != nil {
		return order, nil, err
	}
	return order, result, nil
}

// MatchOrder re-runs matching for an already persisted order.
func (e *Engine) MatchOrder(ctx context.Context, orderID string) (*MatchResult, error) {
	order, err := e.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is terminal", ErrInvalidOrder, orderID)
	}

	mu := e.lockFor(order.InstrumentID)
	mu.Lock()
	defer mu.Unlock()
	return e.match(ctx, order)
}

// match walks the opposite side of the book in priority order and commits
// every computed fill in one transaction. Caller holds the instrument lock.
func (e *Engine) match(ctx context.Context, order *model.Order) (*MatchResult, error) {
	resting, err := e.store.Orders().ListResting(ctx, order.InstrumentID, order.Side.Opposite())
	if err != nil {
		return nil, err
	}
	book := newBookSide(order.Side.Opposite(), resting)

	now := time.Now()
	limit := order.Price.InexactFloat64()
	var fills []Fill
	var makers []*model.Order

	for order.Remaining > 0 {
		best, ok := book.bestPrice()
		if !ok || !crossable(order.Kind, order.Side, limit, best) {
			break
		}
		maker := book.popFront(best)
		if maker == nil {
			continue
		}
		if isSelfTrade(order, maker) {
			continue
		}

		qty := order.Remaining
		if maker.Remaining < qty {
			qty = maker.Remaining
		}
		// The resting order sets the execution price.
		px := model.Round2(best)

		maker.ApplyFill(qty, now)
		order.ApplyFill(qty, now)
		fills = append(fills, Fill{
			MatchID:      uuid.NewString(),
			MakerOrderID: maker.ID,
			TakerOrderID: order.ID,
			Price:        px,
			Quantity:     qty,
		})
		makers = append(makers, maker)

		if maker.Remaining > 0 {
			book.pushFront(best, maker)
		}
	}

	// FOK fills completely or not at all: a shortfall discards every
	// computed fill before anything is written.
	if order.TimeInForce == model.OrderTimeInForceFOK && order.Remaining > 0 {
		order.Remaining = order.Quantity
		order.Filled = 0
		order.FilledAt = nil
		order.Status = model.OrderStatusCancelled
		order.CancelledAt = &now
		if err := e.store.Orders().Update(ctx, order); err != nil {
			return nil, err
		}
		e.record(ctx, model.EventOrderCancelled, order, limit, order.Quantity)
		return &MatchResult{Remaining: order.Quantity}, nil
	}

	cancelRemainder := order.Remaining > 0 &&
		(order.Kind == model.OrderKindMarket || order.TimeInForce == model.OrderTimeInForceIOC)

	err = e.store.Atomically(ctx, func(tx store.Store) error {
		for i, f := range fills {
			maker := makers[i]
			pair := []*model.OrderFill{
				{
					ID:           uuid.NewString(),
					MatchID:      f.MatchID,
					OrderID:      maker.ID,
					OwnerID:      maker.OwnerID,
					InstrumentID: order.InstrumentID,
					Side:         maker.Side,
					Price:        model.DecimalFromPrice(f.Price),
					Quantity:     f.Quantity,
					CreatedAt:    now,
				},
				{
					ID:           uuid.NewString(),
					MatchID:      f.MatchID,
					OrderID:      order.ID,
					OwnerID:      order.OwnerID,
					InstrumentID: order.InstrumentID,
					Side:         order.Side,
					Price:        model.DecimalFromPrice(f.Price),
					Quantity:     f.Quantity,
					CreatedAt:    now,
				},
			}
			for _, fill := range pair {
				if err := tx.Fills().Create(ctx, fill); err != nil {
					return err
				}
			}
			if err := tx.Orders().Update(ctx, maker); err != nil {
				return err
			}
		}

		if cancelRemainder {
			order.Status = model.OrderStatusCancelled
			order.CancelledAt = &now
		} else if order.Status == model.OrderStatusPending {
			order.Status = model.OrderStatusOpen
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}

		if len(fills) > 0 {
			last := fills[len(fills)-1]
			return tx.Instruments().SetMarkPrice(ctx, order.InstrumentID, model.DecimalFromPrice(last.Price))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := summarize(order, fills)
	if len(fills) > 0 {
		e.record(ctx, model.EventOrderFilled, order, result.AvgPrice, result.FilledQuantity)
		e.publishMark(ctx, order.InstrumentID, fills[len(fills)-1].Price)
	}
	if cancelRemainder {
		e.record(ctx, model.EventOrderCancelled, order, limit, order.Remaining)
	}
	return result, nil
}

func summarize(order *model.Order, fills []Fill) *MatchResult {
	res := &MatchResult{Fills: fills, Remaining: order.Remaining}
	var notional float64
	for _, f := range fills {
		res.FilledQuantity += f.Quantity
		notional += f.Price * float64(f.Quantity)
	}
	if res.FilledQuantity > 0 {
		res.AvgPrice = model.Round2(notional / float64(res.FilledQuantity))
	}
	return res
}

// crossable decides whether the incoming order may trade at bookPrice.
// Market orders sweep every level; limit orders stop once their price no
// longer crosses, with a small tolerance for float robustness.
func crossable(kind model.OrderKind, side model.OrderSide, limit, bookPrice float64) bool {
	if kind == model.OrderKindMarket {
		return true
	}
	if side == model.OrderSideBuy {
		return limit >= bookPrice-priceTolerance
	}
	return limit <= bookPrice+priceTolerance
}

// resolveMarketPrice prices a market order one cent past the opposite best so
// it is guaranteed to cross. Self-owned resting orders do not count as
// liquidity.
func (e *Engine) resolveMarketPrice(ctx context.Context, instrumentID string, side model.OrderSide, ownerID string) (float64, error) {
	resting, err := e.store.Orders().ListResting(ctx, instrumentID, side.Opposite())
	if err != nil {
		return 0, err
	}

	var best float64
	found := false
	for _, o := range resting {
		if o.OwnerID == ownerID {
			continue
		}
		p := o.Price.InexactFloat64()
		if !found {
			best = p
			found = true
			continue
		}
		if side == model.OrderSideBuy && p < best {
			best = p
		}
		if side == model.OrderSideSell && p > best {
			best = p
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: empty %s side", ErrNoLiquidity, side.Opposite())
	}

	if side == model.OrderSideBuy {
		return model.Round2(best + marketPriceOffset), nil
	}
	return model.Round2(best - marketPriceOffset), nil
}

// CancelOrder is a compare-and-set on order status: it succeeds only for the
// owner's own order in a non-terminal state and idempotently reports false
// otherwise.
func (e *Engine) CancelOrder(ctx context.Context, orderID, ownerID string) (bool, error) {
	order, err := e.store.Orders().Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if order.OwnerID != ownerID {
		return false, nil
	}

	mu := e.lockFor(order.InstrumentID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a concurrent match may have terminated it.
	order, err = e.store.Orders().Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !order.CanCancel() {
		return false, nil
	}

	now := time.Now()
	order.Status = model.OrderStatusCancelled
	order.CancelledAt = &now
	if err := e.store.Orders().Update(ctx, order); err != nil {
		return false, err
	}
	e.record(ctx, model.EventOrderCancelled, order, order.Price.InexactFloat64(), order.Remaining)
	return true, nil
}

type OrderBook struct {
	Bids []*model.Order
	Asks []*model.Order
}

// GetOrderBook returns every resting order, bids best-first then asks
// best-first, time priority within a price level.
func (e *Engine) GetOrderBook(ctx context.Context, instrumentID, excludeOrderID string) (*OrderBook, error) {
	bids, err := e.restingSorted(ctx, instrumentID, model.OrderSideBuy, excludeOrderID)
	if err != nil {
		return nil, err
	}
	asks, err := e.restingSorted(ctx, instrumentID, model.OrderSideSell, excludeOrderID)
	if err != nil {
		return nil, err
	}
	return &OrderBook{Bids: bids, Asks: asks}, nil
}

func (e *Engine) restingSorted(ctx context.Context, instrumentID string, side model.OrderSide, excludeOrderID string) ([]*model.Order, error) {
	orders, err := e.store.Orders().ListResting(ctx, instrumentID, side)
	if err != nil {
		return nil, err
	}
	out := orders[:0]
	for _, o := range orders {
		if o.ID != excludeOrderID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Price.InexactFloat64(), out[j].Price.InexactFloat64()
		if pi != pj {
			if side == model.OrderSideBuy {
				return pi > pj
			}
			return pi < pj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type BestPrices struct {
	Bid    float64
	Ask    float64
	Spread float64
	HasBid bool
	HasAsk bool
}

func (e *Engine) GetBestPrices(ctx context.Context, instrumentID string) (*BestPrices, error) {
	book, err := e.GetOrderBook(ctx, instrumentID, "")
	if err != nil {
		return nil, err
	}
	bp := &BestPrices{}
	if len(book.Bids) > 0 {
		bp.Bid = model.Round2(book.Bids[0].Price.InexactFloat64())
		bp.HasBid = true
	}
	if len(book.Asks) > 0 {
		bp.Ask = model.Round2(book.Asks[0].Price.InexactFloat64())
		bp.HasAsk = true
	}
	if bp.HasBid && bp.HasAsk {
		bp.Spread = model.Round2(bp.Ask - bp.Bid)
	}
	return bp, nil
}

// GetMarketPrice is the midpoint of the best bid/ask when both exist, else
// whichever side exists, else the instrument's last traded price.
func (e *Engine) GetMarketPrice(ctx context.Context, instrumentID string) (float64, error) {
	bp, err := e.GetBestPrices(ctx, instrumentID)
	if err != nil {
		return 0, err
	}
	switch {
	case bp.HasBid && bp.HasAsk:
		return model.Round2((bp.Bid + bp.Ask) / 2), nil
	case bp.HasBid:
		return bp.Bid, nil
	case bp.HasAsk:
		return bp.Ask, nil
	}

	in, err := e.store.Instruments().Get(ctx, instrumentID)
	if err != nil {
		return 0, err
	}
	return model.Round2(in.MarkPrice.InexactFloat64()), nil
}

type DepthLevel struct {
	Price    float64
	Quantity int64
	Orders   int
}

type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// GetOrderBookDepth aggregates resting quantity and order count per price
// level, each side truncated to the requested number of levels.
func (e *Engine) GetOrderBookDepth(ctx context.Context, instrumentID string, levels int) (*Depth, error) {
	book, err := e.GetOrderBook(ctx, instrumentID, "")
	if err != nil {
		return nil, err
	}
	return &Depth{
		Bids: aggregateLevels(book.Bids, levels),
		Asks: aggregateLevels(book.Asks, levels),
	}, nil
}

func aggregateLevels(orders []*model.Order, max int) []DepthLevel {
	var out []DepthLevel
	for _, o := range orders {
		price := model.Round2(o.Price.InexactFloat64())
		if n := len(out); n > 0 && out[n-1].Price == price {
			out[n-1].Quantity += o.Remaining
			out[n-1].Orders++
			continue
		}
		if len(out) == max {
			break
		}
		out = append(out, DepthLevel{Price: price, Quantity: o.Remaining, Orders: 1})
	}
	return out
}

func (e *Engine) record(ctx context.Context, typ model.OrderEventType, order *model.Order, price float64, qty int64) {
	if e.journal == nil {
		return
	}
	e.journal.Record(ctx, &model.OrderEvent{
		Type:         typ,
		OrderID:      order.ID,
		OwnerID:      order.OwnerID,
		InstrumentID: order.InstrumentID,
		Price:        model.Round2(price),
		Quantity:     qty,
	})
}

func (e *Engine) publishMark(ctx context.Context, instrumentID string, price float64) {
	if e.marks == nil {
		return
	}
	if err := e.marks.SetMarkPrice(ctx, instrumentID, price); err != nil {
		e.log.Warn("mark price cache update failed",
			zap.String("instrument_id", instrumentID),
			zap.Error(err))
	}
}
