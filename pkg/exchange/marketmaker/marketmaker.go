package marketmaker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/oracle"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

// ErrInsufficientBalance means the operating account cannot cover the quote
// exposure; placement is skipped for this cycle.
var ErrInsufficientBalance = matching.ErrInsufficientBalance

type Config struct {
	AccountID string `yaml:"account_id"`
	// BaseSpread is the resting spread fraction around the external price.
	BaseSpread float64 `yaml:"base_spread"`
	// DeviationFactor widens the spread proportionally to |deviation|.
	DeviationFactor float64 `yaml:"deviation_factor"`
	MaxSpread       float64 `yaml:"max_spread"`
	// Skew shifts the quote closer to external on the side that corrects the
	// deviation. 0 = symmetric, 1 = full one-sided bias.
	Skew           float64 `yaml:"skew"`
	QuoteSize      int64   `yaml:"quote_size"`
	PriceTolerance float64 `yaml:"price_tolerance"`
}

func DefaultConfig(accountID string) Config {
	return Config{
		AccountID:       accountID,
		BaseSpread:      0.004,
		DeviationFactor: 0.5,
		MaxSpread:       0.02,
		Skew:            0.5,
		QuoteSize:       10,
		PriceTolerance:  0.005,
	}
}

type Stats struct {
	QuotesPlaced    int64
	QuotesCancelled int64
	Skips           int64
	LastBid         float64
	LastAsk         float64
	LastRun         time.Time
}

// MarketMaker posts resting quotes around the external reference price so the
// internal book converges toward it. One instrument per call; instruments are
// independent.
type MarketMaker struct {
	store   store.Store
	matcher *matching.Engine
	oracle  *oracle.Oracle
	cfg     Config
	log     *zap.Logger

	mu     sync.Mutex
	quotes map[string][]string // instrumentID -> live quote order ids
	stats  map[string]*Stats
}

func New(st store.Store, matcher *matching.Engine, orc *oracle.Oracle, cfg Config, log *zap.Logger) *MarketMaker {
	return &MarketMaker{
		store:   st,
		matcher: matcher,
		oracle:  orc,
		cfg:     cfg,
		log:     log,
		quotes:  make(map[string][]string),
		stats:   make(map[string]*Stats),
	}
}

// PlaceMarketMakingOrders refreshes both quotes for one instrument.
func (m *MarketMaker) PlaceMarketMakingOrders(ctx context.Context, instrumentID string) error {
	in, err := m.store.Instruments().Get(ctx, instrumentID)
	if err != nil {
		return err
	}
	external, err := m.oracle.GetExternalPrice(ctx, in.Name)
	if err != nil {
		return err
	}
	internal, err := m.matcher.GetMarketPrice(ctx, instrumentID)
	if err != nil {
		return err
	}

	dev := oracle.Deviation(internal, external)
	targetBid, targetAsk := m.targets(external, dev)

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.statsLocked(instrumentID)
	st.LastRun = time.Now()
	st.LastBid, st.LastAsk = targetBid, targetAsk

	m.cancelDrifted(ctx, instrumentID, targetBid, targetAsk, st)

	best, err := m.matcher.GetBestPrices(ctx, instrumentID)
	if err != nil {
		return err
	}
	// A better quote already resting within tolerance makes ours redundant.
	placeBid := !(best.HasBid && best.Bid >= targetBid*(1-m.cfg.PriceTolerance))
	placeAsk := !(best.HasAsk && best.Ask <= targetAsk*(1+m.cfg.PriceTolerance))
	if !placeBid && !placeAsk {
		return nil
	}

	if err := m.checkBalance(ctx, targetBid, targetAsk, placeBid, placeAsk); err != nil {
		st.Skips++
		return err
	}

	if placeBid {
		if err := m.quote(ctx, instrumentID, model.OrderSideBuy, targetBid, st); err != nil {
			return err
		}
	}
	if placeAsk {
		if err := m.quote(ctx, instrumentID, model.OrderSideSell, targetAsk, st); err != nil {
			return err
		}
	}
	return nil
}

// targets centers the spread on the external price, widened by deviation and
// skewed so the correcting side sits closer to external.
func (m *MarketMaker) targets(external, dev float64) (bid, ask float64) {
	spread := m.cfg.BaseSpread + math.Abs(dev)*m.cfg.DeviationFactor
	if spread > m.cfg.MaxSpread {
		spread = m.cfg.MaxSpread
	}
	half := spread / 2

	bidOff, askOff := half, half
	if dev > 0 {
		// Internal trades rich: pull the ask in to invite selling.
		askOff = half * (1 - m.cfg.Skew)
		bidOff = half * (1 + m.cfg.Skew)
	} else if dev < 0 {
		bidOff = half * (1 - m.cfg.Skew)
		askOff = half * (1 + m.cfg.Skew)
	}

	return model.Round2(external * (1 - bidOff)), model.Round2(external * (1 + askOff))
}

func (m *MarketMaker) cancelDrifted(ctx context.Context, instrumentID string, targetBid, targetAsk float64, st *Stats) {
	var live []string
	for _, id := range m.quotes[instrumentID] {
		o, err := m.store.Orders().Get(ctx, id)
		if err != nil || !o.Resting() {
			continue
		}
		target := targetBid
		if o.Side == model.OrderSideSell {
			target = targetAsk
		}
		price := o.Price.InexactFloat64()
		if target > 0 && math.Abs(price-target)/target > m.cfg.PriceTolerance {
			if ok, err := m.matcher.CancelOrder(ctx, id, m.cfg.AccountID); err == nil && ok {
				st.QuotesCancelled++
				continue
			}
		}
		live = append(live, id)
	}
	m.quotes[instrumentID] = live
}

func (m *MarketMaker) checkBalance(ctx context.Context, targetBid, targetAsk float64, placeBid, placeAsk bool) error {
	acct, err := m.store.Accounts().Get(ctx, m.cfg.AccountID)
	if err != nil {
		return err
	}
	var exposure float64
	if placeBid {
		exposure += targetBid * float64(m.cfg.QuoteSize)
	}
	if placeAsk {
		exposure += targetAsk * float64(m.cfg.QuoteSize)
	}
	if acct.Balance.InexactFloat64() < exposure {
		return fmt.Errorf("%w: need %.2f", ErrInsufficientBalance, exposure)
	}
	return nil
}

func (m *MarketMaker) quote(ctx context.Context, instrumentID string, side model.OrderSide, price float64, st *Stats) error {
	intent := model.PositionIntentLong
	if side == model.OrderSideSell {
		intent = model.PositionIntentShort
	}
	order, _, err := m.matcher.PlaceOrder(ctx, &matching.PlaceOrderRequest{
		OwnerID:      m.cfg.AccountID,
		InstrumentID: instrumentID,
		Side:         side,
		Kind:         model.OrderKindLimit,
		Intent:       intent,
		Price:        price,
		Quantity:     m.cfg.QuoteSize,
		TimeInForce:  model.OrderTimeInForceGTC,
	})
	if err != nil {
		return err
	}
	m.quotes[instrumentID] = append(m.quotes[instrumentID], order.ID)
	st.QuotesPlaced++
	return nil
}

func (m *MarketMaker) statsLocked(instrumentID string) *Stats {
	st, ok := m.stats[instrumentID]
	if !ok {
		st = &Stats{}
		m.stats[instrumentID] = st
	}
	return st
}

// GetStats returns a copy of the per-instrument quoting stats.
func (m *MarketMaker) GetStats(instrumentID string) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.statsLocked(instrumentID)
}
