package risk

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

type Level string

const (
	LevelSafe        Level = "SAFE"
	LevelWarning     Level = "WARNING"
	LevelDanger      Level = "DANGER"
	LevelLiquidation Level = "LIQUIDATION"
)

func severity(l Level) int {
	switch l {
	case LevelLiquidation:
		return 3
	case LevelDanger:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

type Config struct {
	WarningRatio     float64 `yaml:"warning_ratio"`
	DangerRatio      float64 `yaml:"danger_ratio"`
	LiquidationRatio float64 `yaml:"liquidation_ratio"`
	// MaintenanceBuffer is the fraction of posted margin reserved before the
	// liquidation price is reached.
	MaintenanceBuffer float64 `yaml:"maintenance_buffer"`
}

func DefaultConfig() Config {
	return Config{
		WarningRatio:      0.15,
		DangerRatio:       0.12,
		LiquidationRatio:  0.10,
		MaintenanceBuffer: 0.10,
	}
}

// Metrics is the margin snapshot of one open position.
type Metrics struct {
	Position         *model.Position
	MarkPrice        float64
	UnrealizedPnL    float64
	MarginRatio      float64
	LiquidationPrice float64
	Level            Level
}

type LiquidationResult struct {
	PositionID     string
	OwnerID        string
	Liquidated     bool
	ExitPrice      float64
	RealizedPnL    float64
	EquityReturned float64
	Reason         string
}

// Notifier receives WARNING/DANGER margin notifications. Delivery mechanics
// are outside the engine.
type Notifier interface {
	Notify(ctx context.Context, m *Metrics) error
}

// Engine scans open positions for margin health and force-closes positions
// past the liquidation threshold through the matching engine.
type Engine struct {
	store    store.Store
	matcher  *matching.Engine
	notifier Notifier
	cfg      Config
	log      *zap.Logger
}

func NewEngine(st store.Store, matcher *matching.Engine, cfg Config, log *zap.Logger) *Engine {
	return &Engine{store: st, matcher: matcher, cfg: cfg, log: log}
}

func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// MonitorPositions computes margin metrics for every open position, most
// severe first.
func (e *Engine) MonitorPositions(ctx context.Context) ([]*Metrics, error) {
	positions, err := e.store.Positions().ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	marks := make(map[string]float64)
	var out []*Metrics
	for _, p := range positions {
		mark, ok := marks[p.InstrumentID]
		if !ok {
			in, err := e.store.Instruments().Get(ctx, p.InstrumentID)
			if err != nil {
				e.log.Warn("risk scan skipped position, instrument missing",
					zap.String("position_id", p.ID),
					zap.String("instrument_id", p.InstrumentID))
				continue
			}
			mark = in.MarkPrice.InexactFloat64()
			marks[p.InstrumentID] = mark
		}
		out = append(out, e.evaluate(p, mark))
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := severity(out[i].Level), severity(out[j].Level)
		if si != sj {
			return si > sj
		}
		return out[i].MarginRatio < out[j].MarginRatio
	})
	return out, nil
}

func (e *Engine) evaluate(p *model.Position, mark float64) *Metrics {
	margin := p.Margin.InexactFloat64()
	entry := p.EntryPrice.InexactFloat64()
	size := float64(p.Size)

	pnl := p.UnrealizedPnL(mark)
	notional := mark * size

	ratio := 0.0
	if notional > 0 {
		ratio = (margin + pnl) / notional
	}

	// Distance the mark can move against entry before margin (less the
	// maintenance buffer) is consumed.
	room := margin * (1 - e.cfg.MaintenanceBuffer) / size
	liqPrice := entry - room
	if p.Intent == model.PositionIntentShort {
		liqPrice = entry + room
	}

	return &Metrics{
		Position:         p,
		MarkPrice:        mark,
		UnrealizedPnL:    model.Round2(pnl),
		MarginRatio:      ratio,
		LiquidationPrice: model.Round2(liqPrice),
		Level:            e.classify(ratio),
	}
}

func (e *Engine) classify(ratio float64) Level {
	switch {
	case ratio <= e.cfg.LiquidationRatio:
		return LevelLiquidation
	case ratio <= e.cfg.DangerRatio:
		return LevelDanger
	case ratio <= e.cfg.WarningRatio:
		return LevelWarning
	default:
		return LevelSafe
	}
}

// LiquidatePositions force-closes every position at the LIQUIDATION level by
// submitting an opposite-side IOC market order for the full size. Positions
// that find no liquidity stay open and are retried on the next cycle:
// liquidation is best effort, not a guarantee.
func (e *Engine) LiquidatePositions(ctx context.Context) ([]*LiquidationResult, error) {
	metrics, err := e.MonitorPositions(ctx)
	if err != nil {
		return nil, err
	}

	var results []*LiquidationResult
	for _, m := range metrics {
		if m.Level != LevelLiquidation {
			continue
		}
		res := e.liquidate(ctx, m.Position)
		results = append(results, res)
		if res.Liquidated {
			e.log.Info("position liquidated",
				zap.String("position_id", res.PositionID),
				zap.String("owner_id", res.OwnerID),
				zap.Float64("exit_price", res.ExitPrice),
				zap.Float64("realized_pnl", res.RealizedPnL))
		} else {
			e.log.Warn("liquidation failed, will retry",
				zap.String("position_id", res.PositionID),
				zap.String("reason", res.Reason))
		}
	}
	return results, nil
}

func (e *Engine) liquidate(ctx context.Context, p *model.Position) *LiquidationResult {
	res := &LiquidationResult{PositionID: p.ID, OwnerID: p.OwnerID}

	_, match, err := e.matcher.PlaceOrder(ctx, &matching.PlaceOrderRequest{
		OwnerID:      p.OwnerID,
		InstrumentID: p.InstrumentID,
		Side:         p.Intent.CloseSide(),
		Kind:         model.OrderKindMarket,
		Intent:       p.Intent,
		Quantity:     p.Size,
		TimeInForce:  model.OrderTimeInForceIOC,
	})
	if err != nil {
		if errors.Is(err, matching.ErrNoLiquidity) {
			res.Reason = "no liquidity"
		} else {
			res.Reason = err.Error()
		}
		return res
	}
	if match.FilledQuantity == 0 {
		res.Reason = "no crossable liquidity"
		return res
	}

	exit := match.AvgPrice
	pnl := p.UnrealizedPnL(exit)
	equity := p.Margin.InexactFloat64() + pnl
	if equity < 0 {
		// Equity cannot go negative to the account.
		equity = 0
	}

	err = e.store.Atomically(ctx, func(tx store.Store) error {
		pos, err := tx.Positions().Get(ctx, p.ID)
		if err != nil {
			return err
		}
		pos.Close(exit, pnl, time.Now())
		if err := tx.Positions().Update(ctx, pos); err != nil {
			return err
		}
		if equity > 0 {
			return tx.Accounts().Adjust(ctx, p.OwnerID, decimal.NewFromFloat(model.Round2(equity)))
		}
		return nil
	})
	if err != nil {
		res.Reason = err.Error()
		return res
	}

	res.Liquidated = true
	res.ExitPrice = exit
	res.RealizedPnL = model.Round2(pnl)
	res.EquityReturned = model.Round2(equity)
	return res
}

// SendRiskWarnings pushes WARNING and DANGER positions to the configured
// notifier.
func (e *Engine) SendRiskWarnings(ctx context.Context) error {
	if e.notifier == nil {
		return nil
	}
	metrics, err := e.MonitorPositions(ctx)
	if err != nil {
		return err
	}
	for _, m := range metrics {
		if m.Level != LevelWarning && m.Level != LevelDanger {
			continue
		}
		if err := e.notifier.Notify(ctx, m); err != nil {
			e.log.Warn("risk warning delivery failed",
				zap.String("position_id", m.Position.ID),
				zap.Error(err))
		}
	}
	return nil
}
