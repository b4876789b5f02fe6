package funding

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/oracle"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

type Direction string

const (
	DirectionNeutral   Direction = "NEUTRAL"
	DirectionLongPays  Direction = "LONG_PAYS"
	DirectionShortPays Direction = "SHORT_PAYS"
)

type Config struct {
	// NeutralBand is the deviation fraction under which no funding applies.
	NeutralBand float64 `yaml:"neutral_band"`
	// RateMultiplier maps deviation to an annualized rate: rate = |dev| * mult.
	RateMultiplier float64 `yaml:"rate_multiplier"`
	// MaxAnnualRate caps the annualized funding rate.
	MaxAnnualRate float64 `yaml:"max_annual_rate"`
}

func DefaultConfig() Config {
	return Config{
		NeutralBand:    0.02,
		RateMultiplier: 10,
		MaxAnnualRate:  0.50,
	}
}

type Rate struct {
	Annualized float64
	Direction  Direction
	Reason     string
}

type ApplyResult struct {
	Rate             *Rate
	PositionsCharged int
	TotalCharged     float64
}

// Manager charges the side of the book whose open interest holds the internal
// price away from the external reference. Funding is a unilateral debit: the
// paying side's owners are charged and no counter-credit is made to the other
// side.
type Manager struct {
	store   store.Store
	matcher *matching.Engine
	oracle  *oracle.Oracle
	cfg     Config
	log     *zap.Logger
}

func NewManager(st store.Store, matcher *matching.Engine, orc *oracle.Oracle, cfg Config, log *zap.Logger) *Manager {
	return &Manager{store: st, matcher: matcher, oracle: orc, cfg: cfg, log: log}
}

// CalculateFundingRate derives the annualized rate and paying side from the
// internal/external price deviation.
func (m *Manager) CalculateFundingRate(ctx context.Context, instrumentID string) (*Rate, error) {
	in, err := m.store.Instruments().Get(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	external, err := m.oracle.GetExternalPrice(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	internal, err := m.matcher.GetMarketPrice(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	dev := oracle.Deviation(internal, external)
	if math.Abs(dev) < m.cfg.NeutralBand {
		return &Rate{
			Direction: DirectionNeutral,
			Reason:    fmt.Sprintf("deviation %.2f%% inside neutral band", dev*100),
		}, nil
	}

	annual := math.Abs(dev) * m.cfg.RateMultiplier
	if annual > m.cfg.MaxAnnualRate {
		annual = m.cfg.MaxAnnualRate
	}

	dir := DirectionShortPays
	rel := "below"
	if dev > 0 {
		dir = DirectionLongPays
		rel = "above"
	}
	return &Rate{
		Annualized: annual,
		Direction:  dir,
		Reason:     fmt.Sprintf("internal price %.2f%% %s external", math.Abs(dev)*100, rel),
	}, nil
}

// ApplyFundingRate converts the annualized rate to an hourly charge and
// debits every open position on the paying side by notional * hourlyRate.
func (m *Manager) ApplyFundingRate(ctx context.Context, instrumentID string) (*ApplyResult, error) {
	rate, err := m.CalculateFundingRate(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	res := &ApplyResult{Rate: rate}
	if rate.Direction == DirectionNeutral || rate.Annualized == 0 {
		return res, nil
	}

	paying := model.PositionIntentLong
	if rate.Direction == DirectionShortPays {
		paying = model.PositionIntentShort
	}

	positions, err := m.store.Positions().ListOpenByInstrument(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	hourly := rate.Annualized / (365 * 24)
	err = m.store.Atomically(ctx, func(tx store.Store) error {
		for _, p := range positions {
			if p.Intent != paying {
				continue
			}
			notional := p.EntryPrice.InexactFloat64() * float64(p.Size)
			charge := model.Round2(notional * hourly)
			if charge <= 0 {
				continue
			}
			if err := tx.Accounts().Adjust(ctx, p.OwnerID, decimal.NewFromFloat(-charge)); err != nil {
				m.log.Warn("funding debit skipped",
					zap.String("position_id", p.ID),
					zap.String("owner_id", p.OwnerID),
					zap.Error(err))
				continue
			}
			res.PositionsCharged++
			res.TotalCharged = model.Round2(res.TotalCharged + charge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.PositionsCharged > 0 {
		m.log.Info("funding applied",
			zap.String("instrument_id", instrumentID),
			zap.String("direction", string(rate.Direction)),
			zap.Float64("annual_rate", rate.Annualized),
			zap.Int("positions", res.PositionsCharged),
			zap.Float64("total", res.TotalCharged))
	}
	return res, nil
}
