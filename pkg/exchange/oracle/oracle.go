package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/marketdata"
)

// ErrNoExternalPrice means every configured quote source was unavailable.
var ErrNoExternalPrice = errors.New("no external price available")

// QuoteSource is one independent external price feed for skins.
type QuoteSource interface {
	Name() string
	Quote(ctx context.Context, instrumentName string) (float64, error)
}

// Oracle aggregates external reference prices across quote sources. The
// aggregate is the simple average of the sources that answered. A short-TTL
// redis cache in front of the sources bounds outbound calls from the
// scheduled tasks.
type Oracle struct {
	sources []QuoteSource
	cache   *marketdata.PriceCache
	log     *zap.Logger
}

type Option func(*Oracle)

func WithCache(c *marketdata.PriceCache) Option {
	return func(o *Oracle) { o.cache = c }
}

func New(log *zap.Logger, sources []QuoteSource, opts ...Option) *Oracle {
	o := &Oracle{sources: sources, log: log}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetExternalPrice returns the aggregated external price for an instrument
// name, or ErrNoExternalPrice when every source fails.
func (o *Oracle) GetExternalPrice(ctx context.Context, instrumentName string) (float64, error) {
	if o.cache != nil {
		if price, err := o.cache.GetExternalPrice(ctx, instrumentName); err == nil && price > 0 {
			return price, nil
		}
	}

	var sum float64
	var n int
	for _, src := range o.sources {
		price, err := src.Quote(ctx, instrumentName)
		if err != nil {
			o.log.Debug("quote source unavailable",
				zap.String("source", src.Name()),
				zap.String("instrument", instrumentName),
				zap.Error(err))
			continue
		}
		sum += price
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoExternalPrice, instrumentName)
	}

	price := model.Round2(sum / float64(n))
	if o.cache != nil {
		if err := o.cache.SetExternalPrice(ctx, instrumentName, price); err != nil {
			o.log.Debug("quote cache write failed", zap.Error(err))
		}
	}
	return price, nil
}

// Deviation is the fractional distance of the internal price from the
// external reference: positive when the internal market trades rich.
func Deviation(internal, external float64) float64 {
	if external == 0 {
		return 0
	}
	return (internal - external) / external
}

// FixedSource is a static quote source for tests and local wiring.
type FixedSource struct {
	name   string
	mu     sync.RWMutex
	prices map[string]float64
}

func NewFixedSource(name string, prices map[string]float64) *FixedSource {
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &FixedSource{name: name, prices: prices}
}

func (s *FixedSource) Name() string { return s.name }

func (s *FixedSource) SetPrice(instrumentName string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[instrumentName] = price
}

func (s *FixedSource) Quote(ctx context.Context, instrumentName string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[instrumentName]
	if !ok {
		return 0, fmt.Errorf("%s: no quote for %s", s.name, instrumentName)
	}
	return price, nil
}
