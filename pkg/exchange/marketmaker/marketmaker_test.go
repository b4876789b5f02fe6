package marketmaker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/oracle"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

const skinName = "AK-47 Redline"

type fixture struct {
	st      *store.MemoryStore
	matcher *matching.Engine
	source  *oracle.FixedSource
	mm      *MarketMaker
}

func newFixture(t *testing.T, mark, external, balance float64) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Instruments().Create(ctx, &model.Instrument{
		ID:        "skin-1",
		Name:      skinName,
		MarkPrice: model.DecimalFromPrice(mark),
	}))
	require.NoError(t, st.Accounts().Create(ctx, &model.Account{
		OwnerID: "market-maker",
		Balance: decimal.NewFromFloat(balance),
	}))

	matcher := matching.NewEngine(st, zap.NewNop())
	source := oracle.NewFixedSource("test", map[string]float64{skinName: external})
	orc := oracle.New(zap.NewNop(), []oracle.QuoteSource{source})
	mm := New(st, matcher, orc, DefaultConfig("market-maker"), zap.NewNop())
	return &fixture{st: st, matcher: matcher, source: source, mm: mm}
}

func TestTargetsSymmetricWithoutDeviation(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10000)

	bid, ask := f.mm.targets(100.00, 0)
	// half spread 0.002 on each side.
	assert.Equal(t, 99.80, bid)
	assert.Equal(t, 100.20, ask)
}

func TestTargetsSkewTowardCorrection(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10000)

	// Internal rich: ask pulled in, bid pushed out.
	richBid, richAsk := f.mm.targets(100.00, 0.01)
	symBid, _ := f.mm.targets(100.00, 0)
	assert.Less(t, richBid, symBid)
	assert.Less(t, richAsk-100.00, 100.00-richBid)

	// Internal cheap: bid pulled in, ask pushed out.
	cheapBid, cheapAsk := f.mm.targets(100.00, -0.01)
	assert.Greater(t, cheapAsk, richAsk)
	assert.Less(t, 100.00-cheapBid, cheapAsk-100.00)
}

func TestTargetsSpreadCapped(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10000)

	// Huge deviation: spread caps at MaxSpread (2%), half 1% each side, skewed.
	bid, ask := f.mm.targets(100.00, 1.0)
	assert.GreaterOrEqual(t, bid, 100.00*(1-0.02))
	assert.LessOrEqual(t, ask, 100.00*(1+0.02))
}

func TestPlaceMarketMakingOrders(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10000)
	ctx := context.Background()

	require.NoError(t, f.mm.PlaceMarketMakingOrders(ctx, "skin-1"))

	bp, err := f.matcher.GetBestPrices(ctx, "skin-1")
	require.NoError(t, err)
	assert.True(t, bp.HasBid)
	assert.True(t, bp.HasAsk)
	assert.Equal(t, 99.80, bp.Bid)
	assert.Equal(t, 100.20, bp.Ask)

	st := f.mm.GetStats("skin-1")
	assert.EqualValues(t, 2, st.QuotesPlaced)
}

func TestSecondRunKeepsQuotesWithinTolerance(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10000)
	ctx := context.Background()

	require.NoError(t, f.mm.PlaceMarketMakingOrders(ctx, "skin-1"))
	require.NoError(t, f.mm.PlaceMarketMakingOrders(ctx, "skin-1"))

	st := f.mm.GetStats("skin-1")
	assert.EqualValues(t, 2, st.QuotesPlaced, "unchanged quotes are not replaced")
	assert.EqualValues(t, 0, st.QuotesCancelled)
}

func TestDriftedQuotesCancelled(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 100000)
	ctx := context.Background()

	require.NoError(t, f.mm.PlaceMarketMakingOrders(ctx, "skin-1"))

	// External jumps: old quotes are far outside tolerance.
	f.source.SetPrice(skinName, 120.00)
	require.NoError(t, f.mm.PlaceMarketMakingOrders(ctx, "skin-1"))

	st := f.mm.GetStats("skin-1")
	assert.EqualValues(t, 2, st.QuotesCancelled)
	assert.EqualValues(t, 4, st.QuotesPlaced)
}

func TestInsufficientBalanceSkipsQuoting(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10)
	ctx := context.Background()

	err := f.mm.PlaceMarketMakingOrders(ctx, "skin-1")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	bp, _ := f.matcher.GetBestPrices(ctx, "skin-1")
	assert.False(t, bp.HasBid)
	assert.False(t, bp.HasAsk)

	st := f.mm.GetStats("skin-1")
	assert.EqualValues(t, 1, st.Skips)
}

func TestNoExternalPriceFailsCycle(t *testing.T) {
	f := newFixture(t, 100.00, 100.00, 10000)
	ctx := context.Background()

	require.NoError(t, f.st.Instruments().Create(ctx, &model.Instrument{
		ID:   "skin-2",
		Name: "unlisted",
	}))
	err := f.mm.PlaceMarketMakingOrders(ctx, "skin-2")
	assert.ErrorIs(t, err, oracle.ErrNoExternalPrice)
}
