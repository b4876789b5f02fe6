package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joripage/skin-exchange/pkg/exchange/conditional"
	"github.com/joripage/skin-exchange/pkg/exchange/funding"
	"github.com/joripage/skin-exchange/pkg/exchange/marketmaker"
	"github.com/joripage/skin-exchange/pkg/exchange/matching"
	"github.com/joripage/skin-exchange/pkg/exchange/model"
	"github.com/joripage/skin-exchange/pkg/exchange/oracle"
	"github.com/joripage/skin-exchange/pkg/exchange/risk"
	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

const skinName = "AK-47 Redline"

func newExchange(t *testing.T) (*Exchange, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Instruments().Create(ctx, &model.Instrument{
		ID:        "skin-1",
		Name:      skinName,
		MarkPrice: model.DecimalFromPrice(100),
	}))

	log := zap.NewNop()
	matcher := matching.NewEngine(st, log)
	src := oracle.NewFixedSource("test", map[string]float64{skinName: 100})
	orc := oracle.New(log, []oracle.QuoteSource{src})
	riskEngine := risk.NewEngine(st, matcher, risk.DefaultConfig(), log)
	mm := marketmaker.New(st, matcher, orc, marketmaker.DefaultConfig("market-maker"), log)
	fundingMgr := funding.NewManager(st, matcher, orc, funding.DefaultConfig(), log)
	conditionalMgr := conditional.NewManager(st, matcher, log)

	return New(st, matcher, riskEngine, mm, fundingMgr, conditionalMgr, orc, DefaultIntervals(), log), st
}

func fundAccount(t *testing.T, st *store.MemoryStore, owner string, balance float64) {
	t.Helper()
	require.NoError(t, st.Accounts().Create(context.Background(), &model.Account{
		OwnerID: owner,
		Balance: decimal.NewFromFloat(balance),
	}))
}

func addAsk(t *testing.T, x *Exchange, owner string, price float64, qty int64) {
	t.Helper()
	_, _, err := x.PlaceOrder(context.Background(), &matching.PlaceOrderRequest{
		OwnerID:      owner,
		InstrumentID: "skin-1",
		Side:         model.OrderSideSell,
		Kind:         model.OrderKindLimit,
		Price:        price,
		Quantity:     qty,
	})
	require.NoError(t, err)
}

func addBid(t *testing.T, x *Exchange, owner string, price float64, qty int64) {
	t.Helper()
	_, _, err := x.PlaceOrder(context.Background(), &matching.PlaceOrderRequest{
		OwnerID:      owner,
		InstrumentID: "skin-1",
		Side:         model.OrderSideBuy,
		Kind:         model.OrderKindLimit,
		Price:        price,
		Quantity:     qty,
	})
	require.NoError(t, err)
}

func TestOpenPosition(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "buyer", 1000)
	addAsk(t, x, "seller", 100.00, 10)

	pos, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Size)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100)), "entry at fill vwap, got %s", pos.EntryPrice)
	assert.True(t, pos.IsOpen())

	acct, _ := st.Accounts().Get(ctx, "buyer")
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(800)), "margin debited, got %s", acct.Balance)

	positions, err := x.GetPositions(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestOpenPositionInsufficientBalance(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "buyer", 100)
	addAsk(t, x, "seller", 100.00, 10)

	_, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	acct, _ := st.Accounts().Get(ctx, "buyer")
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(100)), "balance untouched on rejection")
}

func TestOpenPositionRefundsOnNoLiquidity(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "buyer", 1000)

	_, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	assert.ErrorIs(t, err, matching.ErrNoLiquidity)

	acct, _ := st.Accounts().Get(ctx, "buyer")
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1000)), "margin refunded, got %s", acct.Balance)
}

func TestClosePositionRealizesPnL(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "buyer", 1000)
	addAsk(t, x, "seller", 100.00, 10)

	pos, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	require.NoError(t, err)

	// The market rallies: charlie bids above entry.
	addBid(t, x, "charlie", 110.00, 10)

	closed, err := x.ClosePosition(ctx, "buyer", pos.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
	assert.True(t, closed.ExitPrice.Equal(decimal.NewFromInt(110)), "got %s", closed.ExitPrice)
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromInt(100)), "got %s", closed.RealizedPnL)

	// 800 after margin debit, plus margin 200 and pnl 100 back.
	acct, _ := st.Accounts().Get(ctx, "buyer")
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1100)), "got %s", acct.Balance)
}

func TestClosePositionLossClampsAtZeroEquity(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "buyer", 1000)
	addAsk(t, x, "seller", 100.00, 10)

	pos, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	require.NoError(t, err)

	// The only exit is deep under water: loss exceeds margin.
	addBid(t, x, "charlie", 70.00, 10)

	closed, err := x.ClosePosition(ctx, "buyer", pos.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())

	// Loss of 300 on 200 margin: nothing comes back.
	acct, _ := st.Accounts().Get(ctx, "buyer")
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(800)), "got %s", acct.Balance)
}

func TestMatchedPairPnLIsZeroSum(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "long", 1000)
	fundAccount(t, st, "short", 1000)

	addAsk(t, x, "makerA", 100.00, 10)
	longPos, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "long",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	require.NoError(t, err)

	addBid(t, x, "makerB", 100.00, 10)
	shortPos, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "short",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentShort,
		Quantity:     10,
		Margin:       200,
	})
	require.NoError(t, err)

	require.True(t, longPos.EntryPrice.Equal(shortPos.EntryPrice), "pair must share an entry")

	// Both sides exit at 110.
	addBid(t, x, "makerC", 110.00, 10)
	closedLong, err := x.ClosePosition(ctx, "long", longPos.ID)
	require.NoError(t, err)

	addAsk(t, x, "makerD", 110.00, 10)
	closedShort, err := x.ClosePosition(ctx, "short", shortPos.ID)
	require.NoError(t, err)

	assert.True(t, closedLong.RealizedPnL.Equal(decimal.NewFromInt(100)), "got %s", closedLong.RealizedPnL)
	assert.True(t, closedShort.RealizedPnL.Equal(decimal.NewFromInt(-100)), "got %s", closedShort.RealizedPnL)

	sum := closedLong.RealizedPnL.Add(closedShort.RealizedPnL)
	assert.True(t, sum.IsZero(), "matched pair pnl must sum to zero, got %s", sum)
}

func TestClosePositionOwnershipAndState(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()

	fundAccount(t, st, "buyer", 1000)
	addAsk(t, x, "seller", 100.00, 10)

	pos, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       200,
	})
	require.NoError(t, err)

	_, err = x.ClosePosition(ctx, "mallory", pos.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	addBid(t, x, "charlie", 100.00, 10)
	_, err = x.ClosePosition(ctx, "buyer", pos.ID)
	require.NoError(t, err)

	// Double close rejected.
	_, err = x.ClosePosition(ctx, "buyer", pos.ID)
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)
}

func TestOpenPositionValidation(t *testing.T) {
	x, st := newExchange(t)
	ctx := context.Background()
	fundAccount(t, st, "buyer", 1000)

	_, err := x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     0,
		Margin:       200,
	})
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)

	_, err = x.OpenPosition(ctx, &OpenPositionRequest{
		OwnerID:      "buyer",
		InstrumentID: "skin-1",
		Intent:       model.PositionIntentLong,
		Quantity:     10,
		Margin:       -1,
	})
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)
}

func TestSchedulerLifecycle(t *testing.T) {
	x, _ := newExchange(t)

	assert.False(t, x.Healthy())
	require.NoError(t, x.StartScheduler(context.Background()))

	deadline := time.After(time.Second)
	for !x.Healthy() {
		select {
		case <-deadline:
			t.Fatalf("scheduler did not become healthy")
		case <-time.After(5 * time.Millisecond):
		}
	}

	status := x.TaskStatus()
	names := map[string]bool{}
	for _, st := range status {
		names[st.Name] = true
	}
	for _, want := range []string{"liquidation-check", "market-making", "funding", "conditional-triggers", "health-log"} {
		assert.True(t, names[want], "missing task %s", want)
	}

	x.StopScheduler()
	assert.False(t, x.Healthy())
}
