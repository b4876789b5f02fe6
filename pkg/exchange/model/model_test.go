package model

import (
	"testing"
	"time"
)

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{100.004, 100.00},
		{100.006, 100.01},
		{100.0833, 100.08},
		{99.999, 100.00},
		{-1.006, -1.01},
		{0, 0},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestOrderApplyFill(t *testing.T) {
	o := &Order{Quantity: 10, Remaining: 10, Status: OrderStatusOpen}
	now := time.Now()

	o.ApplyFill(4, now)
	if o.Status != OrderStatusPartial || o.Filled != 4 || o.Remaining != 6 {
		t.Fatalf("partial fill wrong: %+v", o)
	}

	o.ApplyFill(6, now)
	if o.Status != OrderStatusFilled || o.Remaining != 0 {
		t.Fatalf("full fill wrong: %+v", o)
	}
	if o.FilledAt == nil {
		t.Fatalf("expected FilledAt set")
	}
	if o.Filled+o.Remaining != o.Quantity {
		t.Fatalf("conservation broken")
	}
}

func TestOrderResting(t *testing.T) {
	o := &Order{Quantity: 10, Remaining: 10, Status: OrderStatusOpen}
	if !o.Resting() {
		t.Fatalf("open order with remaining must rest")
	}
	o.Status = OrderStatusCancelled
	if o.Resting() {
		t.Fatalf("cancelled order must not rest")
	}
	o.Status = OrderStatusPartial
	o.Remaining = 0
	if o.Resting() {
		t.Fatalf("zero remaining must not rest")
	}
}

func TestPositionIntentSides(t *testing.T) {
	if PositionIntentLong.OpenSide() != OrderSideBuy || PositionIntentLong.CloseSide() != OrderSideSell {
		t.Fatalf("long sides wrong")
	}
	if PositionIntentShort.OpenSide() != OrderSideSell || PositionIntentShort.CloseSide() != OrderSideBuy {
		t.Fatalf("short sides wrong")
	}
}

func TestPositionUnrealizedPnL(t *testing.T) {
	long := &Position{Intent: PositionIntentLong, EntryPrice: DecimalFromPrice(100), Size: 10}
	if got := long.UnrealizedPnL(110); got != 100 {
		t.Fatalf("long pnl = %v, want 100", got)
	}
	short := &Position{Intent: PositionIntentShort, EntryPrice: DecimalFromPrice(100), Size: 10}
	if got := short.UnrealizedPnL(110); got != -100 {
		t.Fatalf("short pnl = %v, want -100", got)
	}
}

func TestSideOpposite(t *testing.T) {
	if OrderSideBuy.Opposite() != OrderSideSell || OrderSideSell.Opposite() != OrderSideBuy {
		t.Fatalf("opposite sides wrong")
	}
}
