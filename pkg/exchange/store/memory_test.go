package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

func TestMemoryStoreOrderLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	o := &model.Order{
		ID:           "o1",
		OwnerID:      "alice",
		InstrumentID: "skin-1",
		Side:         model.OrderSideBuy,
		Quantity:     10,
		Remaining:    10,
		Status:       model.OrderStatusOpen,
		CreatedAt:    time.Now(),
	}
	if err := s.Orders().Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Orders().Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Reads are copies: mutating the result must not leak back.
	got.Remaining = 0
	again, _ := s.Orders().Get(ctx, "o1")
	if again.Remaining != 10 {
		t.Fatalf("store leaked a shared pointer")
	}

	o.Status = model.OrderStatusCancelled
	if err := s.Orders().Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}

	resting, _ := s.Orders().ListResting(ctx, "skin-1", model.OrderSideBuy)
	if len(resting) != 0 {
		t.Fatalf("cancelled order must not be resting")
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Orders().Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Orders().Update(ctx, &model.Order{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if _, err := s.Accounts().Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Accounts().Adjust(ctx, "nobody", decimal.NewFromInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on adjust, got %v", err)
	}
}

func TestMemoryStoreAccountAdjust(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Accounts().Create(ctx, &model.Account{
		OwnerID: "alice",
		Balance: decimal.NewFromFloat(100.00),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Accounts().Adjust(ctx, "alice", decimal.NewFromFloat(-25.50)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	a, _ := s.Accounts().Get(ctx, "alice")
	if !a.Balance.Equal(decimal.NewFromFloat(74.50)) {
		t.Fatalf("expected 74.50, got %s", a.Balance)
	}
}

func TestMemoryStorePositionQueries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	open := &model.Position{ID: "p1", OwnerID: "alice", InstrumentID: "skin-1", OpenedAt: time.Now()}
	closedAt := time.Now()
	closed := &model.Position{ID: "p2", OwnerID: "alice", InstrumentID: "skin-1", ClosedAt: &closedAt}
	other := &model.Position{ID: "p3", OwnerID: "bob", InstrumentID: "skin-2"}
	for _, p := range []*model.Position{open, closed, other} {
		if err := s.Positions().Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, _ := s.Positions().ListOpen(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 open positions, got %d", len(all))
	}
	byInstr, _ := s.Positions().ListOpenByInstrument(ctx, "skin-1")
	if len(byInstr) != 1 || byInstr[0].ID != "p1" {
		t.Fatalf("expected only p1 open on skin-1")
	}
	byOwner, _ := s.Positions().ListByOwner(ctx, "alice")
	if len(byOwner) != 2 {
		t.Fatalf("expected 2 positions for alice, got %d", len(byOwner))
	}
}

func TestMemoryStoreAtomicallySerializes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Accounts().Create(ctx, &model.Account{OwnerID: "alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan struct{})
	const n = 20
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = s.Atomically(ctx, func(tx Store) error {
				return tx.Accounts().Adjust(ctx, "alice", decimal.NewFromInt(1))
			})
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	a, _ := s.Accounts().Get(ctx, "alice")
	if !a.Balance.Equal(decimal.NewFromInt(n)) {
		t.Fatalf("expected %d, got %s", n, a.Balance)
	}
}
