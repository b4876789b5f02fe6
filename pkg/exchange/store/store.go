package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

// ErrNotFound is returned when an entity does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract consumed by every engine component.
// Atomically runs fn inside one transaction; all mutations made through the
// Store passed to fn commit or roll back as a unit.
type Store interface {
	Instruments() InstrumentStore
	Orders() OrderStore
	Fills() FillStore
	Positions() PositionStore
	Conditionals() ConditionalStore
	Accounts() AccountStore
	Events() EventStore

	Atomically(ctx context.Context, fn func(Store) error) error
}

type InstrumentStore interface {
	Create(ctx context.Context, in *model.Instrument) error
	Get(ctx context.Context, id string) (*model.Instrument, error)
	GetByName(ctx context.Context, name string) (*model.Instrument, error)
	List(ctx context.Context) ([]*model.Instrument, error)
	SetMarkPrice(ctx context.Context, id string, price decimal.Decimal) error
}

type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	Get(ctx context.Context, id string) (*model.Order, error)
	Update(ctx context.Context, o *model.Order) error
	// ListResting returns OPEN/PARTIAL orders with remaining quantity on one
	// side of an instrument's book. No ordering is guaranteed; the matching
	// engine imposes price-time priority itself.
	ListResting(ctx context.Context, instrumentID string, side model.OrderSide) ([]*model.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Order, error)
}

type FillStore interface {
	Create(ctx context.Context, f *model.OrderFill) error
	ListByOrder(ctx context.Context, orderID string) ([]*model.OrderFill, error)
	ListByInstrument(ctx context.Context, instrumentID string) ([]*model.OrderFill, error)
}

type PositionStore interface {
	Create(ctx context.Context, p *model.Position) error
	Get(ctx context.Context, id string) (*model.Position, error)
	Update(ctx context.Context, p *model.Position) error
	ListOpen(ctx context.Context) ([]*model.Position, error)
	ListOpenByInstrument(ctx context.Context, instrumentID string) ([]*model.Position, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Position, error)
}

type ConditionalStore interface {
	Create(ctx context.Context, c *model.ConditionalOrder) error
	Get(ctx context.Context, id string) (*model.ConditionalOrder, error)
	Update(ctx context.Context, c *model.ConditionalOrder) error
	ListPending(ctx context.Context) ([]*model.ConditionalOrder, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.ConditionalOrder, error)
}

type AccountStore interface {
	Create(ctx context.Context, a *model.Account) error
	Get(ctx context.Context, ownerID string) (*model.Account, error)
	// Adjust adds delta (which may be negative) to the owner's balance.
	Adjust(ctx context.Context, ownerID string, delta decimal.Decimal) error
}

type EventStore interface {
	Create(ctx context.Context, ev *model.OrderEvent) error
	BulkCreate(ctx context.Context, evs []*model.OrderEvent) error
}
