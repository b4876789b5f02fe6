package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

// MemoryStore is an in-process Store used by tests and benchmarks. Mutations
// apply immediately; Atomically serializes callers so a transaction is never
// interleaved with another writer.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	instruments  map[string]*model.Instrument
	orders       map[string]*model.Order
	fills        []*model.OrderFill
	positions    map[string]*model.Position
	conditionals map[string]*model.ConditionalOrder
	accounts     map[string]*model.Account
	events       []*model.OrderEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instruments:  make(map[string]*model.Instrument),
		orders:       make(map[string]*model.Order),
		positions:    make(map[string]*model.Position),
		conditionals: make(map[string]*model.ConditionalOrder),
		accounts:     make(map[string]*model.Account),
	}
}

func (s *MemoryStore) Instruments() InstrumentStore   { return (*memInstruments)(s) }
func (s *MemoryStore) Orders() OrderStore             { return (*memOrders)(s) }
func (s *MemoryStore) Fills() FillStore               { return (*memFills)(s) }
func (s *MemoryStore) Positions() PositionStore       { return (*memPositions)(s) }
func (s *MemoryStore) Conditionals() ConditionalStore { return (*memConditionals)(s) }
func (s *MemoryStore) Accounts() AccountStore         { return (*memAccounts)(s) }
func (s *MemoryStore) Events() EventStore             { return (*memEvents)(s) }

func (s *MemoryStore) Atomically(ctx context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

type memInstruments MemoryStore

func (m *memInstruments) Create(ctx context.Context, in *model.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *in
	m.instruments[in.ID] = &cp
	return nil
}

func (m *memInstruments) Get(ctx context.Context, id string) (*model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instruments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (m *memInstruments) GetByName(ctx context.Context, name string) (*model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, in := range m.instruments {
		if in.Name == name {
			cp := *in
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memInstruments) List(ctx context.Context) ([]*model.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Instrument, 0, len(m.instruments))
	for _, in := range m.instruments {
		cp := *in
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memInstruments) SetMarkPrice(ctx context.Context, id string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.instruments[id]
	if !ok {
		return ErrNotFound
	}
	in.MarkPrice = price
	in.UpdatedAt = time.Now()
	return nil
}

type memOrders MemoryStore

func (m *memOrders) Create(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) Get(ctx context.Context, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) Update(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return ErrNotFound
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) ListResting(ctx context.Context, instrumentID string, side model.OrderSide) ([]*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.InstrumentID == instrumentID && o.Side == side && o.Resting() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrders) ListByOwner(ctx context.Context, ownerID string) ([]*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.OwnerID == ownerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memFills MemoryStore

func (m *memFills) Create(ctx context.Context, f *model.OrderFill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.fills = append(m.fills, &cp)
	return nil
}

func (m *memFills) ListByOrder(ctx context.Context, orderID string) ([]*model.OrderFill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.OrderFill
	for _, f := range m.fills {
		if f.OrderID == orderID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFills) ListByInstrument(ctx context.Context, instrumentID string) ([]*model.OrderFill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.OrderFill
	for _, f := range m.fills {
		if f.InstrumentID == instrumentID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memPositions MemoryStore

func (m *memPositions) Create(ctx context.Context, p *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *memPositions) Get(ctx context.Context, id string) (*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPositions) Update(ctx context.Context, p *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *memPositions) ListOpen(ctx context.Context) ([]*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Position
	for _, p := range m.positions {
		if p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPositions) ListOpenByInstrument(ctx context.Context, instrumentID string) ([]*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Position
	for _, p := range m.positions {
		if p.IsOpen() && p.InstrumentID == instrumentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPositions) ListByOwner(ctx context.Context, ownerID string) ([]*model.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Position
	for _, p := range m.positions {
		if p.OwnerID == ownerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memConditionals MemoryStore

func (m *memConditionals) Create(ctx context.Context, c *model.ConditionalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.conditionals[c.ID] = &cp
	return nil
}

func (m *memConditionals) Get(ctx context.Context, id string) (*model.ConditionalOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conditionals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConditionals) Update(ctx context.Context, c *model.ConditionalOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conditionals[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.conditionals[c.ID] = &cp
	return nil
}

func (m *memConditionals) ListPending(ctx context.Context) ([]*model.ConditionalOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ConditionalOrder
	for _, c := range m.conditionals {
		if c.Status == model.ConditionalStatusPending {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConditionals) ListByOwner(ctx context.Context, ownerID string) ([]*model.ConditionalOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ConditionalOrder
	for _, c := range m.conditionals {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAccounts MemoryStore

func (m *memAccounts) Create(ctx context.Context, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.OwnerID] = &cp
	return nil
}

func (m *memAccounts) Get(ctx context.Context, ownerID string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Adjust(ctx context.Context, ownerID string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[ownerID]
	if !ok {
		return ErrNotFound
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = time.Now()
	return nil
}

type memEvents MemoryStore

func (m *memEvents) Create(ctx context.Context, ev *model.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *memEvents) BulkCreate(ctx context.Context, evs []*model.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range evs {
		cp := *ev
		m.events = append(m.events, &cp)
	}
	return nil
}
