// Package repo is the postgres implementation of the store contract, built
// on gorm. Atomically maps to one database transaction.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/store"
)

type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Instruments() store.InstrumentStore   { return &instrumentSQL{db: s.db} }
func (s *SQLStore) Orders() store.OrderStore             { return &orderSQL{db: s.db} }
func (s *SQLStore) Fills() store.FillStore               { return &fillSQL{db: s.db} }
func (s *SQLStore) Positions() store.PositionStore       { return &positionSQL{db: s.db} }
func (s *SQLStore) Conditionals() store.ConditionalStore { return &conditionalSQL{db: s.db} }
func (s *SQLStore) Accounts() store.AccountStore         { return &accountSQL{db: s.db} }
func (s *SQLStore) Events() store.EventStore             { return &orderEventSQL{db: s.db} }

func (s *SQLStore) Atomically(ctx context.Context, fn func(store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSQLStore(tx))
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
