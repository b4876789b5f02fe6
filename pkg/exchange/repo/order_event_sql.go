package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type orderEventSQL struct {
	db *gorm.DB
}

func (r *orderEventSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *orderEventSQL) Create(ctx context.Context, ev *model.OrderEvent) error {
	return translate(r.dbWithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ev).Error)
}

// BulkCreate archives a batch of journal events; replayed ids are ignored so
// the kafka consumer stays idempotent.
func (r *orderEventSQL) BulkCreate(ctx context.Context, evs []*model.OrderEvent) error {
	if len(evs) == 0 {
		return nil
	}
	return translate(r.dbWithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(evs).Error)
}
