package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type fillSQL struct {
	db *gorm.DB
}

func (r *fillSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *fillSQL) Create(ctx context.Context, f *model.OrderFill) error {
	return translate(r.dbWithContext(ctx).Create(f).Error)
}

func (r *fillSQL) ListByOrder(ctx context.Context, orderID string) ([]*model.OrderFill, error) {
	var out []*model.OrderFill
	err := r.dbWithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *fillSQL) ListByInstrument(ctx context.Context, instrumentID string) ([]*model.OrderFill, error) {
	var out []*model.OrderFill
	err := r.dbWithContext(ctx).
		Where("instrument_id = ?", instrumentID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
