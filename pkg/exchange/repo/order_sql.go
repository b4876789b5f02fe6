package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type orderSQL struct {
	db *gorm.DB
}

func (r *orderSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *orderSQL) Create(ctx context.Context, o *model.Order) error {
	return translate(r.dbWithContext(ctx).Create(o).Error)
}

func (r *orderSQL) Get(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	if err := r.dbWithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *orderSQL) Update(ctx context.Context, o *model.Order) error {
	return translate(r.dbWithContext(ctx).Save(o).Error)
}

func (r *orderSQL) ListResting(ctx context.Context, instrumentID string, side model.OrderSide) ([]*model.Order, error) {
	var out []*model.Order
	err := r.dbWithContext(ctx).
		Where("instrument_id = ? AND side = ? AND status IN ? AND remaining > 0",
			instrumentID, side,
			[]model.OrderStatus{model.OrderStatusOpen, model.OrderStatusPartial}).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *orderSQL) ListByOwner(ctx context.Context, ownerID string) ([]*model.Order, error) {
	var out []*model.Order
	err := r.dbWithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
