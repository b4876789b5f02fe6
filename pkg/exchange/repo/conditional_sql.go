package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type conditionalSQL struct {
	db *gorm.DB
}

func (r *conditionalSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *conditionalSQL) Create(ctx context.Context, c *model.ConditionalOrder) error {
	return translate(r.dbWithContext(ctx).Create(c).Error)
}

func (r *conditionalSQL) Get(ctx context.Context, id string) (*model.ConditionalOrder, error) {
	var c model.ConditionalOrder
	if err := r.dbWithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *conditionalSQL) Update(ctx context.Context, c *model.ConditionalOrder) error {
	return translate(r.dbWithContext(ctx).Save(c).Error)
}

func (r *conditionalSQL) ListPending(ctx context.Context) ([]*model.ConditionalOrder, error) {
	var out []*model.ConditionalOrder
	err := r.dbWithContext(ctx).
		Where("status = ?", model.ConditionalStatusPending).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *conditionalSQL) ListByOwner(ctx context.Context, ownerID string) ([]*model.ConditionalOrder, error) {
	var out []*model.ConditionalOrder
	err := r.dbWithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
