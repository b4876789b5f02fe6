package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type positionSQL struct {
	db *gorm.DB
}

func (r *positionSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *positionSQL) Create(ctx context.Context, p *model.Position) error {
	return translate(r.dbWithContext(ctx).Create(p).Error)
}

func (r *positionSQL) Get(ctx context.Context, id string) (*model.Position, error) {
	var p model.Position
	if err := r.dbWithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *positionSQL) Update(ctx context.Context, p *model.Position) error {
	return translate(r.dbWithContext(ctx).Save(p).Error)
}

func (r *positionSQL) ListOpen(ctx context.Context) ([]*model.Position, error) {
	var out []*model.Position
	if err := r.dbWithContext(ctx).Where("closed_at IS NULL").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *positionSQL) ListOpenByInstrument(ctx context.Context, instrumentID string) ([]*model.Position, error) {
	var out []*model.Position
	err := r.dbWithContext(ctx).
		Where("closed_at IS NULL AND instrument_id = ?", instrumentID).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *positionSQL) ListByOwner(ctx context.Context, ownerID string) ([]*model.Position, error) {
	var out []*model.Position
	err := r.dbWithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("opened_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
