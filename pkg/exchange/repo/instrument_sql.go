package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type instrumentSQL struct {
	db *gorm.DB
}

func (r *instrumentSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *instrumentSQL) Create(ctx context.Context, in *model.Instrument) error {
	return translate(r.dbWithContext(ctx).Create(in).Error)
}

func (r *instrumentSQL) Get(ctx context.Context, id string) (*model.Instrument, error) {
	var in model.Instrument
	if err := r.dbWithContext(ctx).First(&in, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &in, nil
}

func (r *instrumentSQL) GetByName(ctx context.Context, name string) (*model.Instrument, error) {
	var in model.Instrument
	if err := r.dbWithContext(ctx).First(&in, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &in, nil
}

func (r *instrumentSQL) List(ctx context.Context) ([]*model.Instrument, error) {
	var out []*model.Instrument
	if err := r.dbWithContext(ctx).Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *instrumentSQL) SetMarkPrice(ctx context.Context, id string, price decimal.Decimal) error {
	res := r.dbWithContext(ctx).Model(&model.Instrument{}).
		Where("id = ?", id).
		Updates(map[string]any{"mark_price": price, "updated_at": time.Now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}
