package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joripage/skin-exchange/pkg/exchange/model"
)

type accountSQL struct {
	db *gorm.DB
}

func (r *accountSQL) dbWithContext(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *accountSQL) Create(ctx context.Context, a *model.Account) error {
	return translate(r.dbWithContext(ctx).Create(a).Error)
}

func (r *accountSQL) Get(ctx context.Context, ownerID string) (*model.Account, error) {
	var a model.Account
	if err := r.dbWithContext(ctx).First(&a, "owner_id = ?", ownerID).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *accountSQL) Adjust(ctx context.Context, ownerID string, delta decimal.Decimal) error {
	res := r.dbWithContext(ctx).Model(&model.Account{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}
