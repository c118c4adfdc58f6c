package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) Create(ctx context.Context, t *entity.StockTransferRequest) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransferRepository) Get(ctx context.Context, id string) (*entity.StockTransferRequest, error) {
	var t entity.StockTransferRequest
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).First(&t).Error
	if err != nil {
		return nil, translate(err, "StockTransferRequest", id)
	}
	return &t, nil
}

func (r *TransferRepository) List(ctx context.Context, f TransferFilter) ([]entity.StockTransferRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.StockTransferRequest{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.WarehouseID != "" {
		query = query.Where("requesting_warehouse_id = ? OR supplying_warehouse_id = ?", f.WarehouseID, f.WarehouseID)
	}
	var total int64
	query.Count(&total)
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = 20
	}
	var list []entity.StockTransferRequest
	err := query.Preload("Items").Order("created_at DESC").
		Offset((f.Page - 1) * f.Size).Limit(f.Size).Find(&list).Error
	return list, total, err
}

func (r *TransferRepository) Update(ctx context.Context, t *entity.StockTransferRequest, expected entity.TransferStatus) error {
	t.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(t).
		Where("status = ?", expected).
		Select("*").Omit("created_at", clause.Associations).
		Updates(t)
	return casResult(res, "StockTransferRequest", t.ID, expected)
}

func (r *TransferRepository) UpdateItem(ctx context.Context, item *entity.StockTransferItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}
