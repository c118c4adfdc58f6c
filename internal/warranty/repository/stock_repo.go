package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WarehouseRepository struct {
	db *gorm.DB
}

func NewWarehouseRepository(db *gorm.DB) *WarehouseRepository {
	return &WarehouseRepository{db: db}
}

func (r *WarehouseRepository) Create(ctx context.Context, w *entity.Warehouse) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *WarehouseRepository) Get(ctx context.Context, id string) (*entity.Warehouse, error) {
	var w entity.Warehouse
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&w).Error
	if err != nil {
		return nil, translate(err, "Warehouse", id)
	}
	return &w, nil
}

func (r *WarehouseRepository) List(ctx context.Context) ([]entity.Warehouse, error) {
	var list []entity.Warehouse
	err := r.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&list).Error
	return list, err
}

// SetHalted 冻结或解冻仓库账本
func (r *WarehouseRepository) SetHalted(ctx context.Context, id string, halted bool, reason string) error {
	res := r.db.WithContext(ctx).Model(&entity.Warehouse{}).Where("id = ?", id).Updates(map[string]interface{}{
		"ledger_halted": halted,
		"halt_reason":   reason,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Warehouse", id)
	}
	return nil
}

type StockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) GetForUpdate(ctx context.Context, warehouseID, typeComponentID string) (*entity.Stock, error) {
	var s entity.Stock
	err := r.db.WithContext(ctx).Clauses(forUpdate).
		Where("warehouse_id = ? AND type_component_id = ?", warehouseID, typeComponentID).
		First(&s).Error
	if err != nil {
		return nil, translate(err, "Stock", warehouseID+"/"+typeComponentID)
	}
	return &s, nil
}

// Create 并发创建同一计数行时以先到者为准
func (r *StockRepository) Create(ctx context.Context, s *entity.Stock) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "warehouse_id"}, {Name: "type_component_id"}},
		DoNothing: true,
	}).Create(s).Error
}

func (r *StockRepository) Update(ctx context.Context, s *entity.Stock) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Stock{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]interface{}{
			"quantity_in_stock": s.QuantityInStock,
			"quantity_reserved": s.QuantityReserved,
			"version":           s.Version + 1,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindConflict, "库存计数已被并发修改: %s", s.ID)
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}

func (r *StockRepository) CreateHold(ctx context.Context, h *entity.StockHold) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *StockRepository) GetHold(ctx context.Context, id string) (*entity.StockHold, error) {
	var h entity.StockHold
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&h).Error
	if err != nil {
		return nil, translate(err, "StockHold", id)
	}
	return &h, nil
}

func (r *StockRepository) SettleHold(ctx context.Context, id string, status entity.HoldStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.StockHold{}).
		Where("id = ? AND status = ?", id, entity.HoldStatusHeld).
		Updates(map[string]interface{}{"status": status, "settled_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *StockRepository) AppendTransaction(ctx context.Context, tx *entity.StockTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *StockRepository) ListTransactions(ctx context.Context, warehouseID string, page, size int) ([]entity.StockTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.StockTransaction{})
	if warehouseID != "" {
		query = query.Where("warehouse_id = ?", warehouseID)
	}
	var total int64
	query.Count(&total)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	var txs []entity.StockTransaction
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&txs).Error
	return txs, total, err
}
