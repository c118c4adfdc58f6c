package repository

import (
	"context"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/jmoiron/sqlx"
)

// SQLStockReader 直接查询计数表生成快照，与 gorm 共用连接池
type SQLStockReader struct {
	DB *sqlx.DB
}

func NewSQLStockReader(db *sqlx.DB) *SQLStockReader {
	return &SQLStockReader{DB: db}
}

func (r *SQLStockReader) Snapshot(ctx context.Context, warehouseID string) ([]entity.StockView, error) {
	query := `
		SELECT s.warehouse_id, s.type_component_id,
		       COALESCE(t.sku, '') AS sku, COALESCE(t.name, '') AS name,
		       s.quantity_in_stock, s.quantity_reserved,
		       s.quantity_in_stock - s.quantity_reserved AS quantity_available,
		       s.updated_at
		FROM wty_stocks s
		LEFT JOIN wty_type_components t ON t.id = s.type_component_id
		WHERE s.warehouse_id = $1
		ORDER BY t.sku ASC, s.type_component_id ASC`
	items := []entity.StockView{}
	if err := r.DB.SelectContext(ctx, &items, query, warehouseID); err != nil {
		return nil, err
	}
	return items, nil
}
