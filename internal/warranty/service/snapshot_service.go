package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

// StockCache 库存快照缓存，只用于展示
type StockCache interface {
	Get(ctx context.Context, warehouseID string) ([]entity.StockView, bool, error)
	Set(ctx context.Context, warehouseID string, items []entity.StockView) error
	Invalidate(ctx context.Context, warehouseID string) error
}

// RedisStockCache 以 JSON 缓存到 Redis
type RedisStockCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStockCache(rdb *redis.Client, ttl time.Duration) *RedisStockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStockCache{rdb: rdb, ttl: ttl}
}

func stockCacheKey(warehouseID string) string {
	return "warranty:stock:" + warehouseID
}

func (c *RedisStockCache) Get(ctx context.Context, warehouseID string) ([]entity.StockView, bool, error) {
	val, err := c.rdb.Get(ctx, stockCacheKey(warehouseID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var items []entity.StockView
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, false, err
	}
	return items, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, warehouseID string, items []entity.StockView) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, stockCacheKey(warehouseID), data, c.ttl).Err()
}

func (c *RedisStockCache) Invalidate(ctx context.Context, warehouseID string) error {
	return c.rdb.Del(ctx, stockCacheKey(warehouseID)).Err()
}

// SnapshotService 仓库库存快照与导出
type SnapshotService struct {
	*runner
	reader repository.StockReader
	cache  StockCache
}

// StockSnapshot 仓库库存快照
type StockSnapshot struct {
	Warehouse entity.Warehouse   `json:"warehouse"`
	Items     []entity.StockView `json:"items"`
	Cached    bool               `json:"cached"`
}

// Snapshot 优先读缓存，未命中时查询并回填
func (s *SnapshotService) Snapshot(ctx context.Context, warehouseID string) (*StockSnapshot, error) {
	wh, err := s.store.Warehouses().Get(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	out := &StockSnapshot{Warehouse: *wh}

	if s.cache != nil {
		items, ok, err := s.cache.Get(ctx, warehouseID)
		if err != nil {
			s.logger.Warn("read stock snapshot cache failed", zap.String("warehouse_id", warehouseID), zap.Error(err))
		} else if ok {
			out.Items = items
			out.Cached = true
			return out, nil
		}
	}

	out.Items, err = s.reader.Snapshot(ctx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("查询库存快照失败: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, warehouseID, out.Items); err != nil {
			s.logger.Warn("write stock snapshot cache failed", zap.String("warehouse_id", warehouseID), zap.Error(err))
		}
	}
	return out, nil
}

var stockExportHeaders = []string{"SKU", "配件名称", "在库数量", "已预留", "可用数量", "更新时间"}

// Export 导出仓库库存为 Excel，返回文件与文件名
func (s *SnapshotService) Export(ctx context.Context, warehouseID string) (*excelize.File, string, error) {
	snap, err := s.Snapshot(ctx, warehouseID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "库存"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	for i, h := range stockExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for idx, item := range snap.Items {
		row := idx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.SKU)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.Name)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), item.QuantityInStock)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.QuantityReserved)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.QuantityAvailable)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), item.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	f.SetColWidth(sheet, "A", "B", 24)

	filename := fmt.Sprintf("%s_库存_%s.xlsx", snap.Warehouse.Name, s.now().Format("20060102"))
	return f, filename, nil
}
