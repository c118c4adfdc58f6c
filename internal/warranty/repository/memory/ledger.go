package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

type warehouseRepo struct{ s *Store }

func (r warehouseRepo) Create(ctx context.Context, w *entity.Warehouse) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.warehouses[w.ID]; ok {
			return apperr.New(apperr.KindConflict, "仓库已存在: %s", w.ID)
		}
		w.UpdatedAt = stamp(&w.CreatedAt)
		st.warehouses[w.ID] = *w
		return nil
	})
}

func (r warehouseRepo) Get(ctx context.Context, id string) (*entity.Warehouse, error) {
	var out *entity.Warehouse
	err := r.s.do(func(st *state) error {
		w, ok := st.warehouses[id]
		if !ok {
			return apperr.NotFound("Warehouse", id)
		}
		out = &w
		return nil
	})
	return out, err
}

func (r warehouseRepo) List(ctx context.Context) ([]entity.Warehouse, error) {
	var out []entity.Warehouse
	err := r.s.do(func(st *state) error {
		for _, w := range st.warehouses {
			out = append(out, w)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r warehouseRepo) SetHalted(ctx context.Context, id string, halted bool, reason string) error {
	return r.s.do(func(st *state) error {
		w, ok := st.warehouses[id]
		if !ok {
			return apperr.NotFound("Warehouse", id)
		}
		w.LedgerHalted = halted
		w.HaltReason = reason
		w.UpdatedAt = time.Now()
		st.warehouses[id] = w
		return nil
	})
}

type stockRepo struct{ s *Store }

// GetForUpdate 内存实现由全局锁保证串行
func (r stockRepo) GetForUpdate(ctx context.Context, warehouseID, typeComponentID string) (*entity.Stock, error) {
	var out *entity.Stock
	err := r.s.do(func(st *state) error {
		stock, ok := st.stocks[stockKey(warehouseID, typeComponentID)]
		if !ok {
			return apperr.NotFound("Stock", warehouseID+"/"+typeComponentID)
		}
		out = &stock
		return nil
	})
	return out, err
}

func (r stockRepo) Create(ctx context.Context, s *entity.Stock) error {
	return r.s.do(func(st *state) error {
		key := stockKey(s.WarehouseID, s.TypeComponentID)
		if _, ok := st.stocks[key]; ok {
			return nil
		}
		s.UpdatedAt = time.Now()
		st.stocks[key] = *s
		return nil
	})
}

func (r stockRepo) Update(ctx context.Context, s *entity.Stock) error {
	return r.s.do(func(st *state) error {
		key := stockKey(s.WarehouseID, s.TypeComponentID)
		cur, ok := st.stocks[key]
		if !ok || cur.ID != s.ID || cur.Version != s.Version {
			return apperr.New(apperr.KindConflict, "库存计数已被并发修改: %s", s.ID)
		}
		s.Version++
		s.UpdatedAt = time.Now()
		st.stocks[key] = *s
		return nil
	})
}

func (r stockRepo) CreateHold(ctx context.Context, h *entity.StockHold) error {
	return r.s.do(func(st *state) error {
		stamp(&h.CreatedAt)
		st.holds[h.ID] = *h
		return nil
	})
}

func (r stockRepo) GetHold(ctx context.Context, id string) (*entity.StockHold, error) {
	var out *entity.StockHold
	err := r.s.do(func(st *state) error {
		h, ok := st.holds[id]
		if !ok {
			return apperr.NotFound("StockHold", id)
		}
		out = &h
		return nil
	})
	return out, err
}

func (r stockRepo) SettleHold(ctx context.Context, id string, status entity.HoldStatus, at time.Time) (bool, error) {
	settled := false
	err := r.s.do(func(st *state) error {
		h, ok := st.holds[id]
		if !ok || h.Status != entity.HoldStatusHeld {
			return nil
		}
		h.Status = status
		h.SettledAt = &at
		st.holds[id] = h
		settled = true
		return nil
	})
	return settled, err
}

func (r stockRepo) AppendTransaction(ctx context.Context, tx *entity.StockTransaction) error {
	return r.s.do(func(st *state) error {
		stamp(&tx.CreatedAt)
		st.journal = append(st.journal, *tx)
		return nil
	})
}

func (r stockRepo) ListTransactions(ctx context.Context, warehouseID string, page, size int) ([]entity.StockTransaction, int64, error) {
	var matched []entity.StockTransaction
	err := r.s.do(func(st *state) error {
		for i := len(st.journal) - 1; i >= 0; i-- {
			if warehouseID == "" || st.journal[i].WarehouseID == warehouseID {
				matched = append(matched, st.journal[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return paginate(matched, page, size), int64(len(matched)), nil
}

// Snapshot 实现 repository.StockReader
func (s *Store) Snapshot(ctx context.Context, warehouseID string) ([]entity.StockView, error) {
	items := []entity.StockView{}
	err := s.do(func(st *state) error {
		for _, stock := range st.stocks {
			if stock.WarehouseID != warehouseID {
				continue
			}
			tc := st.typeComponents[stock.TypeComponentID]
			items = append(items, entity.StockView{
				WarehouseID:       stock.WarehouseID,
				TypeComponentID:   stock.TypeComponentID,
				SKU:               tc.SKU,
				Name:              tc.Name,
				QuantityInStock:   stock.QuantityInStock,
				QuantityReserved:  stock.QuantityReserved,
				QuantityAvailable: stock.Available(),
				UpdatedAt:         stock.UpdatedAt,
			})
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool {
		if items[i].SKU != items[j].SKU {
			return items[i].SKU < items[j].SKU
		}
		return items[i].TypeComponentID < items[j].TypeComponentID
	})
	return items, err
}

func paginate[T any](items []T, page, size int) []T {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
