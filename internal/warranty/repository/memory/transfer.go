package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

type transferRepo struct{ s *Store }

func (r transferRepo) Create(ctx context.Context, t *entity.StockTransferRequest) error {
	return r.s.do(func(st *state) error {
		t.UpdatedAt = stamp(&t.CreatedAt)
		for i := range t.Items {
			t.Items[i].TransferID = t.ID
			st.transferItems[t.Items[i].ID] = t.Items[i]
		}
		row := *t
		row.Items = nil
		st.transfers[t.ID] = row
		return nil
	})
}

func (r transferRepo) Get(ctx context.Context, id string) (*entity.StockTransferRequest, error) {
	var out *entity.StockTransferRequest
	err := r.s.do(func(st *state) error {
		t, ok := st.transfers[id]
		if !ok {
			return apperr.NotFound("StockTransferRequest", id)
		}
		t.Items = itemsOf(st, id)
		out = &t
		return nil
	})
	return out, err
}

func (r transferRepo) List(ctx context.Context, f repository.TransferFilter) ([]entity.StockTransferRequest, int64, error) {
	var matched []entity.StockTransferRequest
	err := r.s.do(func(st *state) error {
		for _, t := range st.transfers {
			if f.Status != "" && t.Status != f.Status {
				continue
			}
			if f.WarehouseID != "" && t.RequestingWarehouseID != f.WarehouseID && t.SupplyingWarehouseID != f.WarehouseID {
				continue
			}
			t.Items = itemsOf(st, t.ID)
			matched = append(matched, t)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, f.Page, f.Size), int64(len(matched)), nil
}

func (r transferRepo) Update(ctx context.Context, t *entity.StockTransferRequest, expected entity.TransferStatus) error {
	return r.s.do(func(st *state) error {
		cur, ok := st.transfers[t.ID]
		if !ok || cur.Status != expected {
			return staleStatus("StockTransferRequest", t.ID, expected)
		}
		t.CreatedAt = cur.CreatedAt
		t.UpdatedAt = time.Now()
		row := *t
		row.Items = nil
		st.transfers[t.ID] = row
		return nil
	})
}

func (r transferRepo) UpdateItem(ctx context.Context, item *entity.StockTransferItem) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.transferItems[item.ID]; !ok {
			return apperr.NotFound("StockTransferItem", item.ID)
		}
		st.transferItems[item.ID] = *item
		return nil
	})
}

func itemsOf(st *state, transferID string) []entity.StockTransferItem {
	var items []entity.StockTransferItem
	for _, item := range st.transferItems {
		if item.TransferID == transferID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}
