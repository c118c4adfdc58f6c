package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

type mapCache struct {
	mu          sync.Mutex
	items       map[string][]entity.StockView
	invalidated int
}

func (c *mapCache) Get(ctx context.Context, warehouseID string) ([]entity.StockView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.items[warehouseID]
	return items, ok, nil
}

func (c *mapCache) Set(ctx context.Context, warehouseID string, items []entity.StockView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[warehouseID] = items
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, warehouseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, warehouseID)
	c.invalidated++
	return nil
}

func TestSnapshotCache(t *testing.T) {
	cache := &mapCache{items: map[string][]entity.StockView{}}
	f := newFixture(t, func(_ *Options, d *Deps) { d.Cache = cache })
	f.intake(whCenter, tcBattery, 2)
	f.intake(whCenter, tcPump, 1)

	snap, err := f.svc.Snapshot.Snapshot(f.ctx, whCenter)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Cached || len(snap.Items) != 2 || snap.Items[0].SKU != "BAT-75" {
		t.Fatalf("unexpected first snapshot: %+v", snap)
	}

	snap, _ = f.svc.Snapshot.Snapshot(f.ctx, whCenter)
	if !snap.Cached {
		t.Fatal("expected cached snapshot on second read")
	}

	if _, err := f.svc.Ledger.Reserve(f.ctx, whCenter, tcBattery, 1, Ref{}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	snap, _ = f.svc.Snapshot.Snapshot(f.ctx, whCenter)
	if snap.Cached || snap.Items[0].QuantityAvailable != 1 {
		t.Fatalf("expected fresh snapshot after ledger change: %+v", snap)
	}

	_, err = f.svc.Snapshot.Snapshot(f.ctx, "missing")
	assertKind(t, err, apperr.KindNotFound)
}

func TestSnapshotExport(t *testing.T) {
	f := newFixture(t)
	f.intake(whCenter, tcBattery, 4)

	file, name, err := f.svc.Snapshot.Export(f.ctx, whCenter)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer file.Close()
	if name != "上海服务中心_库存_20250301.xlsx" {
		t.Errorf("unexpected filename %q", name)
	}
	rows, err := file.GetRows("库存")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "BAT-75" || rows[1][2] != "4" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}
