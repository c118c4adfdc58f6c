package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository/memory"
)

const (
	testVIN         = "LNBSCU3H5JR000001"
	unregisteredVIN = "LNBSCU3H5JR000009"
	whCenter        = "wh-sc-01"
	whNearby        = "wh-sc-02"
	whCompany       = "wh-hq"
	tcBattery       = "tc-battery"
	tcPump          = "tc-pump"
	techA           = "tech-a"
	techB           = "tech-b"
	staff           = "staff-01"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	svc    *Services
	events *events.Recorder
	clock  *fakeClock
}

func newFixture(t *testing.T, opts ...func(*Options, *Deps)) *fixture {
	t.Helper()
	store := memory.NewStore()
	rec := events.NewRecorder()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}

	o := Options{Now: clock.Now}
	d := Deps{Store: store, Reader: store, Publisher: rec, Logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&o, &d)
	}

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		svc:    NewServices(d, o),
		events: rec,
		clock:  clock,
	}
	f.seed()
	return f
}

func (f *fixture) seed() {
	f.t.Helper()
	ctx := f.ctx
	purchased := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	must := func(err error) {
		f.t.Helper()
		if err != nil {
			f.t.Fatalf("seed: %v", err)
		}
	}

	must(f.store.Catalog().CreateModel(ctx, &entity.VehicleModel{
		ID: "model-s", Name: "Nimo S", GeneralWarrantyDuration: 36, GeneralWarrantyMileage: 100000,
	}))
	must(f.store.Catalog().CreateVehicle(ctx, &entity.Vehicle{VIN: testVIN, ModelID: "model-s", OwnerName: "张三", PurchaseDate: &purchased}))
	must(f.store.Catalog().CreateVehicle(ctx, &entity.Vehicle{VIN: unregisteredVIN, ModelID: "model-s"}))
	must(f.store.Catalog().CreateTypeComponent(ctx, &entity.TypeComponent{ID: tcBattery, SKU: "BAT-75", Name: "动力电池模组", Category: "battery"}))
	must(f.store.Catalog().CreateTypeComponent(ctx, &entity.TypeComponent{ID: tcPump, SKU: "PMP-01", Name: "冷却水泵", Category: "thermal"}))
	must(f.store.Catalog().CreateWarrantyComponent(ctx, &entity.WarrantyComponent{
		ID: "wc-battery", VehicleModelID: "model-s", TypeComponentID: tcBattery,
		Quantity: 2, DurationMonth: 96, MileageLimit: 160000,
	}))

	must(f.store.Warehouses().Create(ctx, &entity.Warehouse{ID: whCenter, Name: "上海服务中心", Context: entity.WarehouseContextServiceCenter, Priority: 50}))
	must(f.store.Warehouses().Create(ctx, &entity.Warehouse{ID: whNearby, Name: "苏州服务中心", Context: entity.WarehouseContextServiceCenter, Priority: 10}))
	must(f.store.Warehouses().Create(ctx, &entity.Warehouse{ID: whCompany, Name: "总部中心仓", Context: entity.WarehouseContextCompany, Priority: 100}))

	must(f.store.Technicians().Create(ctx, &entity.Technician{ID: techA, Name: "李工", WarehouseID: whCenter, Active: true}))
	must(f.store.Technicians().Create(ctx, &entity.Technician{ID: techB, Name: "王工", WarehouseID: whCenter, Active: true}))
}

func (f *fixture) intake(warehouseID, typeID string, qty int) {
	f.t.Helper()
	if _, err := f.svc.Ledger.Intake(f.ctx, IntakeRequest{WarehouseID: warehouseID, TypeComponentID: typeID, Quantity: qty}, staff); err != nil {
		f.t.Fatalf("intake: %v", err)
	}
}

func (f *fixture) stock(warehouseID, typeID string) entity.Stock {
	f.t.Helper()
	s, err := f.store.Stocks().GetForUpdate(f.ctx, warehouseID, typeID)
	if err != nil {
		f.t.Fatalf("stock %s/%s: %v", warehouseID, typeID, err)
	}
	return *s
}

func (f *fixture) assertStock(warehouseID, typeID string, inStock, reserved int) {
	f.t.Helper()
	s := f.stock(warehouseID, typeID)
	if s.QuantityInStock != inStock || s.QuantityReserved != reserved {
		f.t.Fatalf("stock %s/%s: got in_stock=%d reserved=%d, want %d/%d",
			warehouseID, typeID, s.QuantityInStock, s.QuantityReserved, inStock, reserved)
	}
	if err := s.Check(); err != nil {
		f.t.Fatalf("stock invariant: %v", err)
	}
}

// diagnosing 开单并进入诊断，返回接待单与第一个案例
func (f *fixture) diagnosing(odometer int) (*entity.VehicleProcessingRecord, *entity.GuaranteeCase) {
	f.t.Helper()
	rec, err := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{
		VIN: testVIN, WarehouseID: whCenter, Odometer: odometer, Cases: []string{"续航明显下降"},
	}, staff)
	if err != nil {
		f.t.Fatalf("open record: %v", err)
	}
	if rec, err = f.svc.Claim.AssignMainTechnician(f.ctx, rec.ID, techA, staff); err != nil {
		f.t.Fatalf("assign main tech: %v", err)
	}
	gc, err := f.svc.Claim.AssignLeadTechnician(f.ctx, rec.Cases[0].ID, techA, staff)
	if err != nil {
		f.t.Fatalf("assign lead tech: %v", err)
	}
	return rec, gc
}

// awaitingApproval 新增一条电池工单行并提交客户确认
func (f *fixture) awaitingApproval(qty int) (*entity.VehicleProcessingRecord, entity.CaseLine) {
	f.t.Helper()
	rec, gc := f.diagnosing(42000)
	typeID := tcBattery
	lines, err := f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{
		TypeComponentID: &typeID,
		Quantity:        qty,
		DiagnosisText:   "电池模组压差过大",
		CorrectionText:  "更换电池模组",
	}, techA)
	if err != nil {
		f.t.Fatalf("add line: %v", err)
	}
	if _, err := f.svc.Claim.CompleteDiagnosis(f.ctx, gc.ID, techA); err != nil {
		f.t.Fatalf("complete diagnosis: %v", err)
	}
	if rec, err = f.svc.Claim.SubmitForApproval(f.ctx, rec.ID, staff); err != nil {
		f.t.Fatalf("submit: %v", err)
	}
	return rec, lines[0]
}

func (f *fixture) line(id string) *entity.CaseLine {
	f.t.Helper()
	l, err := f.store.Lines().Get(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get line: %v", err)
	}
	return l
}

func (f *fixture) record(id string) *entity.VehicleProcessingRecord {
	f.t.Helper()
	r, err := f.store.Records().Get(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get record: %v", err)
	}
	return r
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}
