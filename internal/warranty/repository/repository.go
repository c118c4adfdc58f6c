package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

// Store 保修业务存储。Transaction 内的所有写入要么全部提交要么全部回滚。
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	Warehouses() WarehouseStore
	Stocks() StockStore
	Components() ComponentStore
	Reservations() ReservationStore
	Records() RecordStore
	Cases() CaseStore
	Lines() LineStore
	Transfers() TransferStore
	Catalog() CatalogStore
	Technicians() TechnicianStore
	Attachments() AttachmentStore
}

type WarehouseStore interface {
	Create(ctx context.Context, w *entity.Warehouse) error
	Get(ctx context.Context, id string) (*entity.Warehouse, error)
	List(ctx context.Context) ([]entity.Warehouse, error)
	SetHalted(ctx context.Context, id string, halted bool, reason string) error
}

// StockStore 账本计数、占用凭证与流水
type StockStore interface {
	// GetForUpdate 在事务内锁定计数行，不存在返回 NotFound
	GetForUpdate(ctx context.Context, warehouseID, typeComponentID string) (*entity.Stock, error)
	Create(ctx context.Context, s *entity.Stock) error
	// Update 按版本号比较写入，版本不符返回 Conflict，成功后 Version 加一
	Update(ctx context.Context, s *entity.Stock) error
	CreateHold(ctx context.Context, h *entity.StockHold) error
	GetHold(ctx context.Context, id string) (*entity.StockHold, error)
	// SettleHold 仅当凭证仍为 HELD 时结算，返回是否生效
	SettleHold(ctx context.Context, id string, status entity.HoldStatus, at time.Time) (bool, error)
	AppendTransaction(ctx context.Context, tx *entity.StockTransaction) error
	ListTransactions(ctx context.Context, warehouseID string, page, size int) ([]entity.StockTransaction, int64, error)
}

// StockReader 库存展示读模型，不参与预留判断
type StockReader interface {
	Snapshot(ctx context.Context, warehouseID string) ([]entity.StockView, error)
}

type ComponentStore interface {
	Create(ctx context.Context, c *entity.Component) error
	Get(ctx context.Context, id string) (*entity.Component, error)
	GetBySerial(ctx context.Context, serial string) (*entity.Component, error)
	// ClaimInStock 将一件在库配件置为 RESERVED，没有可用件返回 NotFound
	ClaimInStock(ctx context.Context, warehouseID, typeComponentID string) (*entity.Component, error)
	// MoveInStock 将最多 qty 件在库配件移到目标仓库，返回实际移动件数
	MoveInStock(ctx context.Context, fromWarehouseID, toWarehouseID, typeComponentID string, qty int) (int, error)
	Update(ctx context.Context, c *entity.Component) error
}

type ReservationStore interface {
	Create(ctx context.Context, r *entity.ComponentReservation) error
	Get(ctx context.Context, id string) (*entity.ComponentReservation, error)
	ListByLine(ctx context.Context, caseLineID string) ([]entity.ComponentReservation, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]entity.ComponentReservation, error)
	// Update 仅当当前状态等于 expected 时写入，否则返回 InvalidStateTransition
	Update(ctx context.Context, r *entity.ComponentReservation, expected entity.ReservationStatus) error
}

type RecordStore interface {
	Create(ctx context.Context, r *entity.VehicleProcessingRecord) error
	Get(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error)
	// GetDetail 带出案例与工单行
	GetDetail(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error)
	FindActiveByVIN(ctx context.Context, vin string) (*entity.VehicleProcessingRecord, error)
	Update(ctx context.Context, r *entity.VehicleProcessingRecord, expected entity.RecordStatus) error
}

type CaseStore interface {
	Create(ctx context.Context, c *entity.GuaranteeCase) error
	Get(ctx context.Context, id string) (*entity.GuaranteeCase, error)
	ListByRecord(ctx context.Context, recordID string) ([]entity.GuaranteeCase, error)
	Update(ctx context.Context, c *entity.GuaranteeCase, expected entity.CaseStatus) error
}

type LineStore interface {
	Create(ctx context.Context, l *entity.CaseLine) error
	Get(ctx context.Context, id string) (*entity.CaseLine, error)
	ListByCase(ctx context.Context, caseID string) ([]entity.CaseLine, error)
	ListByRecord(ctx context.Context, recordID string) ([]entity.CaseLine, error)
	ListByTransfer(ctx context.Context, transferID string, status entity.LineStatus) ([]entity.CaseLine, error)
	// CoveredUsage 该车该类配件在保修结算下已占用的数量
	CoveredUsage(ctx context.Context, vin, typeComponentID string) (int, error)
	Update(ctx context.Context, l *entity.CaseLine, expected entity.LineStatus) error
}

type TransferFilter struct {
	Status      entity.TransferStatus
	WarehouseID string
	Page        int
	Size        int
}

type TransferStore interface {
	// Create 同时写入明细
	Create(ctx context.Context, t *entity.StockTransferRequest) error
	Get(ctx context.Context, id string) (*entity.StockTransferRequest, error)
	List(ctx context.Context, f TransferFilter) ([]entity.StockTransferRequest, int64, error)
	Update(ctx context.Context, t *entity.StockTransferRequest, expected entity.TransferStatus) error
	UpdateItem(ctx context.Context, item *entity.StockTransferItem) error
}

type CatalogStore interface {
	CreateModel(ctx context.Context, m *entity.VehicleModel) error
	CreateVehicle(ctx context.Context, v *entity.Vehicle) error
	CreateTypeComponent(ctx context.Context, tc *entity.TypeComponent) error
	CreateWarrantyComponent(ctx context.Context, wc *entity.WarrantyComponent) error
	GetVehicle(ctx context.Context, vin string) (*entity.Vehicle, error)
	GetModel(ctx context.Context, id string) (*entity.VehicleModel, error)
	GetTypeComponent(ctx context.Context, id string) (*entity.TypeComponent, error)
	// GetWarrantyComponent 无专项条款时返回 nil, nil
	GetWarrantyComponent(ctx context.Context, modelID, typeComponentID string) (*entity.WarrantyComponent, error)
}

type TechnicianStore interface {
	Create(ctx context.Context, t *entity.Technician) error
	CreateSchedule(ctx context.Context, s *entity.WorkSchedule) error
	Get(ctx context.Context, id string) (*entity.Technician, error)
	ListByWarehouse(ctx context.Context, warehouseID string) ([]entity.Technician, error)
	// CountActiveTasks 统计未结束的接待单、案例、工单行
	CountActiveTasks(ctx context.Context, technicianIDs []string) (map[string]int, error)
	// NextAvailableSlots 每位技师 from 之后最早的可用排班开始时间
	NextAvailableSlots(ctx context.Context, technicianIDs []string, from time.Time) (map[string]time.Time, error)
}

type AttachmentStore interface {
	Create(ctx context.Context, a *entity.LineAttachment) error
	ListByLine(ctx context.Context, caseLineID string) ([]entity.LineAttachment, error)
}

// TerminalLineStatuses 工单行终态
var TerminalLineStatuses = []entity.LineStatus{
	entity.LineStatusCompleted,
	entity.LineStatusRejectedByOutOfWarranty,
	entity.LineStatusRejectedByTech,
	entity.LineStatusRejectedByCustomer,
	entity.LineStatusCancelled,
}

// UncoveredLineStatuses 不计入保修占用的工单行状态
var UncoveredLineStatuses = []entity.LineStatus{
	entity.LineStatusRejectedByOutOfWarranty,
	entity.LineStatusRejectedByTech,
	entity.LineStatusRejectedByCustomer,
	entity.LineStatusCancelled,
}
