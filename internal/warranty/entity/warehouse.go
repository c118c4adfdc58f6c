package entity

import (
	"fmt"
	"time"
)

// WarehouseContext 仓库类型
type WarehouseContext string

const (
	WarehouseContextServiceCenter WarehouseContext = "SERVICE_CENTER"
	WarehouseContextCompany       WarehouseContext = "COMPANY"
)

// Warehouse 仓库，Priority 越小越优先作为调拨来源
type Warehouse struct {
	ID           string           `json:"id" gorm:"primaryKey;type:uuid"`
	Name         string           `json:"name" gorm:"size:128;not null"`
	Context      WarehouseContext `json:"context" gorm:"size:20;not null"`
	Priority     int              `json:"priority" gorm:"not null;default:100"`
	LedgerHalted bool             `json:"ledger_halted" gorm:"default:false"`
	HaltReason   string           `json:"halt_reason" gorm:"type:text"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (Warehouse) TableName() string {
	return "wty_warehouses"
}

// Stock 库存计数，可用数量由 QuantityInStock - QuantityReserved 推导，不落库
type Stock struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	WarehouseID      string    `json:"warehouse_id" gorm:"type:uuid;not null;uniqueIndex:idx_wty_stock_key"`
	TypeComponentID  string    `json:"type_component_id" gorm:"type:uuid;not null;uniqueIndex:idx_wty_stock_key"`
	QuantityInStock  int       `json:"quantity_in_stock" gorm:"not null;default:0"`
	QuantityReserved int       `json:"quantity_reserved" gorm:"not null;default:0"`
	Version          int64     `json:"version" gorm:"not null;default:0"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Stock) TableName() string {
	return "wty_stocks"
}

func (s *Stock) Available() int {
	return s.QuantityInStock - s.QuantityReserved
}

// Check 校验 inStock == reserved + available 且均非负
func (s *Stock) Check() error {
	if s.QuantityInStock < 0 || s.QuantityReserved < 0 || s.Available() < 0 {
		return fmt.Errorf("库存计数异常: in_stock=%d reserved=%d available=%d",
			s.QuantityInStock, s.QuantityReserved, s.Available())
	}
	return nil
}

// StockView 库存快照行
type StockView struct {
	WarehouseID       string    `json:"warehouse_id" db:"warehouse_id"`
	TypeComponentID   string    `json:"type_component_id" db:"type_component_id"`
	SKU               string    `json:"sku" db:"sku"`
	Name              string    `json:"name" db:"name"`
	QuantityInStock   int       `json:"quantity_in_stock" db:"quantity_in_stock"`
	QuantityReserved  int       `json:"quantity_reserved" db:"quantity_reserved"`
	QuantityAvailable int       `json:"quantity_available" db:"quantity_available"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// HoldStatus 库存占用状态
type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "HELD"
	HoldStatusReleased HoldStatus = "RELEASED"
	HoldStatusConsumed HoldStatus = "CONSUMED"
)

// 占用来源
const (
	ReferenceReservation = "RESERVATION"
	ReferenceTransfer    = "TRANSFER"
	ReferenceIntake      = "INTAKE"
)

// StockHold 账本占用凭证
type StockHold struct {
	ID              string     `json:"id" gorm:"primaryKey;type:uuid"`
	WarehouseID     string     `json:"warehouse_id" gorm:"type:uuid;not null;index"`
	TypeComponentID string     `json:"type_component_id" gorm:"type:uuid;not null"`
	Quantity        int        `json:"quantity" gorm:"not null"`
	Status          HoldStatus `json:"status" gorm:"size:20;not null;index"`
	ReferenceType   string     `json:"reference_type" gorm:"size:20"`
	ReferenceID     string     `json:"reference_id" gorm:"size:64"`
	CreatedAt       time.Time  `json:"created_at"`
	SettledAt       *time.Time `json:"settled_at"`
}

func (StockHold) TableName() string {
	return "wty_stock_holds"
}

// 账本流水类型
const (
	TxTypeReserve = "RESERVE"
	TxTypeRelease = "RELEASE"
	TxTypeConsume = "CONSUME"
	TxTypeReceive = "RECEIVE"
)

// StockTransaction 账本流水
type StockTransaction struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	WarehouseID     string    `json:"warehouse_id" gorm:"type:uuid;not null;index"`
	TypeComponentID string    `json:"type_component_id" gorm:"type:uuid;not null"`
	HoldID          string    `json:"hold_id" gorm:"size:64"`
	TransactionType string    `json:"transaction_type" gorm:"size:20;not null"`
	Quantity        int       `json:"quantity" gorm:"not null"`
	InStockAfter    int       `json:"in_stock_after"`
	ReservedAfter   int       `json:"reserved_after"`
	ReferenceType   string    `json:"reference_type" gorm:"size:20"`
	ReferenceID     string    `json:"reference_id" gorm:"size:64"`
	CreatedBy       string    `json:"created_by" gorm:"size:64"`
	CreatedAt       time.Time `json:"created_at"`
}

func (StockTransaction) TableName() string {
	return "wty_stock_transactions"
}
