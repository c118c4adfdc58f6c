package entity

import "time"

// ComponentStatus 序列化配件状态
type ComponentStatus string

const (
	ComponentStatusInStock   ComponentStatus = "IN_STOCK"
	ComponentStatusReserved  ComponentStatus = "RESERVED"
	ComponentStatusInstalled ComponentStatus = "INSTALLED"
	ComponentStatusReturned  ComponentStatus = "RETURNED"
	ComponentStatusDefective ComponentStatus = "DEFECTIVE"
)

// Component 序列化配件
type Component struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid"`
	SerialNumber    string          `json:"serial_number" gorm:"size:100;not null;uniqueIndex"`
	TypeComponentID string          `json:"type_component_id" gorm:"type:uuid;not null;index:idx_wty_component_pick"`
	WarehouseID     *string         `json:"warehouse_id" gorm:"type:uuid;index:idx_wty_component_pick"`
	Status          ComponentStatus `json:"status" gorm:"size:20;not null;index:idx_wty_component_pick"`
	VehicleVIN      *string         `json:"vehicle_vin" gorm:"size:17;index"`
	InstalledAt     *time.Time      `json:"installed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Component) TableName() string {
	return "wty_components"
}

// 旧件回收状态
const (
	OldPartReturnPending  = "PENDING"
	OldPartReturnReturned = "RETURNED"
)

// ComponentReservation 工单行与配件的一对一预留，每单位数量一条
type ComponentReservation struct {
	ID                 string            `json:"id" gorm:"primaryKey;type:uuid"`
	CaseLineID         string            `json:"case_line_id" gorm:"type:uuid;not null;index"`
	ComponentID        string            `json:"component_id" gorm:"type:uuid;not null;index"`
	TypeComponentID    string            `json:"type_component_id" gorm:"type:uuid;not null"`
	WarehouseID        string            `json:"warehouse_id" gorm:"type:uuid;not null"`
	HoldID             string            `json:"hold_id" gorm:"type:uuid;not null"`
	Status             ReservationStatus `json:"status" gorm:"size:20;not null;index"`
	PickedUpBy         string            `json:"picked_up_by" gorm:"size:64"`
	PickedUpAt         *time.Time        `json:"picked_up_at"`
	InstalledVIN       string            `json:"installed_vin" gorm:"size:17"`
	InstalledAt        *time.Time        `json:"installed_at"`
	OldComponentSerial string            `json:"old_component_serial" gorm:"size:100"`
	OldComponentReturn string            `json:"old_component_return" gorm:"size:20"`
	CancelReason       string            `json:"cancel_reason" gorm:"type:text"`
	CancelledAt        *time.Time        `json:"cancelled_at"`
	ReturnReason       string            `json:"return_reason" gorm:"type:text"`
	ReturnedAt         *time.Time        `json:"returned_at"`
	CreatedAt          time.Time         `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (ComponentReservation) TableName() string {
	return "wty_component_reservations"
}
