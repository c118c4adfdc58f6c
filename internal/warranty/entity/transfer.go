package entity

import "time"

// StockTransferRequest 仓间调拨单
type StockTransferRequest struct {
	ID                    string         `json:"id" gorm:"primaryKey;type:uuid"`
	Code                  string         `json:"code" gorm:"size:32;uniqueIndex"`
	RequestingWarehouseID string         `json:"requesting_warehouse_id" gorm:"type:uuid;not null;index"`
	SupplyingWarehouseID  string         `json:"supplying_warehouse_id" gorm:"type:uuid;not null;index"`
	Status                TransferStatus `json:"status" gorm:"size:20;not null;index"`
	CaseLineID            *string        `json:"case_line_id" gorm:"type:uuid"`
	AutoSourced           bool           `json:"auto_sourced"`
	RequestedBy           string         `json:"requested_by" gorm:"size:64;not null"`
	ApprovedBy            string         `json:"approved_by" gorm:"size:64"`
	ApprovedAt            *time.Time     `json:"approved_at"`
	ShippedAt             *time.Time     `json:"shipped_at"`
	CompletedAt           *time.Time     `json:"completed_at"`
	Reason                string         `json:"reason" gorm:"type:text"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`

	Items []StockTransferItem `json:"items" gorm:"foreignKey:TransferID"`
}

func (StockTransferRequest) TableName() string {
	return "wty_stock_transfer_requests"
}

// StockTransferItem 调拨明细，HoldID 为供货仓的账本占用
type StockTransferItem struct {
	ID                string  `json:"id" gorm:"primaryKey;type:uuid"`
	TransferID        string  `json:"transfer_id" gorm:"type:uuid;not null;index"`
	TypeComponentID   string  `json:"type_component_id" gorm:"type:uuid;not null"`
	QuantityRequested int     `json:"quantity_requested" gorm:"not null"`
	HoldID            *string `json:"hold_id" gorm:"type:uuid"`
}

func (StockTransferItem) TableName() string {
	return "wty_stock_transfer_items"
}
