package entity

import "time"

// VehicleModel 车型，含整车通用保修条款
type VehicleModel struct {
	ID                      string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name                    string    `json:"name" gorm:"size:128;not null"`
	GeneralWarrantyDuration int       `json:"general_warranty_duration"` // 月
	GeneralWarrantyMileage  int       `json:"general_warranty_mileage"`  // km
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

func (VehicleModel) TableName() string {
	return "wty_vehicle_models"
}

// Vehicle 车辆
type Vehicle struct {
	VIN          string     `json:"vin" gorm:"primaryKey;size:17"`
	ModelID      string     `json:"model_id" gorm:"type:uuid;not null;index"`
	OwnerName    string     `json:"owner_name" gorm:"size:128"`
	PurchaseDate *time.Time `json:"purchase_date"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Vehicle) TableName() string {
	return "wty_vehicles"
}

// TypeComponent 配件类型
type TypeComponent struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	SKU       string    `json:"sku" gorm:"size:64;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Category  string    `json:"category" gorm:"size:50"`
	Price     float64   `json:"price" gorm:"type:decimal(12,2);default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TypeComponent) TableName() string {
	return "wty_type_components"
}

// WarrantyComponent 车型对某类配件的保修条款
type WarrantyComponent struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	VehicleModelID  string    `json:"vehicle_model_id" gorm:"type:uuid;not null;uniqueIndex:idx_wty_model_type"`
	TypeComponentID string    `json:"type_component_id" gorm:"type:uuid;not null;uniqueIndex:idx_wty_model_type"`
	Quantity        int       `json:"quantity"` // 单车终身可保修数量，0 表示不限
	DurationMonth   int       `json:"duration_month"`
	MileageLimit    int       `json:"mileage_limit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (WarrantyComponent) TableName() string {
	return "wty_warranty_components"
}
