package entity

import "gorm.io/gorm"

// AutoMigrate 自动迁移保修业务表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&VehicleModel{},
		&Vehicle{},
		&TypeComponent{},
		&WarrantyComponent{},
		&Warehouse{},
		&Stock{},
		&StockHold{},
		&StockTransaction{},
		&Component{},
		&ComponentReservation{},
		&VehicleProcessingRecord{},
		&GuaranteeCase{},
		&CaseLine{},
		&LineAttachment{},
		&StockTransferRequest{},
		&StockTransferItem{},
		&Technician{},
		&WorkSchedule{},
	)
}
