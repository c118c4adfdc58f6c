package entity

import "time"

// Technician 技师
type Technician struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	WarehouseID string    `json:"warehouse_id" gorm:"type:uuid;index"` // 所属服务中心
	Active      bool      `json:"active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Technician) TableName() string {
	return "wty_technicians"
}

// WorkSchedule 技师排班，可用时段
type WorkSchedule struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	TechnicianID string    `json:"technician_id" gorm:"size:64;not null;index"`
	StartsAt     time.Time `json:"starts_at" gorm:"not null;index"`
	EndsAt       time.Time `json:"ends_at" gorm:"not null"`
	Available    bool      `json:"available" gorm:"default:true"`
}

func (WorkSchedule) TableName() string {
	return "wty_work_schedules"
}

// AssignmentTarget 派工对象
type AssignmentTarget struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

const (
	TargetRecordMain     = "RECORD_MAIN"
	TargetCaseLead       = "CASE_LEAD"
	TargetLineDiagnostic = "LINE_DIAGNOSTIC"
	TargetLineRepair     = "LINE_REPAIR"
)
