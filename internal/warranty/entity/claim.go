package entity

import "time"

// VehicleProcessingRecord 车辆接待单，一次进站维修
type VehicleProcessingRecord struct {
	ID               string       `json:"id" gorm:"primaryKey;type:uuid"`
	VIN              string       `json:"vin" gorm:"size:17;not null;index"`
	WarehouseID      string       `json:"warehouse_id" gorm:"type:uuid;not null"` // 服务中心仓库
	CheckInDate      time.Time    `json:"check_in_date" gorm:"not null"`
	CheckOutDate     *time.Time   `json:"check_out_date"`
	Odometer         int          `json:"odometer" gorm:"not null"`
	Status           RecordStatus `json:"status" gorm:"size:30;not null;index"`
	MainTechnicianID *string      `json:"main_technician_id" gorm:"size:64;index"`
	CreatedByStaffID string       `json:"created_by_staff_id" gorm:"size:64;not null"`
	CancelReason     string       `json:"cancel_reason" gorm:"type:text"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`

	Cases []GuaranteeCase `json:"cases,omitempty" gorm:"foreignKey:RecordID"`
}

func (VehicleProcessingRecord) TableName() string {
	return "wty_processing_records"
}

// GuaranteeCase 保修案例，一条客户诉求
type GuaranteeCase struct {
	ID               string     `json:"id" gorm:"primaryKey;type:uuid"`
	RecordID         string     `json:"record_id" gorm:"type:uuid;not null;index"`
	ContentGuarantee string     `json:"content_guarantee" gorm:"type:text;not null"`
	Status           CaseStatus `json:"status" gorm:"size:30;not null"`
	LeadTechID       *string    `json:"lead_tech_id" gorm:"size:64;index"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Lines []CaseLine `json:"lines,omitempty" gorm:"foreignKey:CaseID"`
}

func (GuaranteeCase) TableName() string {
	return "wty_guarantee_cases"
}

// WarrantyStatus 保修判定结果
type WarrantyStatus string

const (
	WarrantyEligible   WarrantyStatus = "ELIGIBLE"
	WarrantyIneligible WarrantyStatus = "INELIGIBLE"
)

// BillingType 结算方式
type BillingType string

const (
	BillingWarranty    BillingType = "WARRANTY"
	BillingCustomerPay BillingType = "CUSTOMER_PAY"
)

// CaseLine 工单行，一项维修建议
type CaseLine struct {
	ID                string         `json:"id" gorm:"primaryKey;type:uuid"`
	CaseID            string         `json:"case_id" gorm:"type:uuid;not null;index"`
	RecordID          string         `json:"record_id" gorm:"type:uuid;not null;index"`
	VIN               string         `json:"vin" gorm:"size:17;not null;index:idx_wty_line_usage"`
	TypeComponentID   *string        `json:"type_component_id" gorm:"type:uuid;index:idx_wty_line_usage"`
	Quantity          int            `json:"quantity" gorm:"not null"`
	DiagnosisText     string         `json:"diagnosis_text" gorm:"type:text"`
	CorrectionText    string         `json:"correction_text" gorm:"type:text"`
	WarrantyStatus    WarrantyStatus `json:"warranty_status" gorm:"size:20;not null"`
	BillingType       BillingType    `json:"billing_type" gorm:"size:20;not null"`
	Status            LineStatus     `json:"status" gorm:"size:40;not null;index"`
	DiagnosticTechID  *string        `json:"diagnostic_tech_id" gorm:"size:64;index"`
	RepairTechID      *string        `json:"repair_tech_id" gorm:"size:64;index"`
	TransferRequestID *string        `json:"transfer_request_id" gorm:"type:uuid;index"`
	SplitFromID       *string        `json:"split_from_id" gorm:"type:uuid"`
	EligibilityNote   string         `json:"eligibility_note" gorm:"type:text"`
	RejectionReason   string         `json:"rejection_reason" gorm:"type:text"`
	ApprovedAt        *time.Time     `json:"approved_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (CaseLine) TableName() string {
	return "wty_case_lines"
}

// IsDiagnosed 诊断与处理方案都已填写
func (l *CaseLine) IsDiagnosed() bool {
	return l.DiagnosisText != "" && l.CorrectionText != ""
}

// LineAttachment 工单行附件，存储于对象存储
type LineAttachment struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	CaseLineID  string    `json:"case_line_id" gorm:"type:uuid;not null;index"`
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	ObjectKey   string    `json:"object_key" gorm:"size:512;not null"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploaded_by" gorm:"size:64"`
	CreatedAt   time.Time `json:"created_at"`
}

func (LineAttachment) TableName() string {
	return "wty_line_attachments"
}
