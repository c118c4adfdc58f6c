package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, rec *entity.VehicleProcessingRecord) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error
}

func (r *RecordRepository) Get(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error) {
	var rec entity.VehicleProcessingRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate(err, "VehicleProcessingRecord", id)
	}
	return &rec, nil
}

func (r *RecordRepository) GetDetail(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error) {
	var rec entity.VehicleProcessingRecord
	err := r.db.WithContext(ctx).
		Preload("Cases", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Cases.Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, translate(err, "VehicleProcessingRecord", id)
	}
	return &rec, nil
}

func (r *RecordRepository) FindActiveByVIN(ctx context.Context, vin string) (*entity.VehicleProcessingRecord, error) {
	var rec entity.VehicleProcessingRecord
	err := r.db.WithContext(ctx).
		Where("vin = ? AND status NOT IN ?", vin, []entity.RecordStatus{entity.RecordStatusCompleted, entity.RecordStatusCancelled}).
		First(&rec).Error
	if err != nil {
		return nil, translate(err, "VehicleProcessingRecord", vin)
	}
	return &rec, nil
}

func (r *RecordRepository) Update(ctx context.Context, rec *entity.VehicleProcessingRecord, expected entity.RecordStatus) error {
	rec.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(rec).
		Where("status = ?", expected).
		Select("*").Omit("created_at", clause.Associations).
		Updates(rec)
	return casResult(res, "VehicleProcessingRecord", rec.ID, expected)
}

type CaseRepository struct {
	db *gorm.DB
}

func NewCaseRepository(db *gorm.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

func (r *CaseRepository) Create(ctx context.Context, c *entity.GuaranteeCase) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

func (r *CaseRepository) Get(ctx context.Context, id string) (*entity.GuaranteeCase, error) {
	var c entity.GuaranteeCase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err, "GuaranteeCase", id)
	}
	return &c, nil
}

func (r *CaseRepository) ListByRecord(ctx context.Context, recordID string) ([]entity.GuaranteeCase, error) {
	var list []entity.GuaranteeCase
	err := r.db.WithContext(ctx).Where("record_id = ?", recordID).Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *CaseRepository) Update(ctx context.Context, c *entity.GuaranteeCase, expected entity.CaseStatus) error {
	c.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(c).
		Where("status = ?", expected).
		Select("*").Omit("created_at", clause.Associations).
		Updates(c)
	return casResult(res, "GuaranteeCase", c.ID, expected)
}

type LineRepository struct {
	db *gorm.DB
}

func NewLineRepository(db *gorm.DB) *LineRepository {
	return &LineRepository{db: db}
}

func (r *LineRepository) Create(ctx context.Context, l *entity.CaseLine) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LineRepository) Get(ctx context.Context, id string) (*entity.CaseLine, error) {
	var l entity.CaseLine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, translate(err, "CaseLine", id)
	}
	return &l, nil
}

func (r *LineRepository) ListByCase(ctx context.Context, caseID string) ([]entity.CaseLine, error) {
	var list []entity.CaseLine
	err := r.db.WithContext(ctx).Where("case_id = ?", caseID).Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *LineRepository) ListByRecord(ctx context.Context, recordID string) ([]entity.CaseLine, error) {
	var list []entity.CaseLine
	err := r.db.WithContext(ctx).Where("record_id = ?", recordID).Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *LineRepository) ListByTransfer(ctx context.Context, transferID string, status entity.LineStatus) ([]entity.CaseLine, error) {
	var list []entity.CaseLine
	err := r.db.WithContext(ctx).
		Where("transfer_request_id = ? AND status = ?", transferID, status).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (r *LineRepository) CoveredUsage(ctx context.Context, vin, typeComponentID string) (int, error) {
	var result struct{ Total int }
	err := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(quantity), 0) AS total
		FROM wty_case_lines
		WHERE vin = ? AND type_component_id = ? AND warranty_status = ? AND billing_type = ? AND status NOT IN ?
	`, vin, typeComponentID, entity.WarrantyEligible, entity.BillingWarranty, UncoveredLineStatuses).Scan(&result).Error
	return result.Total, err
}

func (r *LineRepository) Update(ctx context.Context, l *entity.CaseLine, expected entity.LineStatus) error {
	l.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(l).
		Where("status = ?", expected).
		Select("*").Omit("created_at").
		Updates(l)
	return casResult(res, "CaseLine", l.ID, expected)
}

type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(ctx context.Context, a *entity.LineAttachment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AttachmentRepository) ListByLine(ctx context.Context, caseLineID string) ([]entity.LineAttachment, error) {
	var list []entity.LineAttachment
	err := r.db.WithContext(ctx).Where("case_line_id = ?", caseLineID).Order("created_at ASC").Find(&list).Error
	return list, err
}
