package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"gorm.io/gorm"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) CreateModel(ctx context.Context, m *entity.VehicleModel) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *CatalogRepository) CreateVehicle(ctx context.Context, v *entity.Vehicle) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *CatalogRepository) CreateTypeComponent(ctx context.Context, tc *entity.TypeComponent) error {
	return r.db.WithContext(ctx).Create(tc).Error
}

func (r *CatalogRepository) CreateWarrantyComponent(ctx context.Context, wc *entity.WarrantyComponent) error {
	return r.db.WithContext(ctx).Create(wc).Error
}

func (r *CatalogRepository) GetVehicle(ctx context.Context, vin string) (*entity.Vehicle, error) {
	var v entity.Vehicle
	if err := r.db.WithContext(ctx).Where("vin = ?", vin).First(&v).Error; err != nil {
		return nil, translate(err, "Vehicle", vin)
	}
	return &v, nil
}

func (r *CatalogRepository) GetModel(ctx context.Context, id string) (*entity.VehicleModel, error) {
	var m entity.VehicleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err, "VehicleModel", id)
	}
	return &m, nil
}

func (r *CatalogRepository) GetTypeComponent(ctx context.Context, id string) (*entity.TypeComponent, error) {
	var tc entity.TypeComponent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tc).Error; err != nil {
		return nil, translate(err, "TypeComponent", id)
	}
	return &tc, nil
}

func (r *CatalogRepository) GetWarrantyComponent(ctx context.Context, modelID, typeComponentID string) (*entity.WarrantyComponent, error) {
	var wc entity.WarrantyComponent
	err := r.db.WithContext(ctx).
		Where("vehicle_model_id = ? AND type_component_id = ?", modelID, typeComponentID).
		First(&wc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wc, nil
}

type TechnicianRepository struct {
	db *gorm.DB
}

func NewTechnicianRepository(db *gorm.DB) *TechnicianRepository {
	return &TechnicianRepository{db: db}
}

func (r *TechnicianRepository) Create(ctx context.Context, t *entity.Technician) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TechnicianRepository) CreateSchedule(ctx context.Context, s *entity.WorkSchedule) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *TechnicianRepository) Get(ctx context.Context, id string) (*entity.Technician, error) {
	var t entity.Technician
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err, "Technician", id)
	}
	return &t, nil
}

func (r *TechnicianRepository) ListByWarehouse(ctx context.Context, warehouseID string) ([]entity.Technician, error) {
	var list []entity.Technician
	err := r.db.WithContext(ctx).Where("warehouse_id = ? AND active = ?", warehouseID, true).Order("id ASC").Find(&list).Error
	return list, err
}

// CountActiveTasks 主修接待单、诊断中案例、未结束工单行各计一项
func (r *TechnicianRepository) CountActiveTasks(ctx context.Context, technicianIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(technicianIDs))
	if len(technicianIDs) == 0 {
		return counts, nil
	}
	closedRecords := []entity.RecordStatus{entity.RecordStatusCompleted, entity.RecordStatusCancelled}
	var rows []struct {
		TechID string
		N      int
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT tech_id, COUNT(*) AS n FROM (
			SELECT main_technician_id AS tech_id FROM wty_processing_records
			WHERE main_technician_id IN ? AND status NOT IN ?
			UNION ALL
			SELECT lead_tech_id FROM wty_guarantee_cases
			WHERE lead_tech_id IN ? AND status = ?
			UNION ALL
			SELECT diagnostic_tech_id FROM wty_case_lines
			WHERE diagnostic_tech_id IN ? AND status NOT IN ?
			UNION ALL
			SELECT repair_tech_id FROM wty_case_lines
			WHERE repair_tech_id IN ? AND status NOT IN ?
		) t GROUP BY tech_id
	`,
		technicianIDs, closedRecords,
		technicianIDs, entity.CaseStatusInDiagnosis,
		technicianIDs, TerminalLineStatuses,
		technicianIDs, TerminalLineStatuses,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.TechID] = row.N
	}
	return counts, nil
}

func (r *TechnicianRepository) NextAvailableSlots(ctx context.Context, technicianIDs []string, from time.Time) (map[string]time.Time, error) {
	slots := make(map[string]time.Time, len(technicianIDs))
	if len(technicianIDs) == 0 {
		return slots, nil
	}
	var schedules []entity.WorkSchedule
	err := r.db.WithContext(ctx).
		Where("technician_id IN ? AND available = ? AND ends_at > ?", technicianIDs, true, from).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return EarliestSlots(schedules, from), nil
}

// EarliestSlots 进行中的时段按 from 计
func EarliestSlots(schedules []entity.WorkSchedule, from time.Time) map[string]time.Time {
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].StartsAt.Before(schedules[j].StartsAt) })
	slots := make(map[string]time.Time)
	for _, s := range schedules {
		if !s.Available || !s.EndsAt.After(from) {
			continue
		}
		start := s.StartsAt
		if start.Before(from) {
			start = from
		}
		if cur, ok := slots[s.TechnicianID]; !ok || start.Before(cur) {
			slots[s.TechnicianID] = start
		}
	}
	return slots
}
