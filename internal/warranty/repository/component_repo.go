package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var skipLocked = clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}

type ComponentRepository struct {
	db *gorm.DB
}

func NewComponentRepository(db *gorm.DB) *ComponentRepository {
	return &ComponentRepository{db: db}
}

func (r *ComponentRepository) Create(ctx context.Context, c *entity.Component) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *ComponentRepository) Get(ctx context.Context, id string) (*entity.Component, error) {
	var c entity.Component
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err, "Component", id)
	}
	return &c, nil
}

func (r *ComponentRepository) GetBySerial(ctx context.Context, serial string) (*entity.Component, error) {
	var c entity.Component
	if err := r.db.WithContext(ctx).Where("serial_number = ?", serial).First(&c).Error; err != nil {
		return nil, translate(err, "Component", serial)
	}
	return &c, nil
}

// ClaimInStock 跳过其他事务已锁定的配件，先入先出
func (r *ComponentRepository) ClaimInStock(ctx context.Context, warehouseID, typeComponentID string) (*entity.Component, error) {
	var c entity.Component
	err := r.db.WithContext(ctx).Clauses(skipLocked).
		Where("warehouse_id = ? AND type_component_id = ? AND status = ?", warehouseID, typeComponentID, entity.ComponentStatusInStock).
		Order("created_at ASC, id ASC").
		First(&c).Error
	if err != nil {
		return nil, translate(err, "Component", warehouseID+"/"+typeComponentID)
	}
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Component{}).
		Where("id = ? AND status = ?", c.ID, entity.ComponentStatusInStock).
		Updates(map[string]interface{}{"status": entity.ComponentStatusReserved, "updated_at": now})
	if err := casResult(res, "Component", c.ID, entity.ComponentStatusInStock); err != nil {
		return nil, err
	}
	c.Status = entity.ComponentStatusReserved
	c.UpdatedAt = now
	return &c, nil
}

func (r *ComponentRepository) MoveInStock(ctx context.Context, fromWarehouseID, toWarehouseID, typeComponentID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, nil
	}
	var picked []entity.Component
	err := r.db.WithContext(ctx).Clauses(skipLocked).Select("id").
		Where("warehouse_id = ? AND type_component_id = ? AND status = ?", fromWarehouseID, typeComponentID, entity.ComponentStatusInStock).
		Order("created_at ASC, id ASC").
		Limit(qty).
		Find(&picked).Error
	if err != nil {
		return 0, err
	}
	if len(picked) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(picked))
	for _, c := range picked {
		ids = append(ids, c.ID)
	}
	res := r.db.WithContext(ctx).Model(&entity.Component{}).
		Where("id IN ? AND status = ?", ids, entity.ComponentStatusInStock).
		Updates(map[string]interface{}{"warehouse_id": toWarehouseID, "updated_at": time.Now()})
	return int(res.RowsAffected), res.Error
}

func (r *ComponentRepository) Update(ctx context.Context, c *entity.Component) error {
	c.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(c).Error
}

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, res *entity.ComponentReservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *ReservationRepository) Get(ctx context.Context, id string) (*entity.ComponentReservation, error) {
	var res entity.ComponentReservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, translate(err, "ComponentReservation", id)
	}
	return &res, nil
}

func (r *ReservationRepository) ListByLine(ctx context.Context, caseLineID string) ([]entity.ComponentReservation, error) {
	var list []entity.ComponentReservation
	err := r.db.WithContext(ctx).Where("case_line_id = ?", caseLineID).Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *ReservationRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]entity.ComponentReservation, error) {
	var list []entity.ComponentReservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", entity.ReservationStatusReserved, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *ReservationRepository) Update(ctx context.Context, res *entity.ComponentReservation, expected entity.ReservationStatus) error {
	res.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(res).
		Where("status = ?", expected).
		Select("*").Omit("created_at").
		Updates(res)
	return casResult(result, "ComponentReservation", res.ID, expected)
}
