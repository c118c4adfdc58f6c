package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repositories 基于 gorm 的存储集合
type Repositories struct {
	db *gorm.DB

	Warehouse   *WarehouseRepository
	Stock       *StockRepository
	Component   *ComponentRepository
	Reservation *ReservationRepository
	Record      *RecordRepository
	Case        *CaseRepository
	Line        *LineRepository
	Transfer    *TransferRepository
	Catalogs    *CatalogRepository
	Technician  *TechnicianRepository
	Attachment  *AttachmentRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Warehouse:   NewWarehouseRepository(db),
		Stock:       NewStockRepository(db),
		Component:   NewComponentRepository(db),
		Reservation: NewReservationRepository(db),
		Record:      NewRecordRepository(db),
		Case:        NewCaseRepository(db),
		Line:        NewLineRepository(db),
		Transfer:    NewTransferRepository(db),
		Catalogs:    NewCatalogRepository(db),
		Technician:  NewTechnicianRepository(db),
		Attachment:  NewAttachmentRepository(db),
	}
}

func (r *Repositories) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func (r *Repositories) Warehouses() WarehouseStore     { return r.Warehouse }
func (r *Repositories) Stocks() StockStore             { return r.Stock }
func (r *Repositories) Components() ComponentStore     { return r.Component }
func (r *Repositories) Reservations() ReservationStore { return r.Reservation }
func (r *Repositories) Records() RecordStore           { return r.Record }
func (r *Repositories) Cases() CaseStore               { return r.Case }
func (r *Repositories) Lines() LineStore               { return r.Line }
func (r *Repositories) Transfers() TransferStore       { return r.Transfer }
func (r *Repositories) Catalog() CatalogStore          { return r.Catalogs }
func (r *Repositories) Technicians() TechnicianStore   { return r.Technician }
func (r *Repositories) Attachments() AttachmentStore   { return r.Attachment }

var forUpdate = clause.Locking{Strength: "UPDATE"}

func translate(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

// casResult 条件更新未命中即视为状态已被并发修改
func casResult(res *gorm.DB, entity, id string, expected any) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindInvalidStateTransition, "%s %s 当前状态不是 %v", entity, id, expected).
			With("entity", entity)
	}
	return nil
}
