// Package memory 进程内存储实现，用于本地开发与测试。
//
// 所有写入串行化在一把互斥锁上；Transaction 在状态副本上执行，
// 成功后整体替换，失败则丢弃副本。
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

type state struct {
	warehouses     map[string]entity.Warehouse
	stocks         map[string]entity.Stock
	holds          map[string]entity.StockHold
	journal        []entity.StockTransaction
	components     map[string]entity.Component
	reservations   map[string]entity.ComponentReservation
	records        map[string]entity.VehicleProcessingRecord
	cases          map[string]entity.GuaranteeCase
	lines          map[string]entity.CaseLine
	attachments    map[string]entity.LineAttachment
	transfers      map[string]entity.StockTransferRequest
	transferItems  map[string]entity.StockTransferItem
	models         map[string]entity.VehicleModel
	vehicles       map[string]entity.Vehicle
	typeComponents map[string]entity.TypeComponent
	warranties     map[string]entity.WarrantyComponent
	technicians    map[string]entity.Technician
	schedules      map[string]entity.WorkSchedule
}

func newState() *state {
	return &state{
		warehouses:     map[string]entity.Warehouse{},
		stocks:         map[string]entity.Stock{},
		holds:          map[string]entity.StockHold{},
		components:     map[string]entity.Component{},
		reservations:   map[string]entity.ComponentReservation{},
		records:        map[string]entity.VehicleProcessingRecord{},
		cases:          map[string]entity.GuaranteeCase{},
		lines:          map[string]entity.CaseLine{},
		attachments:    map[string]entity.LineAttachment{},
		transfers:      map[string]entity.StockTransferRequest{},
		transferItems:  map[string]entity.StockTransferItem{},
		models:         map[string]entity.VehicleModel{},
		vehicles:       map[string]entity.Vehicle{},
		typeComponents: map[string]entity.TypeComponent{},
		warranties:     map[string]entity.WarrantyComponent{},
		technicians:    map[string]entity.Technician{},
		schedules:      map[string]entity.WorkSchedule{},
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		warehouses:     cloneMap(s.warehouses),
		stocks:         cloneMap(s.stocks),
		holds:          cloneMap(s.holds),
		journal:        append([]entity.StockTransaction(nil), s.journal...),
		components:     cloneMap(s.components),
		reservations:   cloneMap(s.reservations),
		records:        cloneMap(s.records),
		cases:          cloneMap(s.cases),
		lines:          cloneMap(s.lines),
		attachments:    cloneMap(s.attachments),
		transfers:      cloneMap(s.transfers),
		transferItems:  cloneMap(s.transferItems),
		models:         cloneMap(s.models),
		vehicles:       cloneMap(s.vehicles),
		typeComponents: cloneMap(s.typeComponents),
		warranties:     cloneMap(s.warranties),
		technicians:    cloneMap(s.technicians),
		schedules:      cloneMap(s.schedules),
	}
}

// Store 内存存储
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

func NewStore() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	draft := s.st.clone()
	if err := fn(&Store{mu: s.mu, st: draft, inTx: true}); err != nil {
		return err
	}
	*s.st = *draft
	return nil
}

// do 事务内直接操作副本，事务外单次操作加锁
func (s *Store) do(fn func(st *state) error) error {
	if s.inTx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Warehouses() repository.WarehouseStore     { return warehouseRepo{s} }
func (s *Store) Stocks() repository.StockStore             { return stockRepo{s} }
func (s *Store) Components() repository.ComponentStore     { return componentRepo{s} }
func (s *Store) Reservations() repository.ReservationStore { return reservationRepo{s} }
func (s *Store) Records() repository.RecordStore           { return recordRepo{s} }
func (s *Store) Cases() repository.CaseStore               { return caseRepo{s} }
func (s *Store) Lines() repository.LineStore               { return lineRepo{s} }
func (s *Store) Transfers() repository.TransferStore       { return transferRepo{s} }
func (s *Store) Catalog() repository.CatalogStore          { return catalogRepo{s} }
func (s *Store) Technicians() repository.TechnicianStore   { return technicianRepo{s} }
func (s *Store) Attachments() repository.AttachmentStore   { return attachmentRepo{s} }

func stamp(created *time.Time) time.Time {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	return now
}

func stockKey(warehouseID, typeComponentID string) string {
	return warehouseID + "|" + typeComponentID
}

var _ repository.Store = (*Store)(nil)
