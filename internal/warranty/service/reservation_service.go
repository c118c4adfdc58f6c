package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
)

// ReservationManager 工单行配件预留，每件配件一条预留记录，对应一张账本占用
type ReservationManager struct {
	*runner
	ledger *StockLedger
}

// ReservationRequest 预留请求
type ReservationRequest struct {
	CaseLineID      string
	TypeComponentID string
	Quantity        int
	WarehouseID     string
}

// InstallRequest 安装确认
type InstallRequest struct {
	VIN                string `json:"vin"`
	OldComponentSerial string `json:"old_component_serial"`
}

// RequestReservation 为工单行预留配件，全部成功或全部失败
func (m *ReservationManager) RequestReservation(ctx context.Context, req ReservationRequest, actorID string) ([]entity.ComponentReservation, error) {
	var out []entity.ComponentReservation
	err := m.run(ctx, func(tx *Tx) error {
		var err error
		out, err = m.request(ctx, tx, req, actorID)
		return err
	})
	return out, err
}

func (m *ReservationManager) request(ctx context.Context, tx *Tx, req ReservationRequest, actorID string) ([]entity.ComponentReservation, error) {
	if req.Quantity <= 0 {
		return nil, apperr.Validation("预留数量必须大于0")
	}
	line, err := tx.Lines().Get(ctx, req.CaseLineID)
	if err != nil {
		return nil, err
	}
	active, err := m.active(ctx, tx, line.ID)
	if err != nil {
		return nil, err
	}
	if len(active)+req.Quantity > line.Quantity {
		return nil, apperr.New(apperr.KindConflict, "工单行 %s 已预留%d件，需求%d件，不能再预留%d件",
			line.ID, len(active), line.Quantity, req.Quantity)
	}

	holds, err := m.ledger.reserve(ctx, tx, req.WarehouseID, req.TypeComponentID, req.Quantity, true,
		Ref{Type: entity.ReferenceReservation, ID: line.ID, ActorID: actorID})
	if err != nil {
		return nil, err
	}

	out := make([]entity.ComponentReservation, 0, len(holds))
	for _, hold := range holds {
		comp, err := tx.Components().ClaimInStock(ctx, req.WarehouseID, req.TypeComponentID)
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Corruption(req.WarehouseID, "账本显示有可用库存但仓库中没有在库配件").
				With("type_component_id", req.TypeComponentID)
		}
		if err != nil {
			return nil, fmt.Errorf("锁定配件失败: %w", err)
		}
		res := entity.ComponentReservation{
			ID:              uuid.New().String(),
			CaseLineID:      line.ID,
			ComponentID:     comp.ID,
			TypeComponentID: req.TypeComponentID,
			WarehouseID:     req.WarehouseID,
			HoldID:          hold.ID,
			Status:          entity.ReservationStatusReserved,
			CreatedAt:       m.now(),
		}
		if err := tx.Reservations().Create(ctx, &res); err != nil {
			return nil, fmt.Errorf("创建预留失败: %w", err)
		}
		tx.Emit(m.event(events.SubjectReservationStatus, res.ID, "", string(res.Status), actorID))
		out = append(out, res)
	}
	return out, nil
}

// PickUp 技师领料
func (m *ReservationManager) PickUp(ctx context.Context, id, staffID string) (*entity.ComponentReservation, error) {
	var res *entity.ComponentReservation
	err := m.run(ctx, func(tx *Tx) error {
		var err error
		if res, err = tx.Reservations().Get(ctx, id); err != nil {
			return err
		}
		if res.Status != entity.ReservationStatusReserved {
			return apperr.InvalidTransition("ComponentReservation", id, res.Status, entity.ReservationStatusPickedUp)
		}
		now := m.now()
		res.Status = entity.ReservationStatusPickedUp
		res.PickedUpBy = staffID
		res.PickedUpAt = &now
		if err := tx.Reservations().Update(ctx, res, entity.ReservationStatusReserved); err != nil {
			return err
		}
		tx.Emit(m.event(events.SubjectReservationStatus, id, string(entity.ReservationStatusReserved), string(res.Status), staffID))
		return nil
	})
	return res, err
}

// Install 装车：消耗账本占用，配件归属车辆
func (m *ReservationManager) Install(ctx context.Context, id string, req InstallRequest, actorID string) (*entity.ComponentReservation, error) {
	var res *entity.ComponentReservation
	err := m.run(ctx, func(tx *Tx) error {
		var err error
		if res, err = tx.Reservations().Get(ctx, id); err != nil {
			return err
		}
		if res.Status != entity.ReservationStatusPickedUp {
			return apperr.InvalidTransition("ComponentReservation", id, res.Status, entity.ReservationStatusInstalled)
		}
		line, err := tx.Lines().Get(ctx, res.CaseLineID)
		if err != nil {
			return err
		}
		vin := req.VIN
		if vin == "" {
			vin = line.VIN
		}
		if vin != line.VIN {
			return apperr.Validation("安装车辆 %s 与工单车辆 %s 不一致", vin, line.VIN)
		}

		if err := m.ledger.consume(ctx, tx, res.HoldID, actorID); err != nil {
			return err
		}
		comp, err := tx.Components().Get(ctx, res.ComponentID)
		if err != nil {
			return err
		}
		now := m.now()
		comp.Status = entity.ComponentStatusInstalled
		comp.WarehouseID = nil
		comp.VehicleVIN = &vin
		comp.InstalledAt = &now
		if err := tx.Components().Update(ctx, comp); err != nil {
			return fmt.Errorf("更新配件失败: %w", err)
		}

		res.Status = entity.ReservationStatusInstalled
		res.InstalledVIN = vin
		res.InstalledAt = &now
		if req.OldComponentSerial != "" {
			res.OldComponentSerial = req.OldComponentSerial
			res.OldComponentReturn = entity.OldPartReturnPending
		}
		if err := tx.Reservations().Update(ctx, res, entity.ReservationStatusPickedUp); err != nil {
			return err
		}
		tx.Emit(m.event(events.SubjectReservationStatus, id, string(entity.ReservationStatusPickedUp), string(res.Status), actorID))
		return nil
	})
	return res, err
}

// Cancel 取消预留；已取消时直接返回。damaged 表示配件已损坏，占用被消耗而不是释放。
// 所属工单行处于待维修或维修中时退回缺料，等待重新预留。
func (m *ReservationManager) Cancel(ctx context.Context, id, reason string, damaged bool, actorID string) (*entity.ComponentReservation, error) {
	var res *entity.ComponentReservation
	err := m.run(ctx, func(tx *Tx) error {
		var err error
		if res, err = tx.Reservations().Get(ctx, id); err != nil {
			return err
		}
		if res.Status == entity.ReservationStatusCancelled {
			return nil
		}
		if err := m.cancel(ctx, tx, res, reason, damaged, actorID); err != nil {
			return err
		}
		_, err = m.reopenLine(ctx, tx, res.CaseLineID, actorID)
		return err
	})
	return res, err
}

func (m *ReservationManager) cancel(ctx context.Context, tx *Tx, res *entity.ComponentReservation, reason string, damaged bool, actorID string) error {
	from := res.Status
	switch from {
	case entity.ReservationStatusCancelled:
		return nil
	case entity.ReservationStatusReserved, entity.ReservationStatusPickedUp:
	default:
		return apperr.InvalidTransition("ComponentReservation", res.ID, from, entity.ReservationStatusCancelled)
	}

	comp, err := tx.Components().Get(ctx, res.ComponentID)
	if err != nil {
		return err
	}
	if damaged {
		if err := m.ledger.consume(ctx, tx, res.HoldID, actorID); err != nil {
			return err
		}
		comp.Status = entity.ComponentStatusDefective
	} else {
		if err := m.ledger.release(ctx, tx, res.HoldID, actorID); err != nil {
			return err
		}
		comp.Status = entity.ComponentStatusInStock
	}
	if err := tx.Components().Update(ctx, comp); err != nil {
		return fmt.Errorf("更新配件失败: %w", err)
	}

	now := m.now()
	res.Status = entity.ReservationStatusCancelled
	res.CancelReason = reason
	res.CancelledAt = &now
	if err := tx.Reservations().Update(ctx, res, from); err != nil {
		return err
	}
	tx.Emit(m.event(events.SubjectReservationStatus, res.ID, string(from), string(res.Status), actorID))
	return nil
}

// Return 已装车配件退回。维修中的工单行退回缺料，补齐预留后重新装车。
func (m *ReservationManager) Return(ctx context.Context, id, reason string, defective bool, actorID string) (*entity.ComponentReservation, error) {
	var res *entity.ComponentReservation
	err := m.run(ctx, func(tx *Tx) error {
		var err error
		if res, err = tx.Reservations().Get(ctx, id); err != nil {
			return err
		}
		if res.Status != entity.ReservationStatusInstalled {
			return apperr.InvalidTransition("ComponentReservation", id, res.Status, entity.ReservationStatusReturned)
		}
		comp, err := tx.Components().Get(ctx, res.ComponentID)
		if err != nil {
			return err
		}
		comp.Status = entity.ComponentStatusReturned
		if defective {
			comp.Status = entity.ComponentStatusDefective
		}
		comp.VehicleVIN = nil
		if err := tx.Components().Update(ctx, comp); err != nil {
			return fmt.Errorf("更新配件失败: %w", err)
		}

		now := m.now()
		res.Status = entity.ReservationStatusReturned
		res.ReturnReason = reason
		res.ReturnedAt = &now
		if err := tx.Reservations().Update(ctx, res, entity.ReservationStatusInstalled); err != nil {
			return err
		}
		tx.Emit(m.event(events.SubjectReservationStatus, id, string(entity.ReservationStatusInstalled), string(res.Status), actorID))
		_, err = m.reopenLine(ctx, tx, res.CaseLineID, actorID)
		return err
	})
	return res, err
}

// ConfirmOldPartReturn 确认换下的旧件已回收
func (m *ReservationManager) ConfirmOldPartReturn(ctx context.Context, id, actorID string) (*entity.ComponentReservation, error) {
	var res *entity.ComponentReservation
	err := m.run(ctx, func(tx *Tx) error {
		var err error
		if res, err = tx.Reservations().Get(ctx, id); err != nil {
			return err
		}
		if res.OldComponentReturn != entity.OldPartReturnPending {
			return apperr.InvalidTransition("OldComponentReturn", id, res.OldComponentReturn, entity.OldPartReturnReturned)
		}
		if old, err := tx.Components().GetBySerial(ctx, res.OldComponentSerial); err == nil {
			old.Status = entity.ComponentStatusReturned
			old.VehicleVIN = nil
			if err := tx.Components().Update(ctx, old); err != nil {
				return fmt.Errorf("更新旧件失败: %w", err)
			}
		} else if apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
		res.OldComponentReturn = entity.OldPartReturnReturned
		return tx.Reservations().Update(ctx, res, res.Status)
	})
	return res, err
}

// Get 预留详情
func (m *ReservationManager) Get(ctx context.Context, id string) (*entity.ComponentReservation, error) {
	return m.store.Reservations().Get(ctx, id)
}

// ListByLine 工单行的全部预留
func (m *ReservationManager) ListByLine(ctx context.Context, lineID string) ([]entity.ComponentReservation, error) {
	if _, err := m.store.Lines().Get(ctx, lineID); err != nil {
		return nil, err
	}
	return m.store.Reservations().ListByLine(ctx, lineID)
}

// active 未结束（RESERVED/PICKED_UP/INSTALLED）的预留
func (m *ReservationManager) active(ctx context.Context, tx *Tx, lineID string) ([]entity.ComponentReservation, error) {
	all, err := tx.Reservations().ListByLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	var out []entity.ComponentReservation
	for _, r := range all {
		if r.Status.IsActive() {
			out = append(out, r)
		}
	}
	return out, nil
}

// releaseLine 释放工单行上尚未装车的预留
func (m *ReservationManager) releaseLine(ctx context.Context, tx *Tx, lineID, reason, actorID string) error {
	all, err := tx.Reservations().ListByLine(ctx, lineID)
	if err != nil {
		return err
	}
	for i := range all {
		res := all[i]
		if res.Status != entity.ReservationStatusReserved && res.Status != entity.ReservationStatusPickedUp {
			continue
		}
		if err := m.cancel(ctx, tx, &res, reason, false, actorID); err != nil {
			return err
		}
	}
	return nil
}
