package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

// TransferListener 调拨完成回调
type TransferListener func(ctx context.Context, t *entity.StockTransferRequest)

// TransferOrchestrator 仓间调拨：自动选源、审批、发运、到货
type TransferOrchestrator struct {
	*runner
	ledger    *StockLedger
	listeners []TransferListener
}

// TransferItemRequest 调拨明细
type TransferItemRequest struct {
	TypeComponentID string `json:"type_component_id" binding:"required"`
	Quantity        int    `json:"quantity" binding:"required,gt=0"`
}

// CreateTransferRequest 手工调拨申请
type CreateTransferRequest struct {
	RequestingWarehouseID string                `json:"requesting_warehouse_id" binding:"required"`
	SupplyingWarehouseID  string                `json:"supplying_warehouse_id" binding:"required"`
	Items                 []TransferItemRequest `json:"items" binding:"required,min=1,dive"`
	Reason                string                `json:"reason"`
}

// OnCompleted 注册调拨完成回调
func (o *TransferOrchestrator) OnCompleted(fn TransferListener) {
	o.listeners = append(o.listeners, fn)
}

// Source 为缺料工单行自动选源：按优先级依次尝试候选仓库，
// 第一个能整单占用的仓库生成已审批调拨单；都不满足时向优先级最低的候选仓库提交待审批申请。
func (o *TransferOrchestrator) Source(ctx context.Context, requestingWarehouseID string, items []TransferItemRequest, lineID *string, actorID string) (*entity.StockTransferRequest, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	requester, err := o.store.Warehouses().Get(ctx, requestingWarehouseID)
	if err != nil {
		return nil, err
	}
	candidates, err := o.candidates(ctx, requester)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, apperr.Validation("没有可为仓库 %s 供货的候选仓库", requester.Name)
	}

	for _, cand := range candidates {
		t := o.newTransfer(requester.ID, cand.ID, items, lineID, actorID)
		t.AutoSourced = true
		err := o.run(ctx, func(tx *Tx) error {
			if err := o.hold(ctx, tx, t, actorID); err != nil {
				return err
			}
			now := o.now()
			t.Status = entity.TransferStatusApproved
			t.ApprovedBy = SystemActor
			t.ApprovedAt = &now
			if err := tx.Transfers().Create(ctx, t); err != nil {
				return fmt.Errorf("创建调拨单失败: %w", err)
			}
			tx.Emit(o.event(events.SubjectTransferStatus, t.ID, "", string(t.Status), actorID))
			return nil
		})
		if err == nil {
			o.logger.Info("transfer auto sourced",
				zap.String("transfer_id", t.ID),
				zap.String("from", cand.ID),
				zap.String("to", requester.ID),
			)
			return t, nil
		}
		kind := apperr.KindOf(err)
		if kind != apperr.KindInsufficientStock && kind != apperr.KindLedgerCorruption {
			return nil, err
		}
		o.logger.Debug("transfer candidate skipped", zap.String("warehouse_id", cand.ID), zap.Error(err))
	}

	fallback := candidates[len(candidates)-1]
	t := o.newTransfer(requester.ID, fallback.ID, items, lineID, actorID)
	t.AutoSourced = true
	t.Status = entity.TransferStatusPending
	err = o.run(ctx, func(tx *Tx) error {
		if err := tx.Transfers().Create(ctx, t); err != nil {
			return fmt.Errorf("创建调拨单失败: %w", err)
		}
		tx.Emit(o.event(events.SubjectTransferStatus, t.ID, "", string(t.Status), actorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// candidates 公司仓始终可作来源；服务中心仅当优先级高于申请方时可作来源。冻结仓库排除。
func (o *TransferOrchestrator) candidates(ctx context.Context, requester *entity.Warehouse) ([]entity.Warehouse, error) {
	all, err := o.store.Warehouses().List(ctx)
	if err != nil {
		return nil, err
	}
	var out []entity.Warehouse
	for _, w := range all {
		if w.ID == requester.ID || w.LedgerHalted {
			continue
		}
		if w.Context == entity.WarehouseContextCompany || w.Priority < requester.Priority {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Create 手工调拨申请，待审批
func (o *TransferOrchestrator) Create(ctx context.Context, req CreateTransferRequest, actorID string) (*entity.StockTransferRequest, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if req.RequestingWarehouseID == req.SupplyingWarehouseID {
		return nil, apperr.Validation("调出与调入仓库不能相同")
	}
	t := o.newTransfer(req.RequestingWarehouseID, req.SupplyingWarehouseID, req.Items, nil, actorID)
	t.Status = entity.TransferStatusPending
	t.Reason = req.Reason
	err := o.run(ctx, func(tx *Tx) error {
		for _, id := range []string{req.RequestingWarehouseID, req.SupplyingWarehouseID} {
			if _, err := tx.Warehouses().Get(ctx, id); err != nil {
				return err
			}
		}
		for _, item := range req.Items {
			if _, err := tx.Catalog().GetTypeComponent(ctx, item.TypeComponentID); err != nil {
				return err
			}
		}
		if err := tx.Transfers().Create(ctx, t); err != nil {
			return fmt.Errorf("创建调拨单失败: %w", err)
		}
		tx.Emit(o.event(events.SubjectTransferStatus, t.ID, "", string(t.Status), actorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Get 调拨单详情
func (o *TransferOrchestrator) Get(ctx context.Context, id string) (*entity.StockTransferRequest, error) {
	return o.store.Transfers().Get(ctx, id)
}

// List 调拨单列表
func (o *TransferOrchestrator) List(ctx context.Context, f repository.TransferFilter) ([]entity.StockTransferRequest, int64, error) {
	return o.store.Transfers().List(ctx, f)
}

// Approve 审批：在供货仓占用库存，不足时返回 InsufficientStock 并保持待审批
func (o *TransferOrchestrator) Approve(ctx context.Context, id, actorID string) (*entity.StockTransferRequest, error) {
	return o.transition(ctx, id, entity.TransferStatusApproved, actorID, func(tx *Tx, t *entity.StockTransferRequest) error {
		if err := o.hold(ctx, tx, t, actorID); err != nil {
			return err
		}
		for i := range t.Items {
			if err := tx.Transfers().UpdateItem(ctx, &t.Items[i]); err != nil {
				return fmt.Errorf("更新调拨明细失败: %w", err)
			}
		}
		now := o.now()
		t.ApprovedBy = actorID
		t.ApprovedAt = &now
		return nil
	})
}

// Reject 驳回待审批申请
func (o *TransferOrchestrator) Reject(ctx context.Context, id, reason, actorID string) (*entity.StockTransferRequest, error) {
	return o.transition(ctx, id, entity.TransferStatusRejected, actorID, func(tx *Tx, t *entity.StockTransferRequest) error {
		t.Reason = joinReason(t.Reason, reason)
		return nil
	})
}

// Cancel 取消未发运的调拨单并释放占用
func (o *TransferOrchestrator) Cancel(ctx context.Context, id, reason, actorID string) (*entity.StockTransferRequest, error) {
	return o.transition(ctx, id, entity.TransferStatusCancelled, actorID, func(tx *Tx, t *entity.StockTransferRequest) error {
		for _, item := range t.Items {
			if item.HoldID == nil {
				continue
			}
			if err := o.ledger.release(ctx, tx, *item.HoldID, actorID); err != nil {
				return err
			}
		}
		t.Reason = joinReason(t.Reason, reason)
		return nil
	})
}

// Ship 发运
func (o *TransferOrchestrator) Ship(ctx context.Context, id, actorID string) (*entity.StockTransferRequest, error) {
	return o.transition(ctx, id, entity.TransferStatusInTransit, actorID, func(tx *Tx, t *entity.StockTransferRequest) error {
		now := o.now()
		t.ShippedAt = &now
		return nil
	})
}

// Complete 到货：供货仓消耗占用，配件转入申请仓并入账，随后通知等待该调拨的工单行
func (o *TransferOrchestrator) Complete(ctx context.Context, id, actorID string) (*entity.StockTransferRequest, error) {
	t, err := o.transition(ctx, id, entity.TransferStatusCompleted, actorID, func(tx *Tx, t *entity.StockTransferRequest) error {
		ref := Ref{Type: entity.ReferenceTransfer, ID: t.ID, ActorID: actorID}
		for _, item := range t.Items {
			if item.HoldID == nil {
				return apperr.Validation("调拨明细 %s 缺少库存占用", item.ID)
			}
			if err := o.ledger.consume(ctx, tx, *item.HoldID, actorID); err != nil {
				return err
			}
			moved, err := tx.Components().MoveInStock(ctx, t.SupplyingWarehouseID, t.RequestingWarehouseID, item.TypeComponentID, item.QuantityRequested)
			if err != nil {
				return fmt.Errorf("移动配件失败: %w", err)
			}
			if moved < item.QuantityRequested {
				return apperr.Corruption(t.SupplyingWarehouseID, "调拨 %s 需移出%d件，仓库仅有%d件在库配件",
					t.Code, item.QuantityRequested, moved).With("type_component_id", item.TypeComponentID)
			}
			if _, err := o.ledger.receive(ctx, tx, t.RequestingWarehouseID, item.TypeComponentID, item.QuantityRequested, ref); err != nil {
				return err
			}
		}
		now := o.now()
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, fn := range o.listeners {
		fn(ctx, t)
	}
	return t, nil
}

func (o *TransferOrchestrator) transition(ctx context.Context, id string, to entity.TransferStatus, actorID string, apply func(tx *Tx, t *entity.StockTransferRequest) error) (*entity.StockTransferRequest, error) {
	var t *entity.StockTransferRequest
	err := o.run(ctx, func(tx *Tx) error {
		var err error
		if t, err = tx.Transfers().Get(ctx, id); err != nil {
			return err
		}
		from := t.Status
		if !from.CanTransitionTo(to) {
			return apperr.InvalidTransition("StockTransferRequest", id, from, to)
		}
		if err := apply(tx, t); err != nil {
			return err
		}
		t.Status = to
		if err := tx.Transfers().Update(ctx, t, from); err != nil {
			return err
		}
		tx.Emit(o.event(events.SubjectTransferStatus, id, string(from), string(to), actorID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// hold 在供货仓为每条明细占用库存
func (o *TransferOrchestrator) hold(ctx context.Context, tx *Tx, t *entity.StockTransferRequest, actorID string) error {
	ref := Ref{Type: entity.ReferenceTransfer, ID: t.ID, ActorID: actorID}
	for i := range t.Items {
		holds, err := o.ledger.reserve(ctx, tx, t.SupplyingWarehouseID, t.Items[i].TypeComponentID, t.Items[i].QuantityRequested, false, ref)
		if err != nil {
			return err
		}
		t.Items[i].HoldID = &holds[0].ID
	}
	return nil
}

func (o *TransferOrchestrator) newTransfer(requesting, supplying string, items []TransferItemRequest, lineID *string, actorID string) *entity.StockTransferRequest {
	id := uuid.New().String()
	t := &entity.StockTransferRequest{
		ID:                    id,
		Code:                  fmt.Sprintf("TR-%s-%s", o.now().Format("20060102"), strings.ToUpper(id[:6])),
		RequestingWarehouseID: requesting,
		SupplyingWarehouseID:  supplying,
		CaseLineID:            lineID,
		RequestedBy:           actorID,
		CreatedAt:             o.now(),
	}
	for _, item := range items {
		t.Items = append(t.Items, entity.StockTransferItem{
			ID:                uuid.New().String(),
			TransferID:        id,
			TypeComponentID:   item.TypeComponentID,
			QuantityRequested: item.Quantity,
		})
	}
	return t
}

func validateItems(items []TransferItemRequest) error {
	if len(items) == 0 {
		return apperr.Validation("调拨明细不能为空")
	}
	for _, item := range items {
		if item.TypeComponentID == "" || item.Quantity <= 0 {
			return apperr.Validation("调拨明细配件与数量必填且数量大于0")
		}
	}
	return nil
}

func joinReason(existing, reason string) string {
	switch {
	case reason == "":
		return existing
	case existing == "":
		return reason
	default:
		return existing + "; " + reason
	}
}
