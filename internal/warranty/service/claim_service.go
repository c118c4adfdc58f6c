package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/eligibility"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
)

// ClaimController 接待单、案例与工单行的状态机
type ClaimController struct {
	*runner
	eligibility  *EligibilityService
	reservations *ReservationManager
	transfers    *TransferOrchestrator
	balancer     *TaskAssignmentBalancer
}

// OpenRecordRequest 车辆进站
type OpenRecordRequest struct {
	VIN         string   `json:"vin" binding:"required"`
	WarehouseID string   `json:"warehouse_id" binding:"required"`
	Odometer    int      `json:"odometer" binding:"gte=0"`
	Cases       []string `json:"cases" binding:"required,min=1"`
}

// AddLineRequest 新增工单行；TypeComponentID 为空表示仅工时
type AddLineRequest struct {
	TypeComponentID  *string `json:"type_component_id"`
	Quantity         int     `json:"quantity"`
	DiagnosisText    string  `json:"diagnosis_text"`
	CorrectionText   string  `json:"correction_text"`
	DiagnosticTechID *string `json:"diagnostic_tech_id"`
	// CustomerPay 过保时转为客户自费，否则直接判定拒保
	CustomerPay bool `json:"customer_pay"`
}

// LineResult 批量操作单行结果
type LineResult struct {
	LineID string           `json:"line_id"`
	Line   *entity.CaseLine `json:"line,omitempty"`
	Kind   apperr.Kind      `json:"kind,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// ---- 接待单 ----

// OpenRecord 车辆进站登记，至少一条保修诉求
func (c *ClaimController) OpenRecord(ctx context.Context, req OpenRecordRequest, staffID string) (*entity.VehicleProcessingRecord, error) {
	var contents []string
	for _, content := range req.Cases {
		if s := strings.TrimSpace(content); s != "" {
			contents = append(contents, s)
		}
	}
	if len(contents) == 0 {
		return nil, apperr.Validation("至少需要一条保修诉求")
	}
	if req.Odometer < 0 {
		return nil, apperr.Validation("里程不能为负数")
	}

	var recordID string
	err := c.run(ctx, func(tx *Tx) error {
		if _, err := tx.Catalog().GetVehicle(ctx, req.VIN); err != nil {
			return err
		}
		if _, err := tx.Warehouses().Get(ctx, req.WarehouseID); err != nil {
			return err
		}
		active, err := tx.Records().FindActiveByVIN(ctx, req.VIN)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}
		if active != nil {
			return apperr.New(apperr.KindConflict, "车辆 %s 已有进行中的接待单 %s", req.VIN, active.ID).
				With("record_id", active.ID)
		}

		rec := &entity.VehicleProcessingRecord{
			ID:               uuid.New().String(),
			VIN:              req.VIN,
			WarehouseID:      req.WarehouseID,
			CheckInDate:      c.now(),
			Odometer:         req.Odometer,
			Status:           entity.RecordStatusCheckedIn,
			CreatedByStaffID: staffID,
		}
		if err := tx.Records().Create(ctx, rec); err != nil {
			return fmt.Errorf("创建接待单失败: %w", err)
		}
		for _, content := range contents {
			if _, err := c.createCase(ctx, tx, rec.ID, content); err != nil {
				return err
			}
		}
		recordID = rec.ID
		tx.Emit(c.event(events.SubjectRecordStatus, rec.ID, "", string(rec.Status), staffID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.store.Records().GetDetail(ctx, recordID)
}

// GetRecord 接待单详情，含案例与工单行
func (c *ClaimController) GetRecord(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error) {
	return c.store.Records().GetDetail(ctx, id)
}

// AssignMainTechnician 指定主修技师，进入诊断。techID 为空时自动派工。
func (c *ClaimController) AssignMainTechnician(ctx context.Context, recordID, techID, actorID string) (*entity.VehicleProcessingRecord, error) {
	err := c.run(ctx, func(tx *Tx) error {
		rec, err := tx.Records().Get(ctx, recordID)
		if err != nil {
			return err
		}
		from := rec.Status
		if from != entity.RecordStatusCheckedIn && from != entity.RecordStatusInDiagnosis {
			return apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, from, entity.RecordStatusInDiagnosis)
		}
		if techID == "" {
			if techID, err = c.balancer.pick(ctx, tx, rec.WarehouseID, nil); err != nil {
				return err
			}
		} else if _, err := tx.Technicians().Get(ctx, techID); err != nil {
			return err
		}
		rec.MainTechnicianID = &techID
		rec.Status = entity.RecordStatusInDiagnosis
		if err := tx.Records().Update(ctx, rec, from); err != nil {
			return err
		}
		if from != rec.Status {
			tx.Emit(c.event(events.SubjectRecordStatus, rec.ID, string(from), string(rec.Status), actorID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.store.Records().GetDetail(ctx, recordID)
}

// SubmitForApproval 全部案例诊断完成后提交客户确认
func (c *ClaimController) SubmitForApproval(ctx context.Context, recordID, actorID string) (*entity.VehicleProcessingRecord, error) {
	err := c.run(ctx, func(tx *Tx) error {
		rec, err := tx.Records().Get(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != entity.RecordStatusInDiagnosis {
			return apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, rec.Status, entity.RecordStatusWaitingCustomerApproval)
		}
		cases, err := tx.Cases().ListByRecord(ctx, recordID)
		if err != nil {
			return err
		}
		diagnosed := 0
		for _, gc := range cases {
			switch gc.Status {
			case entity.CaseStatusDiagnosed:
				diagnosed++
			case entity.CaseStatusCancelled:
			default:
				return apperr.New(apperr.KindInvalidStateTransition, "案例 %s 尚未完成诊断", gc.ID).
					With("case_id", gc.ID)
			}
		}
		if diagnosed == 0 {
			return apperr.New(apperr.KindInvalidStateTransition, "接待单 %s 没有已诊断的案例", rec.ID)
		}
		return c.moveRecord(ctx, tx, rec, entity.RecordStatusWaitingCustomerApproval, actorID)
	})
	if err != nil {
		return nil, err
	}
	return c.store.Records().GetDetail(ctx, recordID)
}

// MarkReadyForPickup 全部工单行结束后通知取车
func (c *ClaimController) MarkReadyForPickup(ctx context.Context, recordID, actorID string) (*entity.VehicleProcessingRecord, error) {
	err := c.run(ctx, func(tx *Tx) error {
		rec, err := tx.Records().Get(ctx, recordID)
		if err != nil {
			return err
		}
		if !rec.Status.CanTransitionTo(entity.RecordStatusReadyForPickup) {
			return apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, rec.Status, entity.RecordStatusReadyForPickup)
		}
		if open, err := c.openLine(ctx, tx, recordID); err != nil {
			return err
		} else if open != nil {
			return apperr.New(apperr.KindInvalidStateTransition, "工单行 %s 仍为 %s", open.ID, open.Status).
				With("line_id", open.ID)
		}
		return c.moveRecord(ctx, tx, rec, entity.RecordStatusReadyForPickup, actorID)
	})
	if err != nil {
		return nil, err
	}
	return c.store.Records().GetDetail(ctx, recordID)
}

// CompleteRecord 客户取车，接待单结束
func (c *ClaimController) CompleteRecord(ctx context.Context, recordID, actorID string) (*entity.VehicleProcessingRecord, error) {
	err := c.run(ctx, func(tx *Tx) error {
		rec, err := tx.Records().Get(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != entity.RecordStatusReadyForPickup {
			return apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, rec.Status, entity.RecordStatusCompleted)
		}
		if open, err := c.openLine(ctx, tx, recordID); err != nil {
			return err
		} else if open != nil {
			return apperr.New(apperr.KindInvalidStateTransition, "工单行 %s 仍为 %s", open.ID, open.Status)
		}
		now := c.now()
		rec.CheckOutDate = &now
		return c.moveRecord(ctx, tx, rec, entity.RecordStatusCompleted, actorID)
	})
	if err != nil {
		return nil, err
	}
	return c.store.Records().GetDetail(ctx, recordID)
}

// CancelRecord 取消接待单：释放全部预留，取消未结束的工单行与案例
func (c *ClaimController) CancelRecord(ctx context.Context, recordID, reason, actorID string) (*entity.VehicleProcessingRecord, error) {
	var orphaned []entity.CaseLine
	err := c.run(ctx, func(tx *Tx) error {
		rec, err := tx.Records().Get(ctx, recordID)
		if err != nil {
			return err
		}
		if !rec.Status.CanTransitionTo(entity.RecordStatusCancelled) {
			return apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, rec.Status, entity.RecordStatusCancelled)
		}
		lines, err := tx.Lines().ListByRecord(ctx, recordID)
		if err != nil {
			return err
		}
		for i := range lines {
			line := lines[i]
			if line.Status.IsTerminal() {
				continue
			}
			if err := c.terminateLine(ctx, tx, &line, entity.LineStatusCancelled, reason, actorID); err != nil {
				return err
			}
			if line.TransferRequestID != nil {
				orphaned = append(orphaned, line)
			}
		}
		cases, err := tx.Cases().ListByRecord(ctx, recordID)
		if err != nil {
			return err
		}
		for i := range cases {
			gc := cases[i]
			if gc.Status == entity.CaseStatusCancelled {
				continue
			}
			from := gc.Status
			gc.Status = entity.CaseStatusCancelled
			if err := tx.Cases().Update(ctx, &gc, from); err != nil {
				return err
			}
		}
		rec.CancelReason = reason
		return c.moveRecord(ctx, tx, rec, entity.RecordStatusCancelled, actorID)
	})
	if err != nil {
		return nil, err
	}
	for i := range orphaned {
		c.cancelLinkedTransfer(ctx, &orphaned[i], actorID)
	}
	return c.store.Records().GetDetail(ctx, recordID)
}

// ---- 案例 ----

// AddCase 诊断开始前后均可追加诉求
func (c *ClaimController) AddCase(ctx context.Context, recordID, content, actorID string) (*entity.GuaranteeCase, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("保修诉求不能为空")
	}
	var gc *entity.GuaranteeCase
	err := c.run(ctx, func(tx *Tx) error {
		rec, err := tx.Records().Get(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != entity.RecordStatusCheckedIn && rec.Status != entity.RecordStatusInDiagnosis {
			return apperr.New(apperr.KindInvalidStateTransition, "接待单状态 %s 不允许新增案例", rec.Status)
		}
		gc, err = c.createCase(ctx, tx, rec.ID, content)
		return err
	})
	return gc, err
}

// ListCases 接待单下的案例
func (c *ClaimController) ListCases(ctx context.Context, recordID string) ([]entity.GuaranteeCase, error) {
	if _, err := c.store.Records().Get(ctx, recordID); err != nil {
		return nil, err
	}
	return c.store.Cases().ListByRecord(ctx, recordID)
}

// AssignLeadTechnician 指定案例负责技师并开始诊断。techID 为空时自动派工。
func (c *ClaimController) AssignLeadTechnician(ctx context.Context, caseID, techID, actorID string) (*entity.GuaranteeCase, error) {
	var gc *entity.GuaranteeCase
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if gc, err = tx.Cases().Get(ctx, caseID); err != nil {
			return err
		}
		from := gc.Status
		if from != entity.CaseStatusPendingAssignment && from != entity.CaseStatusInDiagnosis {
			return apperr.InvalidTransition("GuaranteeCase", gc.ID, from, entity.CaseStatusInDiagnosis)
		}
		rec, err := tx.Records().Get(ctx, gc.RecordID)
		if err != nil {
			return err
		}
		if rec.Status != entity.RecordStatusCheckedIn && rec.Status != entity.RecordStatusInDiagnosis {
			return apperr.New(apperr.KindInvalidStateTransition, "接待单状态 %s 不允许派工诊断", rec.Status)
		}
		if techID == "" {
			if techID, err = c.balancer.pick(ctx, tx, rec.WarehouseID, nil); err != nil {
				return err
			}
		} else if _, err := tx.Technicians().Get(ctx, techID); err != nil {
			return err
		}
		gc.LeadTechID = &techID
		gc.Status = entity.CaseStatusInDiagnosis
		return tx.Cases().Update(ctx, gc, from)
	})
	return gc, err
}

// CompleteDiagnosis 案例下所有工单行均已填写诊断与方案
func (c *ClaimController) CompleteDiagnosis(ctx context.Context, caseID, actorID string) (*entity.GuaranteeCase, error) {
	var gc *entity.GuaranteeCase
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if gc, err = tx.Cases().Get(ctx, caseID); err != nil {
			return err
		}
		if gc.Status != entity.CaseStatusInDiagnosis {
			return apperr.InvalidTransition("GuaranteeCase", gc.ID, gc.Status, entity.CaseStatusDiagnosed)
		}
		lines, err := tx.Lines().ListByCase(ctx, caseID)
		if err != nil {
			return err
		}
		counted := 0
		for _, line := range lines {
			if line.Status == entity.LineStatusCancelled {
				continue
			}
			if !line.IsDiagnosed() {
				return apperr.New(apperr.KindInvalidStateTransition, "工单行 %s 未填写诊断或处理方案", line.ID).
					With("line_id", line.ID)
			}
			counted++
		}
		if counted == 0 {
			return apperr.New(apperr.KindInvalidStateTransition, "案例 %s 没有工单行", gc.ID)
		}
		gc.Status = entity.CaseStatusDiagnosed
		return tx.Cases().Update(ctx, gc, entity.CaseStatusInDiagnosis)
	})
	return gc, err
}

// ---- 工单行 ----

// AddLine 诊断中新增工单行并判定保修。保修数量只覆盖部分时拆成在保与过保两行。
func (c *ClaimController) AddLine(ctx context.Context, caseID string, req AddLineRequest, actorID string) ([]entity.CaseLine, error) {
	var created []entity.CaseLine
	err := c.run(ctx, func(tx *Tx) error {
		gc, err := tx.Cases().Get(ctx, caseID)
		if err != nil {
			return err
		}
		if gc.Status != entity.CaseStatusInDiagnosis {
			return apperr.New(apperr.KindInvalidStateTransition, "案例状态 %s 不允许新增工单行", gc.Status)
		}
		rec, err := tx.Records().Get(ctx, gc.RecordID)
		if err != nil {
			return err
		}
		if rec.Status != entity.RecordStatusInDiagnosis {
			return apperr.New(apperr.KindInvalidStateTransition, "接待单状态 %s 不允许新增工单行", rec.Status)
		}

		qty := req.Quantity
		if req.TypeComponentID == nil {
			qty = 1
		} else if qty <= 0 {
			return apperr.Validation("配件数量必须大于0")
		}

		result, err := c.eligibility.evaluate(ctx, tx, rec.VIN, req.TypeComponentID, rec.Odometer, qty, rec.CheckInDate)
		if err != nil {
			return err
		}

		base := entity.CaseLine{
			CaseID:           gc.ID,
			RecordID:         rec.ID,
			VIN:              rec.VIN,
			TypeComponentID:  req.TypeComponentID,
			DiagnosisText:    req.DiagnosisText,
			CorrectionText:   req.CorrectionText,
			DiagnosticTechID: req.DiagnosticTechID,
		}
		for _, line := range splitByCoverage(base, qty, result, req.CustomerPay) {
			line.CreatedAt = c.now()
			if err := tx.Lines().Create(ctx, &line); err != nil {
				return fmt.Errorf("创建工单行失败: %w", err)
			}
			tx.Emit(c.event(events.SubjectLineStatus, line.ID, "", string(line.Status), actorID))
			created = append(created, line)
		}
		return nil
	})
	return created, err
}

// splitByCoverage 按判定结果生成工单行
func splitByCoverage(base entity.CaseLine, qty int, result eligibility.Result, customerPay bool) []entity.CaseLine {
	ineligible := func(n int, note string) entity.CaseLine {
		line := base
		line.ID = uuid.New().String()
		line.Quantity = n
		line.WarrantyStatus = entity.WarrantyIneligible
		line.EligibilityNote = note
		if customerPay {
			line.BillingType = entity.BillingCustomerPay
			line.Status = entity.LineStatusPendingApproval
		} else {
			line.BillingType = entity.BillingWarranty
			line.Status = entity.LineStatusRejectedByOutOfWarranty
			line.RejectionReason = note
		}
		return line
	}

	if result.Status != entity.WarrantyEligible {
		return []entity.CaseLine{ineligible(qty, result.Reason)}
	}

	covered := base
	covered.ID = uuid.New().String()
	covered.Quantity = result.EligibleUnits
	covered.WarrantyStatus = entity.WarrantyEligible
	covered.BillingType = entity.BillingWarranty
	covered.Status = entity.LineStatusPendingApproval
	covered.EligibilityNote = fmt.Sprintf("%s条款，车龄%d个月", result.Terms.Source, result.AgeMonths)
	if !result.Partial(qty) {
		return []entity.CaseLine{covered}
	}

	rest := ineligible(qty-result.EligibleUnits, result.Reason)
	rest.SplitFromID = &covered.ID
	return []entity.CaseLine{covered, rest}
}

// UpdateDiagnosis 修改诊断与处理方案，仅限待确认的工单行
func (c *ClaimController) UpdateDiagnosis(ctx context.Context, lineID, diagnosis, correction, actorID string) (*entity.CaseLine, error) {
	var line *entity.CaseLine
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if line, err = tx.Lines().Get(ctx, lineID); err != nil {
			return err
		}
		if line.Status != entity.LineStatusPendingApproval && line.Status != entity.LineStatusRejectedByOutOfWarranty {
			return apperr.New(apperr.KindInvalidStateTransition, "工单行状态 %s 不允许修改诊断", line.Status)
		}
		gc, err := tx.Cases().Get(ctx, line.CaseID)
		if err != nil {
			return err
		}
		if gc.Status != entity.CaseStatusInDiagnosis {
			return apperr.New(apperr.KindInvalidStateTransition, "案例状态 %s 不允许修改诊断", gc.Status)
		}
		if diagnosis != "" {
			line.DiagnosisText = diagnosis
		}
		if correction != "" {
			line.CorrectionText = correction
		}
		return tx.Lines().Update(ctx, line, line.Status)
	})
	return line, err
}

// GetLine 工单行详情
func (c *ClaimController) GetLine(ctx context.Context, id string) (*entity.CaseLine, error) {
	return c.store.Lines().Get(ctx, id)
}

// ListLines 案例下的工单行
func (c *ClaimController) ListLines(ctx context.Context, caseID string) ([]entity.CaseLine, error) {
	if _, err := c.store.Cases().Get(ctx, caseID); err != nil {
		return nil, err
	}
	return c.store.Lines().ListByCase(ctx, caseID)
}

// ApproveLine 客户确认工单行：进入维修阶段并尝试预留配件。
// 库存不足时置为缺料并自动发起调拨，调拨失败不影响确认结果。
func (c *ClaimController) ApproveLine(ctx context.Context, lineID, actorID string) (*entity.CaseLine, error) {
	var (
		line *entity.CaseLine
		rec  *entity.VehicleProcessingRecord
	)
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if line, err = tx.Lines().Get(ctx, lineID); err != nil {
			return err
		}
		if line.Status != entity.LineStatusPendingApproval {
			return apperr.InvalidTransition("CaseLine", line.ID, line.Status, entity.LineStatusCustomerApproved)
		}
		if rec, err = tx.Records().Get(ctx, line.RecordID); err != nil {
			return err
		}
		if rec.Status != entity.RecordStatusWaitingCustomerApproval && rec.Status != entity.RecordStatusProcessing {
			return apperr.New(apperr.KindInvalidStateTransition, "接待单状态 %s 不允许确认工单行", rec.Status).
				With("record_status", string(rec.Status))
		}

		now := c.now()
		line.ApprovedAt = &now
		if err := c.moveLine(ctx, tx, line, entity.LineStatusCustomerApproved, actorID); err != nil {
			return err
		}
		if rec.Status == entity.RecordStatusWaitingCustomerApproval {
			if err := c.moveRecord(ctx, tx, rec, entity.RecordStatusProcessing, actorID); err != nil {
				return err
			}
		}
		next, err := c.allocate(ctx, tx, line, rec, actorID)
		if err != nil && !apperr.Retryable(err) {
			return err
		}
		return c.moveLine(ctx, tx, line, next, actorID)
	})
	if err != nil {
		return nil, err
	}
	if line.Status == entity.LineStatusWaitingForParts {
		c.requestTransfer(ctx, line, rec, actorID)
	}
	return c.store.Lines().Get(ctx, lineID)
}

// RejectLine 客户拒绝或技师判定不修，释放预留并撤回关联调拨
func (c *ClaimController) RejectLine(ctx context.Context, lineID string, status entity.LineStatus, reason, actorID string) (*entity.CaseLine, error) {
	if status != entity.LineStatusRejectedByCustomer && status != entity.LineStatusRejectedByTech {
		return nil, apperr.Validation("不支持的拒绝类型: %s", status)
	}
	return c.finishLine(ctx, lineID, status, reason, actorID)
}

// CancelLine 取消工单行
func (c *ClaimController) CancelLine(ctx context.Context, lineID, reason, actorID string) (*entity.CaseLine, error) {
	return c.finishLine(ctx, lineID, entity.LineStatusCancelled, reason, actorID)
}

func (c *ClaimController) finishLine(ctx context.Context, lineID string, status entity.LineStatus, reason, actorID string) (*entity.CaseLine, error) {
	var line *entity.CaseLine
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if line, err = tx.Lines().Get(ctx, lineID); err != nil {
			return err
		}
		if !line.Status.CanTransitionTo(status) {
			return apperr.InvalidTransition("CaseLine", line.ID, line.Status, status)
		}
		if err := c.terminateLine(ctx, tx, line, status, reason, actorID); err != nil {
			return err
		}
		return c.advanceRecord(ctx, tx, line.RecordID, actorID)
	})
	if err != nil {
		return nil, err
	}
	c.cancelLinkedTransfer(ctx, line, actorID)
	return c.store.Lines().Get(ctx, lineID)
}

// BulkApprove 逐行确认，单行失败不影响其他行
func (c *ClaimController) BulkApprove(ctx context.Context, lineIDs []string, actorID string) []LineResult {
	return c.bulk(lineIDs, func(id string) (*entity.CaseLine, error) {
		return c.ApproveLine(ctx, id, actorID)
	})
}

// BulkReject 逐行拒绝，单行失败不影响其他行
func (c *ClaimController) BulkReject(ctx context.Context, lineIDs []string, status entity.LineStatus, reason, actorID string) []LineResult {
	return c.bulk(lineIDs, func(id string) (*entity.CaseLine, error) {
		return c.RejectLine(ctx, id, status, reason, actorID)
	})
}

func (c *ClaimController) bulk(lineIDs []string, fn func(id string) (*entity.CaseLine, error)) []LineResult {
	results := make([]LineResult, 0, len(lineIDs))
	for _, id := range dedupe(lineIDs) {
		line, err := fn(id)
		r := LineResult{LineID: id, Line: line}
		if err != nil {
			r.Kind = apperr.KindOf(err)
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// RetryReservation 缺料工单行补齐预留，仍不足时返回 InsufficientStock
func (c *ClaimController) RetryReservation(ctx context.Context, lineID, actorID string) (*entity.CaseLine, error) {
	err := c.run(ctx, func(tx *Tx) error {
		line, err := tx.Lines().Get(ctx, lineID)
		if err != nil {
			return err
		}
		if line.Status != entity.LineStatusWaitingForParts {
			return apperr.InvalidTransition("CaseLine", line.ID, line.Status, entity.LineStatusReadyForRepair)
		}
		rec, err := tx.Records().Get(ctx, line.RecordID)
		if err != nil {
			return err
		}
		next, err := c.allocate(ctx, tx, line, rec, actorID)
		if err != nil {
			return err
		}
		return c.moveLine(ctx, tx, line, next, actorID)
	})
	if err != nil {
		return nil, err
	}
	return c.store.Lines().Get(ctx, lineID)
}

// AssignLineTechnician 指定诊断或维修技师，techID 为空时自动派工
func (c *ClaimController) AssignLineTechnician(ctx context.Context, lineID, kind, techID, actorID string) (*entity.CaseLine, error) {
	if kind != entity.TargetLineDiagnostic && kind != entity.TargetLineRepair {
		return nil, apperr.Validation("未知的派工类型: %s", kind)
	}
	var candidates []string
	if techID != "" {
		candidates = []string{techID}
	}
	if _, err := c.balancer.Assign(ctx, entity.AssignmentTarget{Kind: kind, ID: lineID}, candidates); err != nil {
		return nil, err
	}
	return c.store.Lines().Get(ctx, lineID)
}

// StartRepair 开始维修，须已指定维修技师
func (c *ClaimController) StartRepair(ctx context.Context, lineID, actorID string) (*entity.CaseLine, error) {
	var line *entity.CaseLine
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if line, err = tx.Lines().Get(ctx, lineID); err != nil {
			return err
		}
		if line.Status != entity.LineStatusReadyForRepair {
			return apperr.InvalidTransition("CaseLine", line.ID, line.Status, entity.LineStatusInRepair)
		}
		if line.RepairTechID == nil {
			return apperr.Validation("工单行 %s 未指定维修技师", line.ID)
		}
		return c.moveLine(ctx, tx, line, entity.LineStatusInRepair, actorID)
	})
	return line, err
}

// CompleteLine 维修完成：所需配件必须已全部装车
func (c *ClaimController) CompleteLine(ctx context.Context, lineID, actorID string) (*entity.CaseLine, error) {
	var line *entity.CaseLine
	err := c.run(ctx, func(tx *Tx) error {
		var err error
		if line, err = tx.Lines().Get(ctx, lineID); err != nil {
			return err
		}
		if line.Status != entity.LineStatusInRepair {
			return apperr.InvalidTransition("CaseLine", line.ID, line.Status, entity.LineStatusCompleted)
		}
		if line.TypeComponentID != nil {
			reservations, err := tx.Reservations().ListByLine(ctx, line.ID)
			if err != nil {
				return err
			}
			installed := 0
			for _, r := range reservations {
				switch r.Status {
				case entity.ReservationStatusInstalled:
					installed++
				case entity.ReservationStatusReserved, entity.ReservationStatusPickedUp:
					return apperr.New(apperr.KindInvalidStateTransition, "预留 %s 尚未装车", r.ID).
						With("reservation_id", r.ID)
				}
			}
			if installed != line.Quantity {
				return apperr.New(apperr.KindInvalidStateTransition, "已装车%d件，需求%d件", installed, line.Quantity)
			}
		}
		if err := c.moveLine(ctx, tx, line, entity.LineStatusCompleted, actorID); err != nil {
			return err
		}
		return c.advanceRecord(ctx, tx, line.RecordID, actorID)
	})
	return line, err
}

// ReleaseStaleReservation 回收长期未领取的预留，工单行退回缺料
func (c *ClaimController) ReleaseStaleReservation(ctx context.Context, reservationID string) (bool, error) {
	var released bool
	err := c.run(ctx, func(tx *Tx) error {
		res, err := tx.Reservations().Get(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != entity.ReservationStatusReserved {
			return nil
		}
		if err := c.reservations.cancel(ctx, tx, res, "预留超时未领取", false, SystemActor); err != nil {
			return err
		}
		line, err := c.reopenLine(ctx, tx, res.CaseLineID, SystemActor)
		if err != nil {
			return err
		}
		e := c.event(events.SubjectStaleReservation, res.ID, string(entity.ReservationStatusReserved), string(entity.ReservationStatusCancelled), SystemActor)
		e.Attributes = map[string]string{"case_line_id": line.ID, "warehouse_id": res.WarehouseID}
		tx.Emit(e)
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		c.logger.Warn("stale reservation released",
			zap.String("reservation_id", reservationID),
			zap.String("kind", string(apperr.KindStaleReservation)),
		)
	}
	return released, nil
}

// onTransferCompleted 调拨到货后重试等待该调拨的工单行
func (c *ClaimController) onTransferCompleted(ctx context.Context, t *entity.StockTransferRequest) {
	lines, err := c.store.Lines().ListByTransfer(ctx, t.ID, entity.LineStatusWaitingForParts)
	if err != nil {
		c.logger.Error("list lines waiting for transfer failed", zap.String("transfer_id", t.ID), zap.Error(err))
		return
	}
	for _, line := range lines {
		if _, err := c.RetryReservation(ctx, line.ID, SystemActor); err != nil {
			c.logger.Warn("retry reservation after transfer failed",
				zap.String("transfer_id", t.ID),
				zap.String("line_id", line.ID),
				zap.Error(err),
			)
		}
	}
}

// ---- 内部 ----

func (c *ClaimController) createCase(ctx context.Context, tx *Tx, recordID, content string) (*entity.GuaranteeCase, error) {
	gc := &entity.GuaranteeCase{
		ID:               uuid.New().String(),
		RecordID:         recordID,
		ContentGuarantee: content,
		Status:           entity.CaseStatusPendingAssignment,
	}
	if err := tx.Cases().Create(ctx, gc); err != nil {
		return nil, fmt.Errorf("创建案例失败: %w", err)
	}
	return gc, nil
}

func (c *ClaimController) moveRecord(ctx context.Context, tx *Tx, rec *entity.VehicleProcessingRecord, to entity.RecordStatus, actorID string) error {
	from := rec.Status
	if !from.CanTransitionTo(to) {
		return apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, from, to)
	}
	rec.Status = to
	if err := tx.Records().Update(ctx, rec, from); err != nil {
		rec.Status = from
		return err
	}
	tx.Emit(c.event(events.SubjectRecordStatus, rec.ID, string(from), string(to), actorID))
	return nil
}

func (r *runner) moveLine(ctx context.Context, tx *Tx, line *entity.CaseLine, to entity.LineStatus, actorID string) error {
	from := line.Status
	if !from.CanTransitionTo(to) {
		return apperr.InvalidTransition("CaseLine", line.ID, from, to)
	}
	line.Status = to
	if err := tx.Lines().Update(ctx, line, from); err != nil {
		line.Status = from
		return err
	}
	tx.Emit(r.event(events.SubjectLineStatus, line.ID, string(from), string(to), actorID))
	return nil
}

// reopenLine 预留被取消或配件退回后，待维修与维修中的工单行退回缺料，可重新预留
func (r *runner) reopenLine(ctx context.Context, tx *Tx, lineID, actorID string) (*entity.CaseLine, error) {
	line, err := tx.Lines().Get(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.Status != entity.LineStatusReadyForRepair && line.Status != entity.LineStatusInRepair {
		return line, nil
	}
	return line, r.moveLine(ctx, tx, line, entity.LineStatusWaitingForParts, actorID)
}

// allocate 预留工单行所需配件，返回下一状态；库存不足时返回缺料与 InsufficientStock
func (c *ClaimController) allocate(ctx context.Context, tx *Tx, line *entity.CaseLine, rec *entity.VehicleProcessingRecord, actorID string) (entity.LineStatus, error) {
	if line.TypeComponentID == nil {
		return entity.LineStatusReadyForRepair, nil
	}
	active, err := c.reservations.active(ctx, tx, line.ID)
	if err != nil {
		return "", err
	}
	remaining := line.Quantity - len(active)
	if remaining <= 0 {
		return entity.LineStatusReadyForRepair, nil
	}
	err = tx.nested(ctx, func(inner *Tx) error {
		_, err := c.reservations.request(ctx, inner, ReservationRequest{
			CaseLineID:      line.ID,
			TypeComponentID: *line.TypeComponentID,
			Quantity:        remaining,
			WarehouseID:     rec.WarehouseID,
		}, actorID)
		return err
	})
	if apperr.Retryable(err) {
		return entity.LineStatusWaitingForParts, err
	}
	if err != nil {
		return "", err
	}
	return entity.LineStatusReadyForRepair, nil
}

// terminateLine 释放未装车预留后置为终态
func (c *ClaimController) terminateLine(ctx context.Context, tx *Tx, line *entity.CaseLine, to entity.LineStatus, reason, actorID string) error {
	if err := c.reservations.releaseLine(ctx, tx, line.ID, reason, actorID); err != nil {
		return err
	}
	line.RejectionReason = reason
	return c.moveLine(ctx, tx, line, to, actorID)
}

// advanceRecord 维修中的接待单在全部工单行结束后自动转为待取车
func (c *ClaimController) advanceRecord(ctx context.Context, tx *Tx, recordID, actorID string) error {
	rec, err := tx.Records().Get(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Status != entity.RecordStatusProcessing && rec.Status != entity.RecordStatusWaitingCustomerApproval {
		return nil
	}
	open, err := c.openLine(ctx, tx, recordID)
	if err != nil || open != nil {
		return err
	}
	return c.moveRecord(ctx, tx, rec, entity.RecordStatusReadyForPickup, actorID)
}

// openLine 第一条未结束的工单行
func (c *ClaimController) openLine(ctx context.Context, tx *Tx, recordID string) (*entity.CaseLine, error) {
	lines, err := tx.Lines().ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		if !lines[i].Status.IsTerminal() {
			return &lines[i], nil
		}
	}
	return nil, nil
}

func (c *ClaimController) requestTransfer(ctx context.Context, line *entity.CaseLine, rec *entity.VehicleProcessingRecord, actorID string) {
	items := []TransferItemRequest{{TypeComponentID: *line.TypeComponentID, Quantity: line.Quantity}}
	t, err := c.transfers.Source(ctx, rec.WarehouseID, items, &line.ID, actorID)
	if err != nil {
		c.logger.Warn("auto transfer sourcing failed", zap.String("line_id", line.ID), zap.Error(err))
		return
	}
	err = c.run(ctx, func(tx *Tx) error {
		l, err := tx.Lines().Get(ctx, line.ID)
		if err != nil {
			return err
		}
		if l.Status != entity.LineStatusWaitingForParts {
			return nil
		}
		l.TransferRequestID = &t.ID
		return tx.Lines().Update(ctx, l, entity.LineStatusWaitingForParts)
	})
	if err != nil {
		c.logger.Warn("link transfer to line failed", zap.String("line_id", line.ID), zap.String("transfer_id", t.ID), zap.Error(err))
	}
}

// cancelLinkedTransfer 工单行终止后撤回尚未发运的自动调拨
func (c *ClaimController) cancelLinkedTransfer(ctx context.Context, line *entity.CaseLine, actorID string) {
	if line.TransferRequestID == nil {
		return
	}
	t, err := c.transfers.Get(ctx, *line.TransferRequestID)
	if err != nil {
		c.logger.Warn("load linked transfer failed", zap.String("line_id", line.ID), zap.Error(err))
		return
	}
	if t.Status != entity.TransferStatusPending && t.Status != entity.TransferStatusApproved {
		return
	}
	if _, err := c.transfers.Cancel(ctx, t.ID, fmt.Sprintf("工单行 %s 已%s", line.ID, line.Status), actorID); err != nil {
		c.logger.Warn("cancel linked transfer failed", zap.String("transfer_id", t.ID), zap.Error(err))
	}
}
