package service

import (
	"testing"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
)

func TestOpenRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: testVIN, WarehouseID: whCenter, Cases: []string{"  "}}, staff)
	assertKind(t, err, apperr.KindValidation)

	_, err = f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: "UNKNOWN", WarehouseID: whCenter, Cases: []string{"异响"}}, staff)
	assertKind(t, err, apperr.KindNotFound)

	rec, err := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{
		VIN: testVIN, WarehouseID: whCenter, Odometer: 42000, Cases: []string{"异响", "充电慢"},
	}, staff)
	if err != nil {
		t.Fatalf("open record: %v", err)
	}
	if rec.Status != entity.RecordStatusCheckedIn || len(rec.Cases) != 2 {
		t.Fatalf("unexpected record: status=%s cases=%d", rec.Status, len(rec.Cases))
	}
	for _, gc := range rec.Cases {
		if gc.Status != entity.CaseStatusPendingAssignment {
			t.Errorf("expected case PENDING_ASSIGNMENT, got %s", gc.Status)
		}
	}

	_, err = f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: testVIN, WarehouseID: whCenter, Cases: []string{"异响"}}, staff)
	assertKind(t, err, apperr.KindConflict)
}

func TestAssignMainTechnicianBalances(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: testVIN, WarehouseID: whCenter, Cases: []string{"异响"}}, staff)
	if err != nil {
		t.Fatalf("open record: %v", err)
	}
	rec, err = f.svc.Claim.AssignMainTechnician(f.ctx, rec.ID, "", staff)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if rec.Status != entity.RecordStatusInDiagnosis || rec.MainTechnicianID == nil || *rec.MainTechnicianID != techA {
		t.Fatalf("expected tech-a by id tie-break, got %+v", rec.MainTechnicianID)
	}

	gc, err := f.svc.Claim.AssignLeadTechnician(f.ctx, rec.Cases[0].ID, "", staff)
	if err != nil {
		t.Fatalf("assign lead: %v", err)
	}
	if gc.LeadTechID == nil || *gc.LeadTechID != techB {
		t.Fatalf("expected the idle technician, got %v", gc.LeadTechID)
	}
}

func TestAddLineEligibility(t *testing.T) {
	t.Run("eligible", func(t *testing.T) {
		f := newFixture(t)
		_, gc := f.diagnosing(42000)
		typeID := tcBattery
		lines, err := f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{TypeComponentID: &typeID, Quantity: 1}, techA)
		if err != nil {
			t.Fatalf("add line: %v", err)
		}
		if len(lines) != 1 || lines[0].WarrantyStatus != entity.WarrantyEligible || lines[0].Status != entity.LineStatusPendingApproval {
			t.Fatalf("unexpected lines: %+v", lines)
		}
	})

	t.Run("partial coverage splits", func(t *testing.T) {
		f := newFixture(t)
		_, gc := f.diagnosing(42000)
		typeID := tcBattery
		lines, err := f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{TypeComponentID: &typeID, Quantity: 3, CustomerPay: true}, techA)
		if err != nil {
			t.Fatalf("add line: %v", err)
		}
		if len(lines) != 2 {
			t.Fatalf("expected split into 2 lines, got %d", len(lines))
		}
		covered, rest := lines[0], lines[1]
		if covered.Quantity != 2 || covered.BillingType != entity.BillingWarranty {
			t.Errorf("unexpected covered line: %+v", covered)
		}
		if rest.Quantity != 1 || rest.BillingType != entity.BillingCustomerPay || rest.Status != entity.LineStatusPendingApproval {
			t.Errorf("unexpected customer-pay line: %+v", rest)
		}
		if rest.SplitFromID == nil || *rest.SplitFromID != covered.ID {
			t.Errorf("expected split line to reference covered line")
		}
	})

	t.Run("over mileage rejected", func(t *testing.T) {
		f := newFixture(t)
		_, gc := f.diagnosing(170000)
		typeID := tcBattery
		lines, err := f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{TypeComponentID: &typeID, Quantity: 1}, techA)
		if err != nil {
			t.Fatalf("add line: %v", err)
		}
		if lines[0].Status != entity.LineStatusRejectedByOutOfWarranty || lines[0].RejectionReason == "" {
			t.Fatalf("expected out-of-warranty rejection, got %+v", lines[0])
		}
	})

	t.Run("labor uses general terms", func(t *testing.T) {
		f := newFixture(t)
		_, gc := f.diagnosing(120000)
		lines, err := f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{DiagnosisText: "软件升级"}, techA)
		if err != nil {
			t.Fatalf("add line: %v", err)
		}
		if lines[0].Quantity != 1 || lines[0].WarrantyStatus != entity.WarrantyIneligible {
			t.Fatalf("expected general terms to reject 120000km, got %+v", lines[0])
		}
	})

	t.Run("unregistered vehicle", func(t *testing.T) {
		f := newFixture(t)
		rec, err := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: unregisteredVIN, WarehouseID: whCenter, Cases: []string{"异响"}}, staff)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		f.svc.Claim.AssignMainTechnician(f.ctx, rec.ID, techA, staff)
		gc, _ := f.svc.Claim.AssignLeadTechnician(f.ctx, rec.Cases[0].ID, techA, staff)
		typeID := tcBattery
		_, err = f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{TypeComponentID: &typeID, Quantity: 1}, techA)
		assertKind(t, err, apperr.KindUnregisteredVehicle)
	})
}

func TestSubmitRequiresDiagnosedCases(t *testing.T) {
	f := newFixture(t)
	rec, gc := f.diagnosing(42000)

	_, err := f.svc.Claim.SubmitForApproval(f.ctx, rec.ID, staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	typeID := tcBattery
	lines, err := f.svc.Claim.AddLine(f.ctx, gc.ID, AddLineRequest{TypeComponentID: &typeID, Quantity: 1, DiagnosisText: "压差大"}, techA)
	if err != nil {
		t.Fatalf("add line: %v", err)
	}
	_, err = f.svc.Claim.CompleteDiagnosis(f.ctx, gc.ID, techA)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	if _, err := f.svc.Claim.UpdateDiagnosis(f.ctx, lines[0].ID, "", "更换电池模组", techA); err != nil {
		t.Fatalf("update diagnosis: %v", err)
	}
	// 补齐诊断不会自动推进案例
	if got, _ := f.store.Cases().Get(f.ctx, gc.ID); got.Status != entity.CaseStatusInDiagnosis {
		t.Fatalf("expected case to stay IN_DIAGNOSIS, got %s", got.Status)
	}
	done, err := f.svc.Claim.CompleteDiagnosis(f.ctx, gc.ID, techA)
	if err != nil || done.Status != entity.CaseStatusDiagnosed {
		t.Fatalf("complete diagnosis: %v", err)
	}
	if _, err := f.svc.Claim.SubmitForApproval(f.ctx, rec.ID, staff); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestApproveLineReservesStock(t *testing.T) {
	f := newFixture(t)
	rec, line := readyLine(t, f, 2)

	if got := f.record(rec.ID).Status; got != entity.RecordStatusProcessing {
		t.Fatalf("expected record PROCESSING, got %s", got)
	}
	if line.ApprovedAt == nil {
		t.Error("expected approval time")
	}
	f.assertStock(whCenter, tcBattery, 3, 2)

	_, err := f.svc.Claim.ApproveLine(f.ctx, line.ID, staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)
}

func TestApproveLineSourcesTransfer(t *testing.T) {
	f := newFixture(t)
	f.intake(whNearby, tcBattery, 2)
	f.intake(whCompany, tcBattery, 5)
	_, line := f.awaitingApproval(1)

	approved, err := f.svc.Claim.ApproveLine(f.ctx, line.ID, staff)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entity.LineStatusWaitingForParts || approved.TransferRequestID == nil {
		t.Fatalf("expected WAITING_FOR_PARTS with transfer, got %s", approved.Status)
	}

	tr, err := f.svc.Transfer.Get(f.ctx, *approved.TransferRequestID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr.SupplyingWarehouseID != whNearby || tr.Status != entity.TransferStatusApproved || !tr.AutoSourced {
		t.Fatalf("expected approved transfer from nearby center, got %+v", tr)
	}
	f.assertStock(whNearby, tcBattery, 2, 1)
	f.assertStock(whCompany, tcBattery, 5, 0)

	if _, err := f.svc.Transfer.Ship(f.ctx, tr.ID, staff); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := f.svc.Transfer.Complete(f.ctx, tr.ID, staff); err != nil {
		t.Fatalf("complete: %v", err)
	}
	f.assertStock(whNearby, tcBattery, 1, 0)
	f.assertStock(whCenter, tcBattery, 1, 1)

	if got := f.line(line.ID).Status; got != entity.LineStatusReadyForRepair {
		t.Fatalf("expected line READY_FOR_REPAIR after transfer, got %s", got)
	}
	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	if len(list) != 1 || list[0].WarehouseID != whCenter {
		t.Fatalf("expected reservation at requesting center, got %+v", list)
	}
}

func TestApproveLinePartialLocalStockSourcesCompanyWarehouse(t *testing.T) {
	f := newFixture(t)
	const whEast = "wh-hq-east"
	if err := f.store.Warehouses().Create(f.ctx, &entity.Warehouse{
		ID: whEast, Name: "华东中心仓", Context: entity.WarehouseContextCompany, Priority: 1,
	}); err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	f.intake(whCenter, tcBattery, 1)
	f.intake(whEast, tcBattery, 4)
	_, line := f.awaitingApproval(2)

	approved, err := f.svc.Claim.ApproveLine(f.ctx, line.ID, staff)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entity.LineStatusWaitingForParts || approved.TransferRequestID == nil {
		t.Fatalf("expected WAITING_FOR_PARTS with transfer, got %s", approved.Status)
	}
	// 本地库存不足整行需求时不做部分预留
	f.assertStock(whCenter, tcBattery, 1, 0)

	tr, err := f.svc.Transfer.Get(f.ctx, *approved.TransferRequestID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if tr.SupplyingWarehouseID != whEast || tr.Status != entity.TransferStatusApproved || !tr.AutoSourced {
		t.Fatalf("expected auto-approved transfer from priority-1 company warehouse, got %+v", tr)
	}
	f.assertStock(whEast, tcBattery, 4, 2)

	if _, err := f.svc.Transfer.Ship(f.ctx, tr.ID, staff); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := f.svc.Transfer.Complete(f.ctx, tr.ID, staff); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if got := f.line(line.ID).Status; got != entity.LineStatusReadyForRepair {
		t.Fatalf("expected READY_FOR_REPAIR after transfer, got %s", got)
	}
	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	active := 0
	for _, r := range list {
		if r.Status == entity.ReservationStatusReserved && r.WarehouseID == whCenter {
			active++
		}
	}
	if active != 2 {
		t.Fatalf("expected 2 active reservations at the service center, got %d of %d", active, len(list))
	}
	f.assertStock(whCenter, tcBattery, 3, 2)
	f.assertStock(whEast, tcBattery, 2, 0)
}

func TestApproveLineWithoutAnySupply(t *testing.T) {
	f := newFixture(t)
	_, line := f.awaitingApproval(1)

	approved, err := f.svc.Claim.ApproveLine(f.ctx, line.ID, staff)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entity.LineStatusWaitingForParts {
		t.Fatalf("expected WAITING_FOR_PARTS, got %s", approved.Status)
	}
	tr, _ := f.svc.Transfer.Get(f.ctx, *approved.TransferRequestID)
	if tr.Status != entity.TransferStatusPending || tr.SupplyingWarehouseID != whCompany {
		t.Fatalf("expected pending request to company warehouse, got %+v", tr)
	}

	_, err = f.svc.Claim.RetryReservation(f.ctx, line.ID, staff)
	assertKind(t, err, apperr.KindInsufficientStock)

	f.intake(whCenter, tcBattery, 1)
	retried, err := f.svc.Claim.RetryReservation(f.ctx, line.ID, staff)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != entity.LineStatusReadyForRepair {
		t.Fatalf("expected READY_FOR_REPAIR, got %s", retried.Status)
	}
}

func TestRejectLineReleasesReservations(t *testing.T) {
	f := newFixture(t)
	rec, line := readyLine(t, f, 2)

	_, err := f.svc.Claim.RejectLine(f.ctx, line.ID, entity.LineStatusCompleted, "", staff)
	assertKind(t, err, apperr.KindValidation)

	rejected, err := f.svc.Claim.RejectLine(f.ctx, line.ID, entity.LineStatusRejectedByCustomer, "客户放弃维修", staff)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != entity.LineStatusRejectedByCustomer {
		t.Fatalf("unexpected status %s", rejected.Status)
	}
	f.assertStock(whCenter, tcBattery, 3, 0)

	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	for _, r := range list {
		if r.Status != entity.ReservationStatusCancelled {
			t.Errorf("reservation %s still %s", r.ID, r.Status)
		}
	}
	if got := f.record(rec.ID).Status; got != entity.RecordStatusReadyForPickup {
		t.Fatalf("expected record READY_FOR_PICKUP once all lines are closed, got %s", got)
	}
}

func TestRejectLineCancelsLinkedTransfer(t *testing.T) {
	f := newFixture(t)
	f.intake(whCompany, tcBattery, 1)
	_, line := f.awaitingApproval(1)
	approved, _ := f.svc.Claim.ApproveLine(f.ctx, line.ID, staff)
	f.assertStock(whCompany, tcBattery, 1, 1)

	if _, err := f.svc.Claim.RejectLine(f.ctx, line.ID, entity.LineStatusRejectedByCustomer, "", staff); err != nil {
		t.Fatalf("reject: %v", err)
	}
	tr, _ := f.svc.Transfer.Get(f.ctx, *approved.TransferRequestID)
	if tr.Status != entity.TransferStatusCancelled {
		t.Fatalf("expected linked transfer cancelled, got %s", tr.Status)
	}
	f.assertStock(whCompany, tcBattery, 1, 0)
}

func TestCompleteLineRequiresInstalledParts(t *testing.T) {
	f := newFixture(t)
	rec, line := readyLine(t, f, 1)

	_, err := f.svc.Claim.StartRepair(f.ctx, line.ID, staff)
	assertKind(t, err, apperr.KindValidation)

	if _, err := f.svc.Claim.AssignLineTechnician(f.ctx, line.ID, entity.TargetLineRepair, techB, staff); err != nil {
		t.Fatalf("assign repair tech: %v", err)
	}
	if _, err := f.svc.Claim.StartRepair(f.ctx, line.ID, techB); err != nil {
		t.Fatalf("start repair: %v", err)
	}
	_, err = f.svc.Claim.CompleteLine(f.ctx, line.ID, techB)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	f.svc.Reservation.PickUp(f.ctx, list[0].ID, techB)
	if _, err := f.svc.Reservation.Install(f.ctx, list[0].ID, InstallRequest{}, techB); err != nil {
		t.Fatalf("install: %v", err)
	}
	done, err := f.svc.Claim.CompleteLine(f.ctx, line.ID, techB)
	if err != nil {
		t.Fatalf("complete line: %v", err)
	}
	if done.Status != entity.LineStatusCompleted {
		t.Fatalf("unexpected status %s", done.Status)
	}
	if got := f.record(rec.ID).Status; got != entity.RecordStatusReadyForPickup {
		t.Fatalf("expected READY_FOR_PICKUP, got %s", got)
	}

	closed, err := f.svc.Claim.CompleteRecord(f.ctx, rec.ID, staff)
	if err != nil {
		t.Fatalf("complete record: %v", err)
	}
	if closed.Status != entity.RecordStatusCompleted || closed.CheckOutDate == nil {
		t.Fatalf("unexpected record %+v", closed)
	}
	f.assertStock(whCenter, tcBattery, 2, 0)
	if f.events.Count(events.SubjectRecordStatus) == 0 || f.events.Count(events.SubjectLineStatus) == 0 {
		t.Error("expected status events to be published")
	}
}

func TestCancelRecordCascades(t *testing.T) {
	f := newFixture(t)
	rec, line := readyLine(t, f, 2)

	cancelled, err := f.svc.Claim.CancelRecord(f.ctx, rec.ID, "客户取消", staff)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.RecordStatusCancelled || cancelled.CancelReason != "客户取消" {
		t.Fatalf("unexpected record %+v", cancelled)
	}
	for _, gc := range cancelled.Cases {
		if gc.Status != entity.CaseStatusCancelled {
			t.Errorf("case %s still %s", gc.ID, gc.Status)
		}
	}
	if got := f.line(line.ID).Status; got != entity.LineStatusCancelled {
		t.Fatalf("expected line CANCELLED, got %s", got)
	}
	f.assertStock(whCenter, tcBattery, 3, 0)

	_, err = f.svc.Claim.CancelRecord(f.ctx, rec.ID, "again", staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)
}

func TestBulkApprove(t *testing.T) {
	f := newFixture(t)
	f.intake(whCenter, tcBattery, 1)
	_, line := f.awaitingApproval(1)

	results := f.svc.Claim.BulkApprove(f.ctx, []string{line.ID, "missing", line.ID}, staff)
	if len(results) != 2 {
		t.Fatalf("expected duplicates collapsed, got %d results", len(results))
	}
	if results[0].Error != "" || results[0].Line.Status != entity.LineStatusReadyForRepair {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Kind != apperr.KindNotFound {
		t.Errorf("expected NOT_FOUND for missing line, got %s", results[1].Kind)
	}
}
