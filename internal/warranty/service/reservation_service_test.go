package service

import (
	"testing"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

// readyLine 客户确认后已完成预留的工单行
func readyLine(t *testing.T, f *fixture, qty int) (*entity.VehicleProcessingRecord, *entity.CaseLine) {
	t.Helper()
	f.intake(whCenter, tcBattery, 3)
	rec, line := f.awaitingApproval(qty)
	approved, err := f.svc.Claim.ApproveLine(f.ctx, line.ID, staff)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entity.LineStatusReadyForRepair {
		t.Fatalf("expected READY_FOR_REPAIR, got %s", approved.Status)
	}
	return rec, approved
}

func TestReservation_PickUpInstall(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 1)

	list, err := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one reservation, got %d (%v)", len(list), err)
	}
	res := list[0]
	comp, _ := f.store.Components().Get(f.ctx, res.ComponentID)
	if comp.Status != entity.ComponentStatusReserved {
		t.Fatalf("expected component RESERVED, got %s", comp.Status)
	}

	_, err = f.svc.Reservation.Install(f.ctx, res.ID, InstallRequest{}, techA)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	if _, err := f.svc.Reservation.PickUp(f.ctx, res.ID, techA); err != nil {
		t.Fatalf("pick up: %v", err)
	}
	_, err = f.svc.Reservation.Install(f.ctx, res.ID, InstallRequest{VIN: "OTHERVIN000000000"}, techA)
	assertKind(t, err, apperr.KindValidation)

	installed, err := f.svc.Reservation.Install(f.ctx, res.ID, InstallRequest{OldComponentSerial: "OLD-BAT-1"}, techA)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if installed.InstalledVIN != testVIN || installed.OldComponentReturn != entity.OldPartReturnPending {
		t.Fatalf("unexpected reservation after install: %+v", installed)
	}
	f.assertStock(whCenter, tcBattery, 2, 0)

	comp, _ = f.store.Components().Get(f.ctx, res.ComponentID)
	if comp.Status != entity.ComponentStatusInstalled || comp.WarehouseID != nil || comp.VehicleVIN == nil || *comp.VehicleVIN != testVIN {
		t.Fatalf("unexpected component after install: %+v", comp)
	}

	_, err = f.svc.Reservation.Cancel(f.ctx, res.ID, "客户反悔", false, staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	returned, err := f.svc.Reservation.ConfirmOldPartReturn(f.ctx, res.ID, staff)
	if err != nil {
		t.Fatalf("old part return: %v", err)
	}
	if returned.OldComponentReturn != entity.OldPartReturnReturned {
		t.Errorf("expected old part RETURNED, got %s", returned.OldComponentReturn)
	}
	_, err = f.svc.Reservation.ConfirmOldPartReturn(f.ctx, res.ID, staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)
}

func TestReservation_CancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 2)
	f.assertStock(whCenter, tcBattery, 3, 2)

	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	first := list[0]

	cancelled, err := f.svc.Reservation.Cancel(f.ctx, first.ID, "技师改判", false, staff)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.ReservationStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected reservation: %+v", cancelled)
	}
	f.assertStock(whCenter, tcBattery, 3, 1)

	if _, err := f.svc.Reservation.Cancel(f.ctx, first.ID, "重复", false, staff); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	f.assertStock(whCenter, tcBattery, 3, 1)

	comp, _ := f.store.Components().Get(f.ctx, first.ComponentID)
	if comp.Status != entity.ComponentStatusInStock {
		t.Errorf("expected component back IN_STOCK, got %s", comp.Status)
	}
}

func TestReservation_CancelDamaged(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 1)
	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)

	if _, err := f.svc.Reservation.PickUp(f.ctx, list[0].ID, techA); err != nil {
		t.Fatalf("pick up: %v", err)
	}
	if _, err := f.svc.Reservation.Cancel(f.ctx, list[0].ID, "搬运损坏", true, techA); err != nil {
		t.Fatalf("cancel damaged: %v", err)
	}
	f.assertStock(whCenter, tcBattery, 2, 0)

	comp, _ := f.store.Components().Get(f.ctx, list[0].ComponentID)
	if comp.Status != entity.ComponentStatusDefective {
		t.Errorf("expected DEFECTIVE, got %s", comp.Status)
	}
}

func TestReservation_RequestBeyondLineQuantity(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 1)

	_, err := f.svc.Reservation.RequestReservation(f.ctx, ReservationRequest{
		CaseLineID: line.ID, TypeComponentID: tcBattery, Quantity: 1, WarehouseID: whCenter,
	}, staff)
	assertKind(t, err, apperr.KindConflict)
	f.assertStock(whCenter, tcBattery, 3, 1)
}

func TestReservation_Return(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 1)
	list, _ := f.svc.Reservation.ListByLine(f.ctx, line.ID)
	id := list[0].ID

	_, err := f.svc.Reservation.Return(f.ctx, id, "异响", true, techA)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	f.svc.Reservation.PickUp(f.ctx, id, techA)
	f.svc.Reservation.Install(f.ctx, id, InstallRequest{}, techA)
	res, err := f.svc.Reservation.Return(f.ctx, id, "异响", true, techA)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if res.Status != entity.ReservationStatusReturned || res.ReturnedAt == nil {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	comp, _ := f.store.Components().Get(f.ctx, res.ComponentID)
	if comp.Status != entity.ComponentStatusDefective || comp.VehicleVIN != nil {
		t.Errorf("unexpected component after return: %+v", comp)
	}
}

func heldReservation(t *testing.T, f *fixture, lineID string) entity.ComponentReservation {
	t.Helper()
	list, err := f.svc.Reservation.ListByLine(f.ctx, lineID)
	if err != nil {
		t.Fatalf("list reservations: %v", err)
	}
	for _, r := range list {
		if r.Status == entity.ReservationStatusReserved {
			return r
		}
	}
	t.Fatalf("line %s has no RESERVED reservation", lineID)
	return entity.ComponentReservation{}
}

// installAndComplete 派维修技师、领料装车并完工
func installAndComplete(t *testing.T, f *fixture, lineID string) {
	t.Helper()
	if _, err := f.svc.Claim.AssignLineTechnician(f.ctx, lineID, entity.TargetLineRepair, techB, staff); err != nil {
		t.Fatalf("assign repair tech: %v", err)
	}
	if _, err := f.svc.Claim.StartRepair(f.ctx, lineID, techB); err != nil {
		t.Fatalf("start repair: %v", err)
	}
	res := heldReservation(t, f, lineID)
	if _, err := f.svc.Reservation.PickUp(f.ctx, res.ID, techB); err != nil {
		t.Fatalf("pick up: %v", err)
	}
	if _, err := f.svc.Reservation.Install(f.ctx, res.ID, InstallRequest{}, techB); err != nil {
		t.Fatalf("install: %v", err)
	}
	done, err := f.svc.Claim.CompleteLine(f.ctx, lineID, techB)
	if err != nil {
		t.Fatalf("complete line: %v", err)
	}
	if done.Status != entity.LineStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.Status)
	}
}

func TestReservation_CancelReopensReadyLine(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 1)
	res := heldReservation(t, f, line.ID)

	if _, err := f.svc.Reservation.Cancel(f.ctx, res.ID, "搬运损坏", true, staff); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := f.line(line.ID).Status; got != entity.LineStatusWaitingForParts {
		t.Fatalf("expected WAITING_FOR_PARTS after cancel, got %s", got)
	}
	f.assertStock(whCenter, tcBattery, 2, 0)

	// 重复取消不再改变工单行
	if _, err := f.svc.Reservation.Cancel(f.ctx, res.ID, "重复", true, staff); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	retried, err := f.svc.Claim.RetryReservation(f.ctx, line.ID, staff)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != entity.LineStatusReadyForRepair {
		t.Fatalf("expected READY_FOR_REPAIR after retry, got %s", retried.Status)
	}
	f.assertStock(whCenter, tcBattery, 2, 1)

	installAndComplete(t, f, line.ID)
	f.assertStock(whCenter, tcBattery, 1, 0)
}

func TestReservation_ReturnReopensLineInRepair(t *testing.T) {
	f := newFixture(t)
	_, line := readyLine(t, f, 1)
	if _, err := f.svc.Claim.AssignLineTechnician(f.ctx, line.ID, entity.TargetLineRepair, techB, staff); err != nil {
		t.Fatalf("assign repair tech: %v", err)
	}
	if _, err := f.svc.Claim.StartRepair(f.ctx, line.ID, techB); err != nil {
		t.Fatalf("start repair: %v", err)
	}
	res := heldReservation(t, f, line.ID)
	f.svc.Reservation.PickUp(f.ctx, res.ID, techB)
	if _, err := f.svc.Reservation.Install(f.ctx, res.ID, InstallRequest{}, techB); err != nil {
		t.Fatalf("install: %v", err)
	}
	f.assertStock(whCenter, tcBattery, 2, 0)

	if _, err := f.svc.Reservation.Return(f.ctx, res.ID, "新件异响", true, techB); err != nil {
		t.Fatalf("return: %v", err)
	}
	if got := f.line(line.ID).Status; got != entity.LineStatusWaitingForParts {
		t.Fatalf("expected WAITING_FOR_PARTS after return, got %s", got)
	}
	_, err := f.svc.Claim.CompleteLine(f.ctx, line.ID, techB)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	if _, err := f.svc.Claim.RetryReservation(f.ctx, line.ID, staff); err != nil {
		t.Fatalf("retry: %v", err)
	}
	f.assertStock(whCenter, tcBattery, 2, 1)

	if _, err := f.svc.Claim.StartRepair(f.ctx, line.ID, techB); err != nil {
		t.Fatalf("restart repair: %v", err)
	}
	res = heldReservation(t, f, line.ID)
	f.svc.Reservation.PickUp(f.ctx, res.ID, techB)
	if _, err := f.svc.Reservation.Install(f.ctx, res.ID, InstallRequest{}, techB); err != nil {
		t.Fatalf("install replacement: %v", err)
	}
	if done, err := f.svc.Claim.CompleteLine(f.ctx, line.ID, techB); err != nil || done.Status != entity.LineStatusCompleted {
		t.Fatalf("complete line: %v", err)
	}
	f.assertStock(whCenter, tcBattery, 1, 0)
}
