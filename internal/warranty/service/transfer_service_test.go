package service

import (
	"testing"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

func TestTransferCandidates(t *testing.T) {
	f := newFixture(t)

	center, _ := f.store.Warehouses().Get(f.ctx, whCenter)
	got, err := f.svc.Transfer.candidates(f.ctx, center)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != whNearby || got[1].ID != whCompany {
		t.Fatalf("unexpected candidates for center: %+v", got)
	}

	// 优先级最高的服务中心只能从公司仓调货
	nearby, _ := f.store.Warehouses().Get(f.ctx, whNearby)
	got, _ = f.svc.Transfer.candidates(f.ctx, nearby)
	if len(got) != 1 || got[0].ID != whCompany {
		t.Fatalf("unexpected candidates for nearby: %+v", got)
	}

	if err := f.store.Warehouses().SetHalted(f.ctx, whCompany, true, "盘点差异"); err != nil {
		t.Fatalf("halt: %v", err)
	}
	_, err = f.svc.Transfer.Source(f.ctx, whNearby, []TransferItemRequest{{TypeComponentID: tcPump, Quantity: 1}}, nil, staff)
	assertKind(t, err, apperr.KindValidation)
}

func TestManualTransferLifecycle(t *testing.T) {
	f := newFixture(t)
	f.intake(whCompany, tcPump, 2)

	_, err := f.svc.Transfer.Create(f.ctx, CreateTransferRequest{
		RequestingWarehouseID: whCenter, SupplyingWarehouseID: whCenter,
		Items: []TransferItemRequest{{TypeComponentID: tcPump, Quantity: 1}},
	}, staff)
	assertKind(t, err, apperr.KindValidation)

	tr, err := f.svc.Transfer.Create(f.ctx, CreateTransferRequest{
		RequestingWarehouseID: whCenter, SupplyingWarehouseID: whCompany,
		Items:  []TransferItemRequest{{TypeComponentID: tcPump, Quantity: 3}},
		Reason: "备货",
	}, staff)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.Status != entity.TransferStatusPending || tr.AutoSourced {
		t.Fatalf("unexpected transfer: %+v", tr)
	}

	_, err = f.svc.Transfer.Approve(f.ctx, tr.ID, "manager")
	assertKind(t, err, apperr.KindInsufficientStock)
	if got, _ := f.svc.Transfer.Get(f.ctx, tr.ID); got.Status != entity.TransferStatusPending {
		t.Fatalf("expected transfer to stay PENDING, got %s", got.Status)
	}

	f.intake(whCompany, tcPump, 1)
	approved, err := f.svc.Transfer.Approve(f.ctx, tr.ID, "manager")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ApprovedBy != "manager" || approved.Items[0].HoldID == nil {
		t.Fatalf("unexpected approved transfer: %+v", approved)
	}
	f.assertStock(whCompany, tcPump, 3, 3)

	_, err = f.svc.Transfer.Complete(f.ctx, tr.ID, staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	if _, err := f.svc.Transfer.Ship(f.ctx, tr.ID, staff); err != nil {
		t.Fatalf("ship: %v", err)
	}
	_, err = f.svc.Transfer.Cancel(f.ctx, tr.ID, "", staff)
	assertKind(t, err, apperr.KindInvalidStateTransition)

	done, err := f.svc.Transfer.Complete(f.ctx, tr.ID, staff)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != entity.TransferStatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected transfer: %+v", done)
	}
	f.assertStock(whCompany, tcPump, 0, 0)
	f.assertStock(whCenter, tcPump, 3, 0)

	list, total, err := f.svc.Transfer.List(f.ctx, repository.TransferFilter{WarehouseID: whCenter, Page: 1, Size: 10})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("expected one transfer for center, got %d (%v)", total, err)
	}
}

func TestTransferCancelReleasesHold(t *testing.T) {
	f := newFixture(t)
	f.intake(whCompany, tcPump, 2)

	tr, err := f.svc.Transfer.Create(f.ctx, CreateTransferRequest{
		RequestingWarehouseID: whCenter, SupplyingWarehouseID: whCompany,
		Items: []TransferItemRequest{{TypeComponentID: tcPump, Quantity: 2}},
	}, staff)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Transfer.Approve(f.ctx, tr.ID, "manager"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.assertStock(whCompany, tcPump, 2, 2)

	if _, err := f.svc.Transfer.Cancel(f.ctx, tr.ID, "需求取消", staff); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.assertStock(whCompany, tcPump, 2, 0)

	rejectable, _ := f.svc.Transfer.Create(f.ctx, CreateTransferRequest{
		RequestingWarehouseID: whCenter, SupplyingWarehouseID: whCompany,
		Items: []TransferItemRequest{{TypeComponentID: tcPump, Quantity: 1}},
	}, staff)
	rejected, err := f.svc.Transfer.Reject(f.ctx, rejectable.ID, "不批", "manager")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != entity.TransferStatusRejected || rejected.Reason != "不批" {
		t.Fatalf("unexpected transfer: %+v", rejected)
	}
}
