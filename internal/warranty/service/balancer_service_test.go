package service

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

func TestBalancerPick(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	if err := f.store.Technicians().Create(f.ctx, &entity.Technician{ID: "tech-c", Name: "赵工", WarehouseID: whCenter, Active: true}); err != nil {
		t.Fatalf("create tech: %v", err)
	}
	schedule := func(tech string, start time.Time) {
		if err := f.store.Technicians().CreateSchedule(f.ctx, &entity.WorkSchedule{
			ID: tech + start.Format("1504"), TechnicianID: tech, StartsAt: start, EndsAt: start.Add(4 * time.Hour), Available: true,
		}); err != nil {
			t.Fatalf("create schedule: %v", err)
		}
	}
	schedule(techB, now.Add(2*time.Hour))
	schedule("tech-c", now.Add(time.Hour))

	got, err := f.svc.Balancer.Pick(f.ctx, whCenter, nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if got != "tech-c" {
		t.Fatalf("expected earliest slot to win a load tie, got %s", got)
	}

	// tech-c 接一单后负载最低的是排班更早的 tech-b
	rec, _ := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: testVIN, WarehouseID: whCenter, Cases: []string{"异响"}}, staff)
	if _, err := f.svc.Claim.AssignMainTechnician(f.ctx, rec.ID, "tech-c", staff); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, _ = f.svc.Balancer.Pick(f.ctx, whCenter, nil)
	if got != techB {
		t.Fatalf("expected %s, got %s", techB, got)
	}

	got, _ = f.svc.Balancer.Pick(f.ctx, whCenter, []string{techA, "tech-c", techA})
	if got != techA {
		t.Fatalf("expected only candidate without load, got %s", got)
	}

	loads, err := f.svc.Balancer.Workloads(f.ctx, whCenter, nil)
	if err != nil || len(loads) != 3 || loads[2].TechnicianID != "tech-c" || loads[2].ActiveTasks != 1 {
		t.Fatalf("unexpected workloads: %+v (%v)", loads, err)
	}
}

func TestBalancerNoTechnicians(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Balancer.Pick(f.ctx, whCompany, nil)
	assertKind(t, err, apperr.KindValidation)

	_, err = f.svc.Balancer.Assign(f.ctx, entity.AssignmentTarget{Kind: "UNKNOWN", ID: "x"}, nil)
	assertKind(t, err, apperr.KindValidation)
}

func TestAssignUnknownTechnician(t *testing.T) {
	f := newFixture(t)
	const ghost = "tech-ghost"

	rec, err := f.svc.Claim.OpenRecord(f.ctx, OpenRecordRequest{VIN: testVIN, WarehouseID: whCenter, Cases: []string{"异响"}}, staff)
	if err != nil {
		t.Fatalf("open record: %v", err)
	}
	_, err = f.svc.Claim.AssignMainTechnician(f.ctx, rec.ID, ghost, staff)
	assertKind(t, err, apperr.KindNotFound)
	if got := f.record(rec.ID); got.Status != entity.RecordStatusCheckedIn || got.MainTechnicianID != nil {
		t.Fatalf("record must stay unassigned, got %s", got.Status)
	}

	if _, err := f.svc.Claim.AssignMainTechnician(f.ctx, rec.ID, techA, staff); err != nil {
		t.Fatalf("assign main: %v", err)
	}
	_, err = f.svc.Claim.AssignLeadTechnician(f.ctx, rec.Cases[0].ID, ghost, staff)
	assertKind(t, err, apperr.KindNotFound)

	_, line := f.awaitingApproval(1)
	_, err = f.svc.Claim.AssignLineTechnician(f.ctx, line.ID, entity.TargetLineRepair, ghost, staff)
	assertKind(t, err, apperr.KindNotFound)
	if f.line(line.ID).RepairTechID != nil {
		t.Fatal("repair technician must stay unset")
	}

	_, err = f.svc.Balancer.Pick(f.ctx, whCenter, []string{techA, ghost})
	assertKind(t, err, apperr.KindNotFound)
}
