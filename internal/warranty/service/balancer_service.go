package service

import (
	"context"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

// TaskAssignmentBalancer 技师派工：进行中任务最少者优先，其次最早可排班，最后按编号
type TaskAssignmentBalancer struct {
	*runner
}

// Workload 候选技师的负载
type Workload struct {
	TechnicianID string     `json:"technician_id"`
	ActiveTasks  int        `json:"active_tasks"`
	NextSlot     *time.Time `json:"next_slot"`
}

// Pick 从候选人中选出负载最低的技师；候选为空时取仓库全部在岗技师
func (b *TaskAssignmentBalancer) Pick(ctx context.Context, warehouseID string, candidates []string) (string, error) {
	return b.pick(ctx, b.store, warehouseID, candidates)
}

// Workloads 按派工顺序返回候选技师负载
func (b *TaskAssignmentBalancer) Workloads(ctx context.Context, warehouseID string, candidates []string) ([]Workload, error) {
	return b.rank(ctx, b.store, warehouseID, candidates)
}

// Assign 为派工对象指定技师，只写技师字段，不改变状态
func (b *TaskAssignmentBalancer) Assign(ctx context.Context, target entity.AssignmentTarget, candidates []string) (string, error) {
	var techID string
	err := b.run(ctx, func(tx *Tx) error {
		var err error
		techID, err = b.assign(ctx, tx, target, candidates)
		return err
	})
	return techID, err
}

func (b *TaskAssignmentBalancer) assign(ctx context.Context, tx *Tx, target entity.AssignmentTarget, candidates []string) (string, error) {
	switch target.Kind {
	case entity.TargetRecordMain:
		rec, err := tx.Records().Get(ctx, target.ID)
		if err != nil {
			return "", err
		}
		if rec.Status.IsTerminal() {
			return "", apperr.InvalidTransition("VehicleProcessingRecord", rec.ID, rec.Status, "ASSIGN")
		}
		tech, err := b.pick(ctx, tx, rec.WarehouseID, candidates)
		if err != nil {
			return "", err
		}
		rec.MainTechnicianID = &tech
		return tech, tx.Records().Update(ctx, rec, rec.Status)

	case entity.TargetCaseLead:
		gc, err := tx.Cases().Get(ctx, target.ID)
		if err != nil {
			return "", err
		}
		if gc.Status == entity.CaseStatusCancelled {
			return "", apperr.InvalidTransition("GuaranteeCase", gc.ID, gc.Status, "ASSIGN")
		}
		rec, err := tx.Records().Get(ctx, gc.RecordID)
		if err != nil {
			return "", err
		}
		tech, err := b.pick(ctx, tx, rec.WarehouseID, candidates)
		if err != nil {
			return "", err
		}
		gc.LeadTechID = &tech
		return tech, tx.Cases().Update(ctx, gc, gc.Status)

	case entity.TargetLineDiagnostic, entity.TargetLineRepair:
		line, err := tx.Lines().Get(ctx, target.ID)
		if err != nil {
			return "", err
		}
		if line.Status.IsTerminal() {
			return "", apperr.InvalidTransition("CaseLine", line.ID, line.Status, "ASSIGN")
		}
		rec, err := tx.Records().Get(ctx, line.RecordID)
		if err != nil {
			return "", err
		}
		tech, err := b.pick(ctx, tx, rec.WarehouseID, candidates)
		if err != nil {
			return "", err
		}
		if target.Kind == entity.TargetLineRepair {
			line.RepairTechID = &tech
		} else {
			line.DiagnosticTechID = &tech
		}
		return tech, tx.Lines().Update(ctx, line, line.Status)
	}
	return "", apperr.Validation("未知的派工对象类型: %s", target.Kind)
}

func (b *TaskAssignmentBalancer) pick(ctx context.Context, st repository.Store, warehouseID string, candidates []string) (string, error) {
	ranked, err := b.rank(ctx, st, warehouseID, candidates)
	if err != nil {
		return "", err
	}
	return ranked[0].TechnicianID, nil
}

func (b *TaskAssignmentBalancer) rank(ctx context.Context, st repository.Store, warehouseID string, candidates []string) ([]Workload, error) {
	ids := dedupe(candidates)
	for _, id := range ids {
		if _, err := st.Technicians().Get(ctx, id); err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		techs, err := st.Technicians().ListByWarehouse(ctx, warehouseID)
		if err != nil {
			return nil, err
		}
		for _, t := range techs {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("仓库 %s 没有可派工的技师", warehouseID)
	}

	counts, err := st.Technicians().CountActiveTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	slots, err := st.Technicians().NextAvailableSlots(ctx, ids, b.now())
	if err != nil {
		return nil, err
	}

	out := make([]Workload, 0, len(ids))
	for _, id := range ids {
		w := Workload{TechnicianID: id, ActiveTasks: counts[id]}
		if slot, ok := slots[id]; ok {
			w.NextSlot = &slot
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.ActiveTasks != c.ActiveTasks {
			return a.ActiveTasks < c.ActiveTasks
		}
		switch {
		case a.NextSlot != nil && c.NextSlot == nil:
			return true
		case a.NextSlot == nil && c.NextSlot != nil:
			return false
		case a.NextSlot != nil && !a.NextSlot.Equal(*c.NextSlot):
			return a.NextSlot.Before(*c.NextSlot)
		}
		return a.TechnicianID < c.TechnicianID
	})
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
