package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

type catalogRepo struct{ s *Store }

func (r catalogRepo) CreateModel(ctx context.Context, m *entity.VehicleModel) error {
	return r.s.do(func(st *state) error {
		m.UpdatedAt = stamp(&m.CreatedAt)
		st.models[m.ID] = *m
		return nil
	})
}

func (r catalogRepo) CreateVehicle(ctx context.Context, v *entity.Vehicle) error {
	return r.s.do(func(st *state) error {
		v.UpdatedAt = stamp(&v.CreatedAt)
		st.vehicles[v.VIN] = *v
		return nil
	})
}

func (r catalogRepo) CreateTypeComponent(ctx context.Context, tc *entity.TypeComponent) error {
	return r.s.do(func(st *state) error {
		tc.UpdatedAt = stamp(&tc.CreatedAt)
		st.typeComponents[tc.ID] = *tc
		return nil
	})
}

func (r catalogRepo) CreateWarrantyComponent(ctx context.Context, wc *entity.WarrantyComponent) error {
	return r.s.do(func(st *state) error {
		wc.UpdatedAt = stamp(&wc.CreatedAt)
		st.warranties[wc.VehicleModelID+"|"+wc.TypeComponentID] = *wc
		return nil
	})
}

func (r catalogRepo) GetVehicle(ctx context.Context, vin string) (*entity.Vehicle, error) {
	var out *entity.Vehicle
	err := r.s.do(func(st *state) error {
		v, ok := st.vehicles[vin]
		if !ok {
			return apperr.NotFound("Vehicle", vin)
		}
		out = &v
		return nil
	})
	return out, err
}

func (r catalogRepo) GetModel(ctx context.Context, id string) (*entity.VehicleModel, error) {
	var out *entity.VehicleModel
	err := r.s.do(func(st *state) error {
		m, ok := st.models[id]
		if !ok {
			return apperr.NotFound("VehicleModel", id)
		}
		out = &m
		return nil
	})
	return out, err
}

func (r catalogRepo) GetTypeComponent(ctx context.Context, id string) (*entity.TypeComponent, error) {
	var out *entity.TypeComponent
	err := r.s.do(func(st *state) error {
		tc, ok := st.typeComponents[id]
		if !ok {
			return apperr.NotFound("TypeComponent", id)
		}
		out = &tc
		return nil
	})
	return out, err
}

func (r catalogRepo) GetWarrantyComponent(ctx context.Context, modelID, typeComponentID string) (*entity.WarrantyComponent, error) {
	var out *entity.WarrantyComponent
	err := r.s.do(func(st *state) error {
		if wc, ok := st.warranties[modelID+"|"+typeComponentID]; ok {
			out = &wc
		}
		return nil
	})
	return out, err
}

type technicianRepo struct{ s *Store }

func (r technicianRepo) Create(ctx context.Context, t *entity.Technician) error {
	return r.s.do(func(st *state) error {
		stamp(&t.CreatedAt)
		st.technicians[t.ID] = *t
		return nil
	})
}

func (r technicianRepo) CreateSchedule(ctx context.Context, s *entity.WorkSchedule) error {
	return r.s.do(func(st *state) error {
		st.schedules[s.ID] = *s
		return nil
	})
}

func (r technicianRepo) Get(ctx context.Context, id string) (*entity.Technician, error) {
	var out *entity.Technician
	err := r.s.do(func(st *state) error {
		t, ok := st.technicians[id]
		if !ok {
			return apperr.NotFound("Technician", id)
		}
		out = &t
		return nil
	})
	return out, err
}

func (r technicianRepo) ListByWarehouse(ctx context.Context, warehouseID string) ([]entity.Technician, error) {
	var out []entity.Technician
	err := r.s.do(func(st *state) error {
		for _, t := range st.technicians {
			if t.WarehouseID == warehouseID && t.Active {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r technicianRepo) CountActiveTasks(ctx context.Context, technicianIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(technicianIDs))
	wanted := make(map[string]bool, len(technicianIDs))
	for _, id := range technicianIDs {
		wanted[id] = true
	}
	bump := func(id *string) {
		if id != nil && wanted[*id] {
			counts[*id]++
		}
	}
	err := r.s.do(func(st *state) error {
		for _, rec := range st.records {
			if !rec.Status.IsTerminal() {
				bump(rec.MainTechnicianID)
			}
		}
		for _, c := range st.cases {
			if c.Status == entity.CaseStatusInDiagnosis {
				bump(c.LeadTechID)
			}
		}
		for _, l := range st.lines {
			if isOneOf(l.Status, repository.TerminalLineStatuses) {
				continue
			}
			bump(l.DiagnosticTechID)
			bump(l.RepairTechID)
		}
		return nil
	})
	return counts, err
}

func (r technicianRepo) NextAvailableSlots(ctx context.Context, technicianIDs []string, from time.Time) (map[string]time.Time, error) {
	wanted := make(map[string]bool, len(technicianIDs))
	for _, id := range technicianIDs {
		wanted[id] = true
	}
	var schedules []entity.WorkSchedule
	err := r.s.do(func(st *state) error {
		for _, s := range st.schedules {
			if wanted[s.TechnicianID] {
				schedules = append(schedules, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repository.EarliestSlots(schedules, from), nil
}
