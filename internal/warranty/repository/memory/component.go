package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

type componentRepo struct{ s *Store }

func (r componentRepo) Create(ctx context.Context, c *entity.Component) error {
	return r.s.do(func(st *state) error {
		for _, existing := range st.components {
			if existing.SerialNumber == c.SerialNumber {
				return apperr.New(apperr.KindConflict, "配件序列号重复: %s", c.SerialNumber)
			}
		}
		c.UpdatedAt = stamp(&c.CreatedAt)
		st.components[c.ID] = *c
		return nil
	})
}

func (r componentRepo) Get(ctx context.Context, id string) (*entity.Component, error) {
	var out *entity.Component
	err := r.s.do(func(st *state) error {
		c, ok := st.components[id]
		if !ok {
			return apperr.NotFound("Component", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r componentRepo) GetBySerial(ctx context.Context, serial string) (*entity.Component, error) {
	var out *entity.Component
	err := r.s.do(func(st *state) error {
		for _, c := range st.components {
			if c.SerialNumber == serial {
				c := c
				out = &c
				return nil
			}
		}
		return apperr.NotFound("Component", serial)
	})
	return out, err
}

// inStock 按入库时间排序的在库配件
func inStock(st *state, warehouseID, typeComponentID string) []entity.Component {
	var list []entity.Component
	for _, c := range st.components {
		if c.Status == entity.ComponentStatusInStock && c.TypeComponentID == typeComponentID &&
			c.WarehouseID != nil && *c.WarehouseID == warehouseID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func (r componentRepo) ClaimInStock(ctx context.Context, warehouseID, typeComponentID string) (*entity.Component, error) {
	var out *entity.Component
	err := r.s.do(func(st *state) error {
		list := inStock(st, warehouseID, typeComponentID)
		if len(list) == 0 {
			return apperr.NotFound("Component", warehouseID+"/"+typeComponentID)
		}
		c := list[0]
		c.Status = entity.ComponentStatusReserved
		c.UpdatedAt = time.Now()
		st.components[c.ID] = c
		out = &c
		return nil
	})
	return out, err
}

func (r componentRepo) MoveInStock(ctx context.Context, fromWarehouseID, toWarehouseID, typeComponentID string, qty int) (int, error) {
	moved := 0
	err := r.s.do(func(st *state) error {
		for _, c := range inStock(st, fromWarehouseID, typeComponentID) {
			if moved >= qty {
				break
			}
			to := toWarehouseID
			c.WarehouseID = &to
			c.UpdatedAt = time.Now()
			st.components[c.ID] = c
			moved++
		}
		return nil
	})
	return moved, err
}

func (r componentRepo) Update(ctx context.Context, c *entity.Component) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.components[c.ID]; !ok {
			return apperr.NotFound("Component", c.ID)
		}
		c.UpdatedAt = time.Now()
		st.components[c.ID] = *c
		return nil
	})
}

type reservationRepo struct{ s *Store }

func (r reservationRepo) Create(ctx context.Context, res *entity.ComponentReservation) error {
	return r.s.do(func(st *state) error {
		res.UpdatedAt = stamp(&res.CreatedAt)
		st.reservations[res.ID] = *res
		return nil
	})
}

func (r reservationRepo) Get(ctx context.Context, id string) (*entity.ComponentReservation, error) {
	var out *entity.ComponentReservation
	err := r.s.do(func(st *state) error {
		res, ok := st.reservations[id]
		if !ok {
			return apperr.NotFound("ComponentReservation", id)
		}
		out = &res
		return nil
	})
	return out, err
}

func (r reservationRepo) ListByLine(ctx context.Context, caseLineID string) ([]entity.ComponentReservation, error) {
	var out []entity.ComponentReservation
	err := r.s.do(func(st *state) error {
		for _, res := range st.reservations {
			if res.CaseLineID == caseLineID {
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out)
	return out, err
}

func (r reservationRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]entity.ComponentReservation, error) {
	var out []entity.ComponentReservation
	err := r.s.do(func(st *state) error {
		for _, res := range st.reservations {
			if res.Status == entity.ReservationStatusReserved && res.CreatedAt.Before(before) {
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r reservationRepo) Update(ctx context.Context, res *entity.ComponentReservation, expected entity.ReservationStatus) error {
	return r.s.do(func(st *state) error {
		cur, ok := st.reservations[res.ID]
		if !ok || cur.Status != expected {
			return staleStatus("ComponentReservation", res.ID, expected)
		}
		res.CreatedAt = cur.CreatedAt
		res.UpdatedAt = time.Now()
		st.reservations[res.ID] = *res
		return nil
	})
}

func sortReservations(list []entity.ComponentReservation) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func staleStatus(entityName, id string, expected any) error {
	return apperr.New(apperr.KindInvalidStateTransition, "%s %s 当前状态不是 %v", entityName, id, expected).
		With("entity", entityName)
}
