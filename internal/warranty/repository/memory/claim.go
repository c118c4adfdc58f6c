package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

type recordRepo struct{ s *Store }

func (r recordRepo) Create(ctx context.Context, rec *entity.VehicleProcessingRecord) error {
	return r.s.do(func(st *state) error {
		rec.UpdatedAt = stamp(&rec.CreatedAt)
		row := *rec
		row.Cases = nil
		st.records[rec.ID] = row
		return nil
	})
}

func (r recordRepo) Get(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error) {
	var out *entity.VehicleProcessingRecord
	err := r.s.do(func(st *state) error {
		rec, ok := st.records[id]
		if !ok {
			return apperr.NotFound("VehicleProcessingRecord", id)
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r recordRepo) GetDetail(ctx context.Context, id string) (*entity.VehicleProcessingRecord, error) {
	var out *entity.VehicleProcessingRecord
	err := r.s.do(func(st *state) error {
		rec, ok := st.records[id]
		if !ok {
			return apperr.NotFound("VehicleProcessingRecord", id)
		}
		cases := casesOf(st, id)
		for i := range cases {
			cases[i].Lines = linesWhere(st, func(l entity.CaseLine) bool { return l.CaseID == cases[i].ID })
		}
		rec.Cases = cases
		out = &rec
		return nil
	})
	return out, err
}

func (r recordRepo) FindActiveByVIN(ctx context.Context, vin string) (*entity.VehicleProcessingRecord, error) {
	var out *entity.VehicleProcessingRecord
	err := r.s.do(func(st *state) error {
		for _, rec := range st.records {
			if rec.VIN == vin && !rec.Status.IsTerminal() {
				rec := rec
				out = &rec
				return nil
			}
		}
		return apperr.NotFound("VehicleProcessingRecord", vin)
	})
	return out, err
}

func (r recordRepo) Update(ctx context.Context, rec *entity.VehicleProcessingRecord, expected entity.RecordStatus) error {
	return r.s.do(func(st *state) error {
		cur, ok := st.records[rec.ID]
		if !ok || cur.Status != expected {
			return staleStatus("VehicleProcessingRecord", rec.ID, expected)
		}
		rec.CreatedAt = cur.CreatedAt
		rec.UpdatedAt = time.Now()
		row := *rec
		row.Cases = nil
		st.records[rec.ID] = row
		return nil
	})
}

type caseRepo struct{ s *Store }

func (r caseRepo) Create(ctx context.Context, c *entity.GuaranteeCase) error {
	return r.s.do(func(st *state) error {
		c.UpdatedAt = stamp(&c.CreatedAt)
		row := *c
		row.Lines = nil
		st.cases[c.ID] = row
		return nil
	})
}

func (r caseRepo) Get(ctx context.Context, id string) (*entity.GuaranteeCase, error) {
	var out *entity.GuaranteeCase
	err := r.s.do(func(st *state) error {
		c, ok := st.cases[id]
		if !ok {
			return apperr.NotFound("GuaranteeCase", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r caseRepo) ListByRecord(ctx context.Context, recordID string) ([]entity.GuaranteeCase, error) {
	var out []entity.GuaranteeCase
	err := r.s.do(func(st *state) error {
		out = casesOf(st, recordID)
		return nil
	})
	return out, err
}

func (r caseRepo) Update(ctx context.Context, c *entity.GuaranteeCase, expected entity.CaseStatus) error {
	return r.s.do(func(st *state) error {
		cur, ok := st.cases[c.ID]
		if !ok || cur.Status != expected {
			return staleStatus("GuaranteeCase", c.ID, expected)
		}
		c.CreatedAt = cur.CreatedAt
		c.UpdatedAt = time.Now()
		row := *c
		row.Lines = nil
		st.cases[c.ID] = row
		return nil
	})
}

func casesOf(st *state, recordID string) []entity.GuaranteeCase {
	var list []entity.GuaranteeCase
	for _, c := range st.cases {
		if c.RecordID == recordID {
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

type lineRepo struct{ s *Store }

func (r lineRepo) Create(ctx context.Context, l *entity.CaseLine) error {
	return r.s.do(func(st *state) error {
		l.UpdatedAt = stamp(&l.CreatedAt)
		st.lines[l.ID] = *l
		return nil
	})
}

func (r lineRepo) Get(ctx context.Context, id string) (*entity.CaseLine, error) {
	var out *entity.CaseLine
	err := r.s.do(func(st *state) error {
		l, ok := st.lines[id]
		if !ok {
			return apperr.NotFound("CaseLine", id)
		}
		out = &l
		return nil
	})
	return out, err
}

func (r lineRepo) ListByCase(ctx context.Context, caseID string) ([]entity.CaseLine, error) {
	return r.list(func(l entity.CaseLine) bool { return l.CaseID == caseID })
}

func (r lineRepo) ListByRecord(ctx context.Context, recordID string) ([]entity.CaseLine, error) {
	return r.list(func(l entity.CaseLine) bool { return l.RecordID == recordID })
}

func (r lineRepo) ListByTransfer(ctx context.Context, transferID string, status entity.LineStatus) ([]entity.CaseLine, error) {
	return r.list(func(l entity.CaseLine) bool {
		return l.TransferRequestID != nil && *l.TransferRequestID == transferID && l.Status == status
	})
}

func (r lineRepo) CoveredUsage(ctx context.Context, vin, typeComponentID string) (int, error) {
	total := 0
	err := r.s.do(func(st *state) error {
		for _, l := range st.lines {
			if l.VIN != vin || l.TypeComponentID == nil || *l.TypeComponentID != typeComponentID {
				continue
			}
			if l.WarrantyStatus != entity.WarrantyEligible || l.BillingType != entity.BillingWarranty {
				continue
			}
			if isOneOf(l.Status, repository.UncoveredLineStatuses) {
				continue
			}
			total += l.Quantity
		}
		return nil
	})
	return total, err
}

func (r lineRepo) Update(ctx context.Context, l *entity.CaseLine, expected entity.LineStatus) error {
	return r.s.do(func(st *state) error {
		cur, ok := st.lines[l.ID]
		if !ok || cur.Status != expected {
			return staleStatus("CaseLine", l.ID, expected)
		}
		l.CreatedAt = cur.CreatedAt
		l.UpdatedAt = time.Now()
		st.lines[l.ID] = *l
		return nil
	})
}

func (r lineRepo) list(match func(entity.CaseLine) bool) ([]entity.CaseLine, error) {
	var out []entity.CaseLine
	err := r.s.do(func(st *state) error {
		out = linesWhere(st, match)
		return nil
	})
	return out, err
}

func linesWhere(st *state, match func(entity.CaseLine) bool) []entity.CaseLine {
	var list []entity.CaseLine
	for _, l := range st.lines {
		if match(l) {
			list = append(list, l)
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

func isOneOf[T comparable](v T, set []T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(ctx context.Context, a *entity.LineAttachment) error {
	return r.s.do(func(st *state) error {
		stamp(&a.CreatedAt)
		st.attachments[a.ID] = *a
		return nil
	})
}

func (r attachmentRepo) ListByLine(ctx context.Context, caseLineID string) ([]entity.LineAttachment, error) {
	var out []entity.LineAttachment
	err := r.s.do(func(st *state) error {
		for _, a := range st.attachments {
			if a.CaseLineID == caseLineID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}
