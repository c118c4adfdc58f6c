package service

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/eligibility"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
)

// EligibilityService 按车辆与配件查找保修条款并判定
type EligibilityService struct {
	*runner
}

// EligibilityQuery 保修判定查询
type EligibilityQuery struct {
	VIN             string    `form:"vin" binding:"required"`
	TypeComponentID string    `form:"type_component_id"`
	Odometer        int       `form:"odometer" binding:"gte=0"`
	Quantity        int       `form:"quantity"`
	At              time.Time `form:"at" time_format:"2006-01-02"`
}

// Evaluate 判定一次维修是否在保，未登记购车日期返回 UnregisteredVehicle
func (s *EligibilityService) Evaluate(ctx context.Context, q EligibilityQuery) (eligibility.Result, error) {
	at := q.At
	if at.IsZero() {
		at = s.now()
	}
	var typeID *string
	if q.TypeComponentID != "" {
		typeID = &q.TypeComponentID
	}
	return s.evaluate(ctx, s.store, q.VIN, typeID, q.Odometer, q.Quantity, at)
}

func (s *EligibilityService) evaluate(ctx context.Context, st repository.Store, vin string, typeComponentID *string, odometer, qty int, at time.Time) (eligibility.Result, error) {
	vehicle, err := st.Catalog().GetVehicle(ctx, vin)
	if err != nil {
		return eligibility.Result{}, err
	}
	model, err := st.Catalog().GetModel(ctx, vehicle.ModelID)
	if err != nil {
		return eligibility.Result{}, err
	}

	in := eligibility.Input{
		Vehicle:           *vehicle,
		Model:             *model,
		Odometer:          odometer,
		CurrentDate:       at,
		RequestedQuantity: qty,
	}
	if typeComponentID != nil {
		if _, err := st.Catalog().GetTypeComponent(ctx, *typeComponentID); err != nil {
			return eligibility.Result{}, err
		}
		if in.Component, err = st.Catalog().GetWarrantyComponent(ctx, model.ID, *typeComponentID); err != nil {
			return eligibility.Result{}, err
		}
		if in.UsedQuantity, err = st.Lines().CoveredUsage(ctx, vin, *typeComponentID); err != nil {
			return eligibility.Result{}, err
		}
	}
	return eligibility.Evaluate(in)
}
