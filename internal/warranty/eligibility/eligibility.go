// Package eligibility 保修资格判定，纯函数，不访问存储。
package eligibility

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

// 条款来源
const (
	SourceComponent = "COMPONENT"
	SourceGeneral   = "GENERAL"
)

// Terms 生效的保修条款
type Terms struct {
	Source          string `json:"source"`
	DurationMonths  int    `json:"duration_months"`
	MileageLimit    int    `json:"mileage_limit"`
	CoveredQuantity int    `json:"covered_quantity"` // 0 表示不限
}

// Input 判定输入
type Input struct {
	Vehicle           entity.Vehicle
	Model             entity.VehicleModel
	Component         *entity.WarrantyComponent // nil 时使用整车通用条款
	Odometer          int
	CurrentDate       time.Time
	RequestedQuantity int
	UsedQuantity      int // 该车该类配件已占用的保修数量
}

// Result 判定结果
type Result struct {
	Status        entity.WarrantyStatus `json:"status"`
	Terms         Terms                 `json:"terms"`
	AgeMonths     int                   `json:"age_months"`
	EligibleUnits int                   `json:"eligible_units"`
	Reason        string                `json:"reason,omitempty"`
}

// Partial 部分数量在保
func (r Result) Partial(requested int) bool {
	return r.Status == entity.WarrantyEligible && r.EligibleUnits < requested
}

// TermsFor 选取配件条款，缺失时回退到车型通用条款
func TermsFor(model entity.VehicleModel, wc *entity.WarrantyComponent) Terms {
	if wc != nil {
		return Terms{
			Source:          SourceComponent,
			DurationMonths:  wc.DurationMonth,
			MileageLimit:    wc.MileageLimit,
			CoveredQuantity: wc.Quantity,
		}
	}
	return Terms{
		Source:         SourceGeneral,
		DurationMonths: model.GeneralWarrantyDuration,
		MileageLimit:   model.GeneralWarrantyMileage,
	}
}

// MonthsBetween 完整月数，目标日早于起始日的日号时不计当月
func MonthsBetween(from, to time.Time) int {
	from = from.UTC()
	to = to.UTC()
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Evaluate 判定保修资格。购车日期未知时返回 UnregisteredVehicle。
func Evaluate(in Input) (Result, error) {
	if in.Vehicle.PurchaseDate == nil {
		return Result{}, apperr.New(apperr.KindUnregisteredVehicle, "车辆未登记购车日期: %s", in.Vehicle.VIN).
			With("vin", in.Vehicle.VIN)
	}
	requested := in.RequestedQuantity
	if requested <= 0 {
		requested = 1
	}

	terms := TermsFor(in.Model, in.Component)
	age := MonthsBetween(*in.Vehicle.PurchaseDate, in.CurrentDate)
	res := Result{Terms: terms, AgeMonths: age}

	switch {
	case age > terms.DurationMonths:
		res.Status = entity.WarrantyIneligible
		res.Reason = fmt.Sprintf("车龄%d个月超过保修期%d个月", age, terms.DurationMonths)
		return res, nil
	case in.Odometer > terms.MileageLimit:
		res.Status = entity.WarrantyIneligible
		res.Reason = fmt.Sprintf("里程%dkm超过保修里程%dkm", in.Odometer, terms.MileageLimit)
		return res, nil
	}

	res.EligibleUnits = requested
	if terms.CoveredQuantity > 0 {
		remaining := terms.CoveredQuantity - in.UsedQuantity
		if remaining < 0 {
			remaining = 0
		}
		if remaining < requested {
			res.EligibleUnits = remaining
			res.Reason = fmt.Sprintf("保修数量剩余%d件", remaining)
		}
	}
	if res.EligibleUnits == 0 {
		res.Status = entity.WarrantyIneligible
		if res.Reason == "" {
			res.Reason = "保修数量已用完"
		}
		return res, nil
	}
	res.Status = entity.WarrantyEligible
	return res, nil
}
