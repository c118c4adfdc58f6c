package eligibility

import (
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func vehicle(purchase time.Time) entity.Vehicle {
	return entity.Vehicle{VIN: "VF1TESTVIN0000001", ModelID: "m1", PurchaseDate: &purchase}
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"same day", date(2024, 1, 15), date(2024, 1, 15), 0},
		{"one full month", date(2024, 1, 15), date(2024, 2, 15), 1},
		{"day before anniversary", date(2024, 1, 15), date(2024, 2, 14), 0},
		{"across years", date(2020, 1, 1), date(2024, 6, 1), 53},
		{"five years exact", date(2020, 1, 1), date(2025, 1, 1), 60},
		{"to before from", date(2024, 5, 1), date(2024, 1, 1), 0},
		{"month end", date(2024, 1, 31), date(2024, 2, 29), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthsBetween(tt.from, tt.to); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestEvaluateComponentTerms(t *testing.T) {
	wc := &entity.WarrantyComponent{DurationMonth: 60, MileageLimit: 120000}
	base := Input{
		Vehicle:           vehicle(date(2020, 1, 1)),
		Component:         wc,
		CurrentDate:       date(2024, 6, 1),
		RequestedQuantity: 1,
	}

	in := base
	in.Odometer = 50000
	res, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Status != entity.WarrantyEligible {
		t.Errorf("expected ELIGIBLE, got %s (%s)", res.Status, res.Reason)
	}
	if res.AgeMonths != 53 {
		t.Errorf("expected age 53, got %d", res.AgeMonths)
	}
	if res.Terms.Source != SourceComponent {
		t.Errorf("expected component terms, got %s", res.Terms.Source)
	}

	in = base
	in.Odometer = 130000
	res, err = Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Status != entity.WarrantyIneligible {
		t.Errorf("expected INELIGIBLE by mileage, got %s", res.Status)
	}
}

func TestEvaluateBoundaryIsInclusive(t *testing.T) {
	wc := &entity.WarrantyComponent{DurationMonth: 60, MileageLimit: 120000}
	res, err := Evaluate(Input{
		Vehicle:     vehicle(date(2020, 1, 1)),
		Component:   wc,
		CurrentDate: date(2025, 1, 1),
		Odometer:    120000,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Status != entity.WarrantyEligible {
		t.Errorf("limits are inclusive, got %s", res.Status)
	}

	res, _ = Evaluate(Input{
		Vehicle:     vehicle(date(2020, 1, 1)),
		Component:   wc,
		CurrentDate: date(2025, 2, 1),
		Odometer:    100,
	})
	if res.Status != entity.WarrantyIneligible {
		t.Errorf("61 months should be out of warranty, got %s", res.Status)
	}
}

func TestEvaluateFallsBackToGeneralWarranty(t *testing.T) {
	model := entity.VehicleModel{GeneralWarrantyDuration: 36, GeneralWarrantyMileage: 60000}
	res, err := Evaluate(Input{
		Vehicle:     vehicle(date(2022, 3, 10)),
		Model:       model,
		CurrentDate: date(2024, 6, 1),
		Odometer:    30000,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Terms.Source != SourceGeneral || res.Terms.DurationMonths != 36 {
		t.Errorf("expected general terms, got %+v", res.Terms)
	}
	if res.Status != entity.WarrantyEligible {
		t.Errorf("expected ELIGIBLE, got %s", res.Status)
	}
}

func TestEvaluateUnregisteredVehicle(t *testing.T) {
	_, err := Evaluate(Input{Vehicle: entity.Vehicle{VIN: "X"}, CurrentDate: date(2024, 1, 1)})
	if !errors.Is(err, apperr.ErrUnregisteredVehicle) {
		t.Fatalf("expected UnregisteredVehicle, got %v", err)
	}
}

func TestEvaluateCoveredQuantity(t *testing.T) {
	wc := &entity.WarrantyComponent{DurationMonth: 60, MileageLimit: 120000, Quantity: 4}
	in := Input{
		Vehicle:           vehicle(date(2023, 1, 1)),
		Component:         wc,
		CurrentDate:       date(2024, 1, 1),
		Odometer:          1000,
		RequestedQuantity: 3,
		UsedQuantity:      2,
	}
	res, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Status != entity.WarrantyEligible || res.EligibleUnits != 2 {
		t.Fatalf("expected 2 eligible units, got %s/%d", res.Status, res.EligibleUnits)
	}
	if !res.Partial(3) {
		t.Error("expected partial eligibility")
	}

	in.UsedQuantity = 4
	res, _ = Evaluate(in)
	if res.Status != entity.WarrantyIneligible || res.EligibleUnits != 0 {
		t.Errorf("expected exhausted coverage, got %s/%d", res.Status, res.EligibleUnits)
	}
}
