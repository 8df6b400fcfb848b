package kpi

import (
	"fmt"
	"math"
)

const (
	collectionRateWarningCeiling = 110.0
	caseAcceptanceWarningCeiling = 100.0
)

// ComputeProductionTotal nets adjustments and write-offs into gross production.
func ComputeProductionTotal(in ProductionInputs) CalculationResult {
	if in.Production == nil {
		return CannotCalculate("Production value missing")
	}
	return Calculated(*in.Production + valueOr(in.Adjustments) + valueOr(in.Writeoffs))
}

// ComputeCollectionRate divides collected income by adjusted production.
// Non-negative offsets are treated as deductions and subtracted; negative offsets are
// already-signed deltas and are added back as their magnitude.
func ComputeCollectionRate(in CollectionInputs) CalculationResult {
	if in.Production == nil {
		return CannotCalculate("Production value missing")
	}
	adjusted := *in.Production
	for _, offset := range []*float64{in.Adjustments, in.Writeoffs} {
		v := valueOr(offset)
		if v >= 0 {
			adjusted -= v
		} else {
			adjusted += math.Abs(v)
		}
	}
	if adjusted == 0 {
		return CannotCalculate("Adjusted production is zero")
	}

	collections := valueOr(in.PatientIncome) + valueOr(in.UnearnedIncome) + valueOr(in.InsuranceIncome)
	rate := collections / adjusted * 100

	var warnings []string
	if adjusted < 0 {
		warnings = append(warnings, fmt.Sprintf("Adjusted production is negative (%.2f); review write-offs and adjustments", adjusted))
	}
	if rate > collectionRateWarningCeiling {
		warnings = append(warnings, fmt.Sprintf("Collection rate %.1f%% exceeds %.0f%%; verify production and collection values", rate, collectionRateWarningCeiling))
	}
	return Calculated(rate, warnings...)
}

// ComputeNewPatients rounds the month-to-date count.
func ComputeNewPatients(in NewPatientsInputs) CalculationResult {
	if in.NewPatientsMTD == nil {
		return CannotCalculate("New patient count missing")
	}
	if *in.NewPatientsMTD < 0 {
		return CannotCalculate("New patient count cannot be negative")
	}
	return Calculated(math.RoundToEven(*in.NewPatientsMTD))
}

// ComputeCaseAcceptance is scheduled plus same-day treatment over presented treatment.
func ComputeCaseAcceptance(in CaseAcceptanceInputs) CalculationResult {
	if in.Presented == nil || *in.Presented <= 0 {
		return CannotCalculate("Treatments presented must be greater than zero")
	}
	accepted := valueOr(in.Scheduled) + valueOr(in.SameDay)
	rate := accepted / *in.Presented * 100
	if rate > caseAcceptanceWarningCeiling {
		return Calculated(rate, fmt.Sprintf("Case acceptance %.1f%% exceeds 100%%; confirm presented and scheduled totals", rate))
	}
	return Calculated(rate)
}

// ComputeHygieneReappointment is the share of hygiene patients who left with a next visit.
func ComputeHygieneReappointment(in HygieneInputs) CalculationResult {
	if in.Total == nil || *in.Total <= 0 {
		return CannotCalculate("Total hygiene appointments must be greater than zero")
	}
	total := *in.Total
	notReappointed := valueOr(in.NotReappointed)

	var warnings []string
	switch {
	case notReappointed > total:
		warnings = append(warnings, fmt.Sprintf("Patients not reappointed (%.0f) exceeds total hygiene appointments (%.0f); capped value at total", notReappointed, total))
		notReappointed = total
	case notReappointed < 0:
		notReappointed = 0
	}
	return Calculated((total-notReappointed)/total*100, warnings...)
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
