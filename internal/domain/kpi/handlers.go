package kpi

import "time"

type sourceKind int

const (
	sourceEOD sourceKind = iota
	sourceFront
)

// kpiHandler binds one metric to its source table, calculator and validation rule.
type kpiHandler struct {
	source   sourceKind
	compute  func(t *Transformer, table *Table) CalculationResult
	validate func(r *ValidationRules, value *float64, loc Location, date time.Time) []ValidationIssue
}

// handlers is keyed by the closed KPIName set; handlers_test asserts it covers AllKPIs.
var handlers = map[KPIName]kpiHandler{
	KPIProductionTotal: {
		source: sourceEOD,
		compute: func(t *Transformer, table *Table) CalculationResult {
			return ComputeProductionTotal(t.ExtractProductionInputs(table))
		},
		validate: func(r *ValidationRules, value *float64, loc Location, date time.Time) []ValidationIssue {
			return r.ValidateProduction(value, loc, date)
		},
	},
	KPICollectionRate: {
		source: sourceEOD,
		compute: func(t *Transformer, table *Table) CalculationResult {
			return ComputeCollectionRate(t.ExtractCollectionInputs(table))
		},
		validate: func(r *ValidationRules, value *float64, _ Location, _ time.Time) []ValidationIssue {
			return r.ValidateCollectionRate(value)
		},
	},
	KPINewPatients: {
		source: sourceEOD,
		compute: func(t *Transformer, table *Table) CalculationResult {
			return ComputeNewPatients(t.ExtractNewPatientsInputs(table))
		},
		validate: func(r *ValidationRules, value *float64, _ Location, _ time.Time) []ValidationIssue {
			return r.ValidateNewPatients(value)
		},
	},
	KPICaseAcceptance: {
		source: sourceFront,
		compute: func(t *Transformer, table *Table) CalculationResult {
			return ComputeCaseAcceptance(t.ExtractCaseAcceptanceInputs(table))
		},
		validate: func(r *ValidationRules, value *float64, _ Location, _ time.Time) []ValidationIssue {
			return r.ValidateCaseAcceptance(value)
		},
	},
	KPIHygieneReappointment: {
		source: sourceFront,
		compute: func(t *Transformer, table *Table) CalculationResult {
			return ComputeHygieneReappointment(t.ExtractHygieneInputs(table))
		},
		validate: func(r *ValidationRules, value *float64, _ Location, _ time.Time) []ValidationIssue {
			return r.ValidateHygieneReappointment(value)
		},
	},
}

func (k sourceKind) alias(loc Location) string {
	if k == sourceFront {
		return loc.FrontAlias()
	}
	return loc.EODAlias()
}
