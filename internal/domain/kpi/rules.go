package kpi

import (
	"fmt"
	"strings"
	"time"
)

// Default thresholds apply when a metric section exists but leaves a bound unset.
const (
	DefaultProductionOverPct    = 50.0
	DefaultProductionUnderPct   = -30.0
	DefaultCollectionWarningMin = 50.0
	DefaultCollectionWarningMax = 110.0
	DefaultCollectionTargetMin  = 98.0
	DefaultCollectionTargetMax  = 100.0
	DefaultCaseAcceptanceMin    = 80.0
	DefaultCaseAcceptanceMax    = 90.0
	DefaultHygieneTargetMin     = 95.0
	caseAcceptanceCeiling       = 100.0
	hygieneRangeMin             = 0.0
	hygieneRangeMax             = 100.0
)

// GoalsConfig is the goals document. An entirely empty document disables validation;
// otherwise a missing section validates against the default thresholds.
type GoalsConfig struct {
	Production           *ProductionGoals  `yaml:"production"`
	CollectionRate       *RangeConfig      `yaml:"collection_rate"`
	CaseAcceptance       *RangeConfig      `yaml:"case_acceptance"`
	HygieneReappointment *RangeConfig      `yaml:"hygiene_reappointment"`
	NewPatients          *NewPatientsGoals `yaml:"new_patients"`
}

// ProductionGoals holds per-location, per-weekday daily production goals.
// Weekday keys are lower-case English names ("monday").
type ProductionGoals struct {
	Daily    map[Location]map[string]float64 `yaml:"daily"`
	Variance VarianceConfig                  `yaml:"variance"`
}

// VarianceConfig bounds the acceptable deviation from goal, in percent.
type VarianceConfig struct {
	OverPct  *float64 `yaml:"over_pct"`
	UnderPct *float64 `yaml:"under_pct"`
}

// RangeConfig is a warning band and a target band, in percent.
type RangeConfig struct {
	WarningMin *float64 `yaml:"warning_min"`
	WarningMax *float64 `yaml:"warning_max"`
	TargetMin  *float64 `yaml:"target_min"`
	TargetMax  *float64 `yaml:"target_max"`
}

// NewPatientsGoals has no tunables yet; the negative-count check always applies.
type NewPatientsGoals struct{}

// Empty reports whether no section was configured at all.
func (c GoalsConfig) Empty() bool {
	return c.Production == nil && c.CollectionRate == nil && c.CaseAcceptance == nil &&
		c.HygieneReappointment == nil && c.NewPatients == nil
}

// ValidationRules compares calculated values to configured goals. Read-only after construction.
type ValidationRules struct {
	cfg     GoalsConfig
	enabled bool
}

// NewValidationRules wraps a decoded goals document.
func NewValidationRules(cfg GoalsConfig) *ValidationRules {
	return &ValidationRules{cfg: cfg, enabled: !cfg.Empty()}
}

// DailyProductionGoal returns 0 when no goal is configured for the location's weekday.
func (r *ValidationRules) DailyProductionGoal(loc Location, date time.Time) float64 {
	if r.cfg.Production == nil {
		return 0
	}
	goals, ok := r.cfg.Production.Daily[loc]
	if !ok {
		return 0
	}
	weekday := strings.ToLower(date.Weekday().String())
	for key, goal := range goals {
		if strings.EqualFold(strings.TrimSpace(key), weekday) {
			return goal
		}
	}
	return 0
}

// ValidateProduction flags production far above or below the day's goal.
func (r *ValidationRules) ValidateProduction(value *float64, loc Location, date time.Time) []ValidationIssue {
	if value == nil {
		return nil
	}
	goal := r.DailyProductionGoal(loc, date)
	if goal == 0 {
		return nil
	}
	over := pick(r.cfg.Production.Variance.OverPct, DefaultProductionOverPct)
	under := pick(r.cfg.Production.Variance.UnderPct, DefaultProductionUnderPct)
	variance := (*value - goal) / goal * 100

	switch {
	case variance > over:
		return []ValidationIssue{{
			Code:     "production.over_goal",
			Message:  fmt.Sprintf("Production $%.2f is %.1f%% above the daily goal of $%.2f", *value, variance, goal),
			Severity: SeverityWarning,
		}}
	case variance < under:
		return []ValidationIssue{{
			Code:     "production.under_goal",
			Message:  fmt.Sprintf("Production $%.2f is %.1f%% below the daily goal of $%.2f", *value, -variance, goal),
			Severity: SeverityWarning,
		}}
	}
	return nil
}

// ValidateCollectionRate checks the hard floor/ceiling before the target band.
func (r *ValidationRules) ValidateCollectionRate(value *float64) []ValidationIssue {
	if value == nil || !r.enabled {
		return nil
	}
	rng := section(r.cfg.CollectionRate)
	floor := pick(rng.WarningMin, DefaultCollectionWarningMin)
	ceiling := pick(rng.WarningMax, DefaultCollectionWarningMax)
	targetMin := pick(rng.TargetMin, DefaultCollectionTargetMin)
	targetMax := pick(rng.TargetMax, DefaultCollectionTargetMax)
	v := *value

	switch {
	case v < floor:
		return []ValidationIssue{{
			Code:     "collection_rate.too_low",
			Message:  fmt.Sprintf("Collection rate %.1f%% is below the %.0f%% minimum", v, floor),
			Severity: SeverityError,
		}}
	case v > ceiling:
		return []ValidationIssue{{
			Code:     "collection_rate.too_high",
			Message:  fmt.Sprintf("Collection rate %.1f%% is above the %.0f%% maximum", v, ceiling),
			Severity: SeverityWarning,
		}}
	case v < targetMin || v > targetMax:
		return []ValidationIssue{{
			Code:     "collection_rate.outside_target",
			Message:  fmt.Sprintf("Collection rate %.1f%% is outside the %.0f-%.0f%% target", v, targetMin, targetMax),
			Severity: SeverityInfo,
		}}
	}
	return nil
}

// ValidateCaseAcceptance warns above 100% and notes values outside the target band.
func (r *ValidationRules) ValidateCaseAcceptance(value *float64) []ValidationIssue {
	if value == nil || !r.enabled {
		return nil
	}
	rng := section(r.cfg.CaseAcceptance)
	targetMin := pick(rng.TargetMin, DefaultCaseAcceptanceMin)
	targetMax := pick(rng.TargetMax, DefaultCaseAcceptanceMax)
	v := *value

	var issues []ValidationIssue
	if v > caseAcceptanceCeiling {
		issues = append(issues, ValidationIssue{
			Code:     "case_acceptance.over_100",
			Message:  fmt.Sprintf("Case acceptance %.1f%% exceeds 100%%", v),
			Severity: SeverityWarning,
		})
	}
	switch {
	case v < targetMin:
		issues = append(issues, ValidationIssue{
			Code:     "case_acceptance.below_target",
			Message:  fmt.Sprintf("Case acceptance %.1f%% is below the %.0f%% target", v, targetMin),
			Severity: SeverityInfo,
		})
	case v > targetMax:
		issues = append(issues, ValidationIssue{
			Code:     "case_acceptance.above_target",
			Message:  fmt.Sprintf("Case acceptance %.1f%% is above the %.0f%% target", v, targetMax),
			Severity: SeverityInfo,
		})
	}
	return issues
}

// ValidateHygieneReappointment rejects impossible percentages and notes low rates.
func (r *ValidationRules) ValidateHygieneReappointment(value *float64) []ValidationIssue {
	if value == nil || !r.enabled {
		return nil
	}
	v := *value
	if v < hygieneRangeMin || v > hygieneRangeMax {
		return []ValidationIssue{{
			Code:     "hygiene_reappointment.invalid_range",
			Message:  fmt.Sprintf("Hygiene reappointment rate %.1f%% is outside 0-100%%", v),
			Severity: SeverityError,
		}}
	}
	floor := pick(section(r.cfg.HygieneReappointment).TargetMin, DefaultHygieneTargetMin)
	if v < floor {
		return []ValidationIssue{{
			Code:     "hygiene_reappointment.below_target",
			Message:  fmt.Sprintf("Hygiene reappointment rate %.1f%% is below the %.0f%% target", v, floor),
			Severity: SeverityInfo,
		}}
	}
	return nil
}

// ValidateNewPatients only rejects negative counts.
func (r *ValidationRules) ValidateNewPatients(value *float64) []ValidationIssue {
	if value == nil || !r.enabled {
		return nil
	}
	if *value < 0 {
		return []ValidationIssue{{
			Code:     "new_patients.negative",
			Message:  fmt.Sprintf("New patient count %.0f cannot be negative", *value),
			Severity: SeverityError,
		}}
	}
	return nil
}

func pick(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func section(rng *RangeConfig) RangeConfig {
	if rng == nil {
		return RangeConfig{}
	}
	return *rng
}
