package kpi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Location identifies a practice site.
type Location string

const (
	LocationBaytown Location = "baytown"
	LocationHumble  Location = "humble"
)

// ErrUnsupportedLocation is returned for any location outside the known set.
var ErrUnsupportedLocation = errors.New("unsupported location")

// Locations lists every supported site in display order.
func Locations() []Location {
	return []Location{LocationBaytown, LocationHumble}
}

// ParseLocation normalises user input into a Location.
func ParseLocation(raw string) (Location, error) {
	loc := Location(strings.ToLower(strings.TrimSpace(raw)))
	if !loc.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLocation, raw)
	}
	return loc, nil
}

// Valid reports whether l is one of the supported sites.
func (l Location) Valid() bool {
	switch l {
	case LocationBaytown, LocationHumble:
		return true
	default:
		return false
	}
}

// DisplayName is the human readable site name.
func (l Location) DisplayName() string {
	switch l {
	case LocationBaytown:
		return "Baytown"
	case LocationHumble:
		return "Humble"
	default:
		return string(l)
	}
}

// EODAlias is the provider alias of the end-of-day billing source.
func (l Location) EODAlias() string { return string(l) + "_eod" }

// FrontAlias is the provider alias of the front office KPI source.
func (l Location) FrontAlias() string { return string(l) + "_front" }

// DateOf strips the time component, keeping the calendar date of t in its own zone.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// KPIName is the closed set of computed metrics.
type KPIName string

const (
	KPIProductionTotal      KPIName = "production_total"
	KPICollectionRate       KPIName = "collection_rate"
	KPINewPatients          KPIName = "new_patients"
	KPICaseAcceptance       KPIName = "case_acceptance"
	KPIHygieneReappointment KPIName = "hygiene_reappointment"
)

// AllKPIs returns the five metrics in response order.
func AllKPIs() []KPIName {
	return []KPIName{
		KPIProductionTotal,
		KPICollectionRate,
		KPINewPatients,
		KPICaseAcceptance,
		KPIHygieneReappointment,
	}
}

// ParseKPIName validates a metric identifier.
func ParseKPIName(raw string) (KPIName, error) {
	name := KPIName(strings.ToLower(strings.TrimSpace(raw)))
	for _, candidate := range AllKPIs() {
		if candidate == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown kpi %q", raw)
}

// Severity grades a validation finding.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// AvailabilityStatus explains whether a value could be produced.
type AvailabilityStatus string

const (
	StatusAvailable           AvailabilityStatus = "AVAILABLE"
	StatusExpectedClosure     AvailabilityStatus = "EXPECTED_CLOSURE"
	StatusDataNotReady        AvailabilityStatus = "DATA_NOT_READY"
	StatusPartial             AvailabilityStatus = "PARTIAL"
	StatusDataQualityIssue    AvailabilityStatus = "DATA_QUALITY_ISSUE"
	StatusInfrastructureError AvailabilityStatus = "INFRASTRUCTURE_ERROR"
)

// CalculationResult is the output of a single calculator.
// Reason is set exactly when CanCalculate is false; Warnings only accompany calculable results.
type CalculationResult struct {
	Value        *float64
	CanCalculate bool
	Reason       string
	Warnings     []string
}

// Calculated builds a successful result.
func Calculated(value float64, warnings ...string) CalculationResult {
	v := value
	var ws []string
	if len(warnings) > 0 {
		ws = append(ws, warnings...)
	}
	return CalculationResult{Value: &v, CanCalculate: true, Warnings: ws}
}

// CannotCalculate builds a failed result with its reason.
func CannotCalculate(reason string) CalculationResult {
	if strings.TrimSpace(reason) == "" {
		reason = "Calculation not possible"
	}
	return CalculationResult{Reason: reason}
}

// ValidationIssue is a business-rule finding attached to a KPI.
type ValidationIssue struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// ErrDuplicateIssueCode is returned when one KPI carries the same issue code twice.
var ErrDuplicateIssueCode = errors.New("duplicate validation issue code")

// KPIValue is the outward-facing wrapper for one metric.
type KPIValue struct {
	Value             *float64           `json:"value"`
	Available         bool               `json:"available"`
	Status            AvailabilityStatus `json:"availabilityStatus"`
	UnavailableReason string             `json:"unavailableReason,omitempty"`
	ValidationIssues  []ValidationIssue  `json:"validationIssues"`
}

// NewKPIValue assembles a KPIValue, rejecting duplicate issue codes.
func NewKPIValue(value *float64, available bool, status AvailabilityStatus, reason string, issues []ValidationIssue) (KPIValue, error) {
	seen := make(map[string]struct{}, len(issues))
	for _, issue := range issues {
		if _, dup := seen[issue.Code]; dup {
			return KPIValue{}, fmt.Errorf("%w: %s", ErrDuplicateIssueCode, issue.Code)
		}
		seen[issue.Code] = struct{}{}
	}
	copied := make([]ValidationIssue, len(issues))
	copy(copied, issues)
	var v *float64
	if value != nil {
		val := *value
		v = &val
	}
	return KPIValue{
		Value:             v,
		Available:         available,
		Status:            status,
		UnavailableReason: reason,
		ValidationIssues:  copied,
	}, nil
}

func unavailableValue(status AvailabilityStatus, reason string) KPIValue {
	return KPIValue{
		Status:            status,
		UnavailableReason: reason,
		ValidationIssues:  []ValidationIssue{},
	}
}

// KPIValues always carries all five metrics.
type KPIValues struct {
	ProductionTotal      KPIValue `json:"productionTotal"`
	CollectionRate       KPIValue `json:"collectionRate"`
	NewPatients          KPIValue `json:"newPatients"`
	CaseAcceptance       KPIValue `json:"caseAcceptance"`
	HygieneReappointment KPIValue `json:"hygieneReappointment"`
}

// Get returns the value for name.
func (v KPIValues) Get(name KPIName) KPIValue {
	switch name {
	case KPIProductionTotal:
		return v.ProductionTotal
	case KPICollectionRate:
		return v.CollectionRate
	case KPINewPatients:
		return v.NewPatients
	case KPICaseAcceptance:
		return v.CaseAcceptance
	case KPIHygieneReappointment:
		return v.HygieneReappointment
	default:
		return KPIValue{}
	}
}

func (v *KPIValues) set(name KPIName, value KPIValue) {
	switch name {
	case KPIProductionTotal:
		v.ProductionTotal = value
	case KPICollectionRate:
		v.CollectionRate = value
	case KPINewPatients:
		v.NewPatients = value
	case KPICaseAcceptance:
		v.CaseAcceptance = value
	case KPIHygieneReappointment:
		v.HygieneReappointment = value
	}
}

// All returns the five values in AllKPIs order.
func (v KPIValues) All() []KPIValue {
	names := AllKPIs()
	out := make([]KPIValue, 0, len(names))
	for _, name := range names {
		out = append(out, v.Get(name))
	}
	return out
}

func uniformValues(status AvailabilityStatus, reason string) KPIValues {
	var values KPIValues
	for _, name := range AllKPIs() {
		values.set(name, unavailableValue(status, reason))
	}
	return values
}

// DataFreshness records when a source was read.
type DataFreshness struct {
	SourceAlias string    `json:"sourceAlias"`
	AsOf        time.Time `json:"asOf"`
	RetrievedAt time.Time `json:"retrievedAt"`
	Timezone    string    `json:"timezone"`
}

// NewDataFreshness enforces that retrieval never precedes the data timestamp.
func NewDataFreshness(alias string, asOf, retrievedAt time.Time, timezone string) (DataFreshness, error) {
	if retrievedAt.Before(asOf) {
		return DataFreshness{}, fmt.Errorf("freshness for %s: retrieved_at %s precedes as_of %s", alias, retrievedAt.Format(time.RFC3339), asOf.Format(time.RFC3339))
	}
	return DataFreshness{SourceAlias: alias, AsOf: asOf, RetrievedAt: retrievedAt, Timezone: timezone}, nil
}

// KPIResponse is the full snapshot for one location and date.
type KPIResponse struct {
	Location          Location           `json:"location"`
	BusinessDate      time.Time          `json:"businessDate"`
	Availability      AvailabilityStatus `json:"availability"`
	Values            KPIValues          `json:"values"`
	DataFreshness     []DataFreshness    `json:"dataFreshness"`
	ClosureReason     string             `json:"closureReason,omitempty"`
	ValidationSummary []ValidationIssue  `json:"validationSummary"`
}

// NewKPIResponse assembles the response; every summary entry must carry a message.
func NewKPIResponse(loc Location, date time.Time, availability AvailabilityStatus, values KPIValues, freshness []DataFreshness, closureReason string) (KPIResponse, error) {
	summary := make([]ValidationIssue, 0)
	for _, value := range values.All() {
		for _, issue := range value.ValidationIssues {
			if strings.TrimSpace(issue.Message) == "" {
				return KPIResponse{}, fmt.Errorf("validation issue %s has an empty message", issue.Code)
			}
			summary = append(summary, issue)
		}
	}
	if freshness == nil {
		freshness = []DataFreshness{}
	}
	return KPIResponse{
		Location:          loc,
		BusinessDate:      DateOf(date),
		Availability:      availability,
		Values:            values,
		DataFreshness:     freshness,
		ClosureReason:     closureReason,
		ValidationSummary: summary,
	}, nil
}

// HistoryPoint is one charted observation of a KPI.
type HistoryPoint struct {
	Date      time.Time `json:"date"`
	Value     *float64  `json:"value"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

// HistorySeries is the chart payload for one KPI.
type HistorySeries struct {
	Location Location       `json:"location"`
	KPI      KPIName        `json:"kpi"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Points   []HistoryPoint `json:"points"`
}

// CalendarStatus answers whether a site operates on a date.
type CalendarStatus struct {
	Location      Location  `json:"location"`
	Date          time.Time `json:"date"`
	Open          bool      `json:"open"`
	ClosureReason string    `json:"closureReason,omitempty"`
}
