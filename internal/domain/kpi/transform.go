package kpi

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ColumnMap names the spreadsheet columns each extractor reads.
type ColumnMap struct {
	Production          string `yaml:"production"`
	Adjustments         string `yaml:"adjustments"`
	Writeoffs           string `yaml:"writeoffs"`
	PatientIncome       string `yaml:"patientIncome"`
	UnearnedIncome      string `yaml:"unearnedIncome"`
	InsuranceIncome     string `yaml:"insuranceIncome"`
	NewPatientsMTD      string `yaml:"newPatientsMtd"`
	TreatmentsPresented string `yaml:"treatmentsPresented"`
	TreatmentsScheduled string `yaml:"treatmentsScheduled"`
	SameDayTreatment    string `yaml:"sameDayTreatment"`
	HygieneTotal        string `yaml:"hygieneTotal"`
	NotReappointed      string `yaml:"notReappointed"`
}

// DefaultColumns matches the practice's EOD and front office form exports.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		Production:          "Total Production Today",
		Adjustments:         "Adjustments Today",
		Writeoffs:           "Write-offs Today",
		PatientIncome:       "Patient Income Today",
		UnearnedIncome:      "Unearned Income Today",
		InsuranceIncome:     "Insurance Income Today",
		NewPatientsMTD:      "New Patients - Total Month to Date",
		TreatmentsPresented: "treatments_presented",
		TreatmentsScheduled: "treatments_scheduled",
		SameDayTreatment:    "$ Same Day Treatment",
		HygieneTotal:        "Total hygiene Appointments",
		NotReappointed:      "Number of patients NOT reappointed?",
	}
}

// DefaultDateColumn is the form timestamp column present on both sources.
const DefaultDateColumn = "Submission Date"

// TransformConfig controls how raw tables are read.
type TransformConfig struct {
	DateColumn string
	Columns    ColumnMap
}

// ProductionInputs feeds ComputeProductionTotal.
type ProductionInputs struct {
	Production  *float64
	Adjustments *float64
	Writeoffs   *float64
}

// CollectionInputs feeds ComputeCollectionRate.
type CollectionInputs struct {
	Production      *float64
	Adjustments     *float64
	Writeoffs       *float64
	PatientIncome   *float64
	UnearnedIncome  *float64
	InsuranceIncome *float64
}

// NewPatientsInputs feeds ComputeNewPatients.
type NewPatientsInputs struct {
	NewPatientsMTD *float64
}

// CaseAcceptanceInputs feeds ComputeCaseAcceptance.
type CaseAcceptanceInputs struct {
	Presented *float64
	Scheduled *float64
	SameDay   *float64
}

// HygieneInputs feeds ComputeHygieneReappointment.
type HygieneInputs struct {
	Total          *float64
	NotReappointed *float64
}

// Transformer turns spreadsheet rows into calculator inputs. It never fails:
// anything unparseable becomes the supplied default.
type Transformer struct {
	dateColumn string
	columns    ColumnMap
}

// NewTransformer fills unset columns from DefaultColumns.
func NewTransformer(cfg TransformConfig) *Transformer {
	cols := cfg.Columns
	def := DefaultColumns()
	fill := func(dst *string, fallback string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = fallback
		}
	}
	fill(&cols.Production, def.Production)
	fill(&cols.Adjustments, def.Adjustments)
	fill(&cols.Writeoffs, def.Writeoffs)
	fill(&cols.PatientIncome, def.PatientIncome)
	fill(&cols.UnearnedIncome, def.UnearnedIncome)
	fill(&cols.InsuranceIncome, def.InsuranceIncome)
	fill(&cols.NewPatientsMTD, def.NewPatientsMTD)
	fill(&cols.TreatmentsPresented, def.TreatmentsPresented)
	fill(&cols.TreatmentsScheduled, def.TreatmentsScheduled)
	fill(&cols.SameDayTreatment, def.SameDayTreatment)
	fill(&cols.HygieneTotal, def.HygieneTotal)
	fill(&cols.NotReappointed, def.NotReappointed)
	return &Transformer{dateColumn: strings.TrimSpace(cfg.DateColumn), columns: cols}
}

// SafeExtract reads column from the current row of table.
func (t *Transformer) SafeExtract(table *Table, column string, def *float64) *float64 {
	if table.Empty() {
		return def
	}
	raw, ok := table.Cell(t.currentRow(table), column)
	if !ok {
		return def
	}
	parsed, ok := parseNumber(raw)
	if !ok {
		return def
	}
	return &parsed
}

// ExtractProductionInputs defaults adjustments and write-offs to zero.
func (t *Transformer) ExtractProductionInputs(eod *Table) ProductionInputs {
	return ProductionInputs{
		Production:  t.SafeExtract(eod, t.columns.Production, nil),
		Adjustments: t.SafeExtract(eod, t.columns.Adjustments, zero()),
		Writeoffs:   t.SafeExtract(eod, t.columns.Writeoffs, zero()),
	}
}

// ExtractCollectionInputs defaults every offset and income component to zero.
func (t *Transformer) ExtractCollectionInputs(eod *Table) CollectionInputs {
	return CollectionInputs{
		Production:      t.SafeExtract(eod, t.columns.Production, nil),
		Adjustments:     t.SafeExtract(eod, t.columns.Adjustments, zero()),
		Writeoffs:       t.SafeExtract(eod, t.columns.Writeoffs, zero()),
		PatientIncome:   t.SafeExtract(eod, t.columns.PatientIncome, zero()),
		UnearnedIncome:  t.SafeExtract(eod, t.columns.UnearnedIncome, zero()),
		InsuranceIncome: t.SafeExtract(eod, t.columns.InsuranceIncome, zero()),
	}
}

// ExtractNewPatientsInputs has no default; a missing count stays nil.
func (t *Transformer) ExtractNewPatientsInputs(eod *Table) NewPatientsInputs {
	return NewPatientsInputs{NewPatientsMTD: t.SafeExtract(eod, t.columns.NewPatientsMTD, nil)}
}

// ExtractCaseAcceptanceInputs has no defaults.
func (t *Transformer) ExtractCaseAcceptanceInputs(front *Table) CaseAcceptanceInputs {
	return CaseAcceptanceInputs{
		Presented: t.SafeExtract(front, t.columns.TreatmentsPresented, nil),
		Scheduled: t.SafeExtract(front, t.columns.TreatmentsScheduled, nil),
		SameDay:   t.SafeExtract(front, t.columns.SameDayTreatment, nil),
	}
}

// ExtractHygieneInputs has no defaults.
func (t *Transformer) ExtractHygieneInputs(front *Table) HygieneInputs {
	return HygieneInputs{
		Total:          t.SafeExtract(front, t.columns.HygieneTotal, nil),
		NotReappointed: t.SafeExtract(front, t.columns.NotReappointed, nil),
	}
}

// DatedRow is a row index paired with its parsed submission date.
type DatedRow struct {
	Index int
	Date  time.Time
}

// DatedRows lists every row whose date column parses, in table order.
func (t *Transformer) DatedRows(table *Table) []DatedRow {
	if table.Empty() || t.dateColumn == "" {
		return nil
	}
	if _, ok := table.ColumnIndex(t.dateColumn); !ok {
		return nil
	}
	out := make([]DatedRow, 0, len(table.Rows))
	for i := range table.Rows {
		raw, _ := table.Cell(i, t.dateColumn)
		if d, ok := parseDate(raw); ok {
			out = append(out, DatedRow{Index: i, Date: d})
		}
	}
	return out
}

// RowTable narrows table to a single row so extractors treat it as current.
func RowTable(table *Table, row int) *Table {
	if table.Empty() || row < 0 || row >= len(table.Rows) {
		return nil
	}
	return &Table{Columns: table.Columns, Rows: [][]any{table.Rows[row]}}
}

// RowOn narrows table to the last row dated day. Without such a row the table is
// returned unchanged and the usual current-row rule applies.
func (t *Transformer) RowOn(table *Table, day time.Time) *Table {
	match := -1
	for _, row := range t.DatedRows(table) {
		if DateOf(row.Date).Equal(DateOf(day)) {
			match = row.Index
		}
	}
	if match < 0 {
		return table
	}
	return RowTable(table, match)
}

// currentRow is the latest-dated row when the date column is usable, else the last row.
func (t *Transformer) currentRow(table *Table) int {
	last := len(table.Rows) - 1
	dated := t.DatedRows(table)
	if len(dated) == 0 {
		return last
	}
	best := dated[0]
	for _, candidate := range dated[1:] {
		if !candidate.Date.Before(best.Date) {
			best = candidate
		}
	}
	return best.Index
}

func parseNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		return parseNumericString(v)
	default:
		return 0, false
	}
}

func parseNumericString(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.Map(func(r rune) rune {
		if r == '$' || r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return finite(v)
}

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1/2/2006 15:04:05",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"Jan 2, 2006",
	"01-02-06",
	"1/2/06",
	"1/2/06 15:04",
}

func parseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func zero() *float64 {
	v := 0.0
	return &v
}
