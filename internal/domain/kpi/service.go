package kpi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
	"github.com/yanqian/practice-kpi/pkg/util"
)

// Service exposes the KPI snapshot pipeline and its chart/calendar companions.
type Service interface {
	GetKPIs(ctx context.Context, loc Location, date time.Time) (KPIResponse, error)
	GetHistory(ctx context.Context, loc Location, name KPIName, from, to time.Time) (HistorySeries, error)
	CalendarStatus(loc Location, date time.Time) (CalendarStatus, error)
	Sources(ctx context.Context) ([]string, error)
}

// Config holds service-level settings.
type Config struct {
	Timezone string
}

type service struct {
	cfg         Config
	provider    DataProvider
	calendar    *BusinessCalendar
	rules       *ValidationRules
	transformer *Transformer
	recorder    Recorder
	logger      *slog.Logger
	timezone    *time.Location
	now         func() time.Time
}

// NewService wires the pipeline collaborators. A nil recorder disables metrics.
func NewService(cfg Config, provider DataProvider, calendar *BusinessCalendar, rules *ValidationRules, transformer *Transformer, recorder Recorder, logger *slog.Logger) Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		tz = time.UTC
		cfg.Timezone = tz.String()
	}
	return &service{
		cfg:         cfg,
		provider:    provider,
		calendar:    calendar,
		rules:       rules,
		transformer: transformer,
		recorder:    recorder,
		logger:      logger.With("component", "kpi.service"),
		timezone:    tz,
		now:         util.NowUTC,
	}
}

// GetKPIs only returns an error for an unsupported location; every pipeline failure
// is reported through availability statuses on the response.
func (s *service) GetKPIs(ctx context.Context, loc Location, date time.Time) (KPIResponse, error) {
	if !loc.Valid() {
		return KPIResponse{}, apperrors.Wrap(apperrors.CodeUnsupportedLocation, fmt.Sprintf("unsupported location %q", loc), ErrUnsupportedLocation)
	}
	start := time.Now()
	day := DateOf(date)
	resp := s.run(ctx, loc, day)
	s.recorder.ObserveResponse(loc, resp.Availability, time.Since(start))
	s.logger.Info("kpi snapshot computed",
		"location", loc,
		"date", day.Format(time.DateOnly),
		"availability", resp.Availability,
		"issues", len(resp.ValidationSummary),
	)
	return resp, nil
}

func (s *service) run(ctx context.Context, loc Location, day time.Time) KPIResponse {
	open, err := s.calendar.IsBusinessDay(loc, day)
	if err != nil {
		return s.uniform(loc, day, StatusInfrastructureError, err.Error(), "")
	}
	if !open {
		reason, _ := s.calendar.ExpectedClosureReason(loc, day)
		return s.uniform(loc, day, StatusExpectedClosure, reason, reason)
	}

	tables := make(map[sourceKind]*Table, 2)
	for _, kind := range []sourceKind{sourceEOD, sourceFront} {
		table, err := s.fetch(ctx, kind.alias(loc))
		if err != nil {
			return s.uniform(loc, day, StatusInfrastructureError, fmt.Sprintf("Data fetch failed: %v", err), "")
		}
		tables[kind] = s.transformer.RowOn(table, day)
	}
	if tables[sourceEOD] == nil && tables[sourceFront] == nil {
		return s.uniform(loc, day, StatusDataNotReady, fmt.Sprintf("No data available yet for %s", day.Format(time.DateOnly)), "")
	}

	var values KPIValues
	for _, name := range AllKPIs() {
		values.set(name, s.evaluate(name, handlers[name], tables, loc, day))
	}

	retrievedAt := s.now().In(s.timezone)
	freshness := make([]DataFreshness, 0, 2)
	for _, kind := range []sourceKind{sourceEOD, sourceFront} {
		if tables[kind] == nil {
			continue
		}
		entry, err := NewDataFreshness(kind.alias(loc), retrievedAt, retrievedAt, s.cfg.Timezone)
		if err != nil {
			s.logger.Warn("freshness entry rejected", "alias", kind.alias(loc), "error", err)
			continue
		}
		freshness = append(freshness, entry)
	}

	resp, err := NewKPIResponse(loc, day, overallAvailability(values), values, freshness, "")
	if err != nil {
		s.logger.Error("kpi response assembly failed", "location", loc, "error", err)
		return s.uniform(loc, day, StatusDataQualityIssue, err.Error(), "")
	}
	return resp
}

// fetch returns nil for an empty table and for an alias the provider is not configured
// to serve, so a missing source degrades like unpublished data.
func (s *service) fetch(ctx context.Context, alias string) (*Table, error) {
	if !s.provider.ValidateAlias(alias) {
		s.logger.Warn("data source not configured", "alias", alias)
		return nil, nil
	}
	start := time.Now()
	table, err := s.provider.Fetch(ctx, alias)
	s.recorder.ObserveFetch(alias, err, time.Since(start))
	if apperrors.IsCode(err, apperrors.CodeUnknownAlias) {
		s.logger.Warn("data source not configured", "alias", alias, "error", err)
		return nil, nil
	}
	if err != nil {
		s.logger.Error("data source fetch failed", "alias", alias, "error", err)
		return nil, err
	}
	if table.Empty() {
		s.logger.Info("data source empty", "alias", alias)
		return nil, nil
	}
	return table, nil
}

func (s *service) evaluate(name KPIName, h kpiHandler, tables map[sourceKind]*Table, loc Location, day time.Time) KPIValue {
	table := tables[h.source]
	if table == nil {
		if h.source == sourceFront {
			return unavailableValue(StatusPartial, "Front office KPI data not available")
		}
		return unavailableValue(StatusDataNotReady, "End-of-day data not available")
	}

	result := h.compute(s.transformer, table)
	if !result.CanCalculate {
		return unavailableValue(StatusDataQualityIssue, result.Reason)
	}

	issues := append([]ValidationIssue{}, h.validate(s.rules, result.Value, loc, day)...)
	for i, warning := range result.Warnings {
		code := fmt.Sprintf("%s.calculator_warning", name)
		if i > 0 {
			code = fmt.Sprintf("%s.%d", code, i+1)
		}
		issues = append(issues, ValidationIssue{Code: code, Message: warning, Severity: SeverityWarning})
	}

	value, err := NewKPIValue(result.Value, true, StatusAvailable, "", issues)
	if err != nil {
		s.logger.Error("kpi value rejected", "kpi", name, "error", err)
		return unavailableValue(StatusDataQualityIssue, err.Error())
	}
	return value
}

func (s *service) uniform(loc Location, day time.Time, status AvailabilityStatus, reason, closureReason string) KPIResponse {
	return KPIResponse{
		Location:          loc,
		BusinessDate:      day,
		Availability:      status,
		Values:            uniformValues(status, reason),
		DataFreshness:     []DataFreshness{},
		ClosureReason:     closureReason,
		ValidationSummary: []ValidationIssue{},
	}
}

// overallAvailability: all available ⇒ AVAILABLE, some ⇒ PARTIAL, none ⇒ worst status.
func overallAvailability(values KPIValues) AvailabilityStatus {
	all := values.All()
	available := 0
	seen := make(map[AvailabilityStatus]bool, len(all))
	for _, v := range all {
		if v.Available {
			available++
		}
		seen[v.Status] = true
	}
	switch {
	case available == len(all):
		return StatusAvailable
	case available > 0:
		return StatusPartial
	}
	for _, status := range []AvailabilityStatus{StatusInfrastructureError, StatusDataQualityIssue, StatusDataNotReady} {
		if seen[status] {
			return status
		}
	}
	return StatusDataNotReady
}

func (s *service) GetHistory(ctx context.Context, loc Location, name KPIName, from, to time.Time) (HistorySeries, error) {
	if !loc.Valid() {
		return HistorySeries{}, apperrors.Wrap(apperrors.CodeUnsupportedLocation, fmt.Sprintf("unsupported location %q", loc), ErrUnsupportedLocation)
	}
	h, ok := handlers[name]
	if !ok {
		return HistorySeries{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown kpi %q", name), nil)
	}
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return HistorySeries{}, apperrors.Wrap(apperrors.CodeInvalidInput, "history range end precedes start", nil)
	}

	series := HistorySeries{Location: loc, KPI: name, From: from, To: to, Points: []HistoryPoint{}}
	table, err := s.fetch(ctx, h.source.alias(loc))
	if err != nil {
		return HistorySeries{}, apperrors.Wrap(apperrors.CodeDataSource, "failed to fetch history source", err)
	}
	if table == nil {
		return series, nil
	}

	byDay := make(map[time.Time]int)
	for _, row := range s.transformer.DatedRows(table) {
		day := DateOf(row.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		if open, _ := s.calendar.IsBusinessDay(loc, day); !open {
			continue
		}
		byDay[day] = row.Index
	}

	for day, idx := range byDay {
		result := h.compute(s.transformer, RowTable(table, idx))
		point := HistoryPoint{Date: day, Available: result.CanCalculate, Reason: result.Reason}
		if result.CanCalculate {
			point.Value = result.Value
		}
		series.Points = append(series.Points, point)
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Date.Before(series.Points[j].Date)
	})
	return series, nil
}

func (s *service) CalendarStatus(loc Location, date time.Time) (CalendarStatus, error) {
	status, err := s.calendar.Status(loc, date)
	if err != nil {
		return CalendarStatus{}, apperrors.Wrap(apperrors.CodeUnsupportedLocation, err.Error(), err)
	}
	return status, nil
}

func (s *service) Sources(ctx context.Context) ([]string, error) {
	aliases, err := s.provider.ListAvailableAliases(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, "failed to list data sources", err)
	}
	sort.Strings(aliases)
	return aliases, nil
}
