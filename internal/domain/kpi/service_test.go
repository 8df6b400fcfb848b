package kpi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

type stubProvider struct {
	tables     map[string]*Table
	errs       map[string]error
	aliases    []string
	unselected map[string]bool
	calls      []string
}

func (s *stubProvider) Fetch(_ context.Context, alias string) (*Table, error) {
	s.calls = append(s.calls, alias)
	if err := s.errs[alias]; err != nil {
		return nil, err
	}
	return s.tables[alias], nil
}

func (s *stubProvider) ListAvailableAliases(context.Context) ([]string, error) {
	return s.aliases, nil
}

func (s *stubProvider) ValidateAlias(alias string) bool {
	return !s.unselected[alias]
}

type stubRecorder struct {
	responses []AvailabilityStatus
	fetches   int
}

func (r *stubRecorder) ObserveResponse(_ Location, availability AvailabilityStatus, _ time.Duration) {
	r.responses = append(r.responses, availability)
}

func (r *stubRecorder) ObserveFetch(string, error, time.Duration) { r.fetches++ }

func eodTable() *Table {
	return &Table{
		Columns: []string{
			"Submission Date", "Total Production Today", "Adjustments Today", "Write-offs Today",
			"Patient Income Today", "Unearned Income Today", "Insurance Income Today",
			"New Patients - Total Month to Date",
		},
		Rows: [][]any{
			{"2025-01-03", "4000", "0", "0", "1000", "0", "1000", "3"},
			{"2025-01-06", "$6,000.00", "0", "0", "2,000", "500", "3,400", "5"},
		},
	}
}

func frontTable() *Table {
	return &Table{
		Columns: []string{
			"Submission Date", "treatments_presented", "treatments_scheduled", "$ Same Day Treatment",
			"Total hygiene Appointments", "Number of patients NOT reappointed?",
		},
		Rows: [][]any{
			{"2025-01-06", "10", "7", "1", "20", "0"},
		},
	}
}

func newTestService(provider DataProvider, goals GoalsConfig) (*service, *stubRecorder) {
	rec := &stubRecorder{}
	return &service{
		cfg:         Config{Timezone: "UTC"},
		provider:    provider,
		calendar:    NewBusinessCalendar(CalendarConfig{SaturdayAnchor: day("2025-01-04")}),
		rules:       NewValidationRules(goals),
		transformer: NewTransformer(TransformConfig{DateColumn: DefaultDateColumn}),
		recorder:    rec,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		timezone:    time.UTC,
		now: func() time.Time {
			return time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC)
		},
	}, rec
}

func TestGetKPIsAllAvailable(t *testing.T) {
	provider := &stubProvider{tables: map[string]*Table{
		"baytown_eod":   eodTable(),
		"baytown_front": frontTable(),
	}}
	svc, rec := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusAvailable, resp.Availability)
	require.Equal(t, 6000.0, *resp.Values.ProductionTotal.Value)
	require.InDelta(t, 98.333, *resp.Values.CollectionRate.Value, 0.001)
	require.Equal(t, 5.0, *resp.Values.NewPatients.Value)
	require.InDelta(t, 80.0, *resp.Values.CaseAcceptance.Value, 1e-9)
	require.InDelta(t, 100.0, *resp.Values.HygieneReappointment.Value, 1e-9)
	require.Empty(t, resp.ValidationSummary)
	require.Len(t, resp.DataFreshness, 2)
	require.Equal(t, "baytown_eod", resp.DataFreshness[0].SourceAlias)
	require.False(t, resp.DataFreshness[0].RetrievedAt.Before(resp.DataFreshness[0].AsOf))
	require.Equal(t, []string{"baytown_eod", "baytown_front"}, provider.calls)
	require.Equal(t, []AvailabilityStatus{StatusAvailable}, rec.responses)
	require.Equal(t, 2, rec.fetches)
}

func TestGetKPIsExpectedClosureSkipsFetch(t *testing.T) {
	provider := &stubProvider{}
	svc, _ := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationHumble, day("2025-01-10"))
	require.NoError(t, err)
	require.Equal(t, StatusExpectedClosure, resp.Availability)
	require.Equal(t, "Humble is closed on Fridays", resp.ClosureReason)
	for _, v := range resp.Values.All() {
		require.False(t, v.Available)
		require.Nil(t, v.Value)
		require.Equal(t, StatusExpectedClosure, v.Status)
	}
	require.Empty(t, provider.calls)
}

func TestGetKPIsFrontMissingIsPartial(t *testing.T) {
	provider := &stubProvider{tables: map[string]*Table{"baytown_eod": eodTable()}}
	svc, _ := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, resp.Availability)
	require.True(t, resp.Values.ProductionTotal.Available)
	require.True(t, resp.Values.CollectionRate.Available)
	require.True(t, resp.Values.NewPatients.Available)
	require.False(t, resp.Values.CaseAcceptance.Available)
	require.Equal(t, StatusPartial, resp.Values.CaseAcceptance.Status)
	require.Equal(t, StatusPartial, resp.Values.HygieneReappointment.Status)
	require.Len(t, resp.DataFreshness, 1)
}

func TestGetKPIsUnconfiguredSourceIsPartial(t *testing.T) {
	provider := &stubProvider{
		tables:     map[string]*Table{"baytown_eod": eodTable()},
		unselected: map[string]bool{"baytown_front": true},
	}
	svc, rec := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, resp.Availability)
	require.True(t, resp.Values.ProductionTotal.Available)
	require.Equal(t, StatusPartial, resp.Values.CaseAcceptance.Status)
	require.Equal(t, []string{"baytown_eod"}, provider.calls)
	require.Equal(t, 1, rec.fetches)
}

func TestGetKPIsUnknownAliasErrorIsPartial(t *testing.T) {
	provider := &stubProvider{
		tables: map[string]*Table{"baytown_eod": eodTable()},
		errs: map[string]error{
			"baytown_front": apperrors.Wrap(apperrors.CodeUnknownAlias, `unknown data source "baytown_front"`, nil),
		},
	}
	svc, _ := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, resp.Availability)
	require.True(t, resp.Values.ProductionTotal.Available)
	require.Equal(t, 6000.0, *resp.Values.ProductionTotal.Value)
	require.False(t, resp.Values.HygieneReappointment.Available)
}

func TestGetKPIsPrefersRowForRequestedDate(t *testing.T) {
	eod := eodTable()
	eod.Rows = append(eod.Rows, []any{"2025-01-07", "7000", "0", "0", "0", "0", "0", "6"})
	provider := &stubProvider{tables: map[string]*Table{
		"baytown_eod":   eod,
		"baytown_front": frontTable(),
	}}
	svc, _ := newTestService(provider, GoalsConfig{})
	ctx := context.Background()

	resp, err := svc.GetKPIs(ctx, LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, 6000.0, *resp.Values.ProductionTotal.Value)
	require.Equal(t, 5.0, *resp.Values.NewPatients.Value)

	resp, err = svc.GetKPIs(ctx, LocationBaytown, day("2025-01-07"))
	require.NoError(t, err)
	require.Equal(t, 7000.0, *resp.Values.ProductionTotal.Value)

	// No row for the 8th: the latest-dated row is reported.
	resp, err = svc.GetKPIs(ctx, LocationBaytown, day("2025-01-08"))
	require.NoError(t, err)
	require.Equal(t, 7000.0, *resp.Values.ProductionTotal.Value)
}

func TestGetKPIsEODMissingIsDataNotReady(t *testing.T) {
	provider := &stubProvider{tables: map[string]*Table{"baytown_front": frontTable()}}
	svc, _ := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, resp.Availability)
	require.Equal(t, StatusDataNotReady, resp.Values.ProductionTotal.Status)
	require.True(t, resp.Values.CaseAcceptance.Available)
}

func TestGetKPIsNoDataIsDataNotReady(t *testing.T) {
	provider := &stubProvider{tables: map[string]*Table{
		"baytown_eod": {Columns: []string{"Total Production Today"}},
	}}
	svc, _ := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusDataNotReady, resp.Availability)
	for _, v := range resp.Values.All() {
		require.Equal(t, StatusDataNotReady, v.Status)
		require.NotEmpty(t, v.UnavailableReason)
	}
}

func TestGetKPIsFetchErrorIsInfrastructureError(t *testing.T) {
	provider := &stubProvider{
		tables: map[string]*Table{"baytown_eod": eodTable()},
		errs:   map[string]error{"baytown_front": errors.New("quota exceeded")},
	}
	svc, rec := newTestService(provider, GoalsConfig{})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusInfrastructureError, resp.Availability)
	for _, v := range resp.Values.All() {
		require.Equal(t, StatusInfrastructureError, v.Status)
		require.Equal(t, "Data fetch failed: quota exceeded", v.UnavailableReason)
	}
	require.Empty(t, resp.DataFreshness)
	require.Equal(t, []AvailabilityStatus{StatusInfrastructureError}, rec.responses)
}

func TestGetKPIsDataQualityAndWarnings(t *testing.T) {
	front := frontTable()
	front.Rows[0][1] = "0"
	front.Rows[0][5] = "25"
	provider := &stubProvider{tables: map[string]*Table{
		"baytown_eod":   eodTable(),
		"baytown_front": front,
	}}
	svc, _ := newTestService(provider, GoalsConfig{CollectionRate: &RangeConfig{}})

	resp, err := svc.GetKPIs(context.Background(), LocationBaytown, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, StatusPartial, resp.Availability)
	require.Equal(t, StatusDataQualityIssue, resp.Values.CaseAcceptance.Status)
	require.Equal(t, "Treatments presented must be greater than zero", resp.Values.CaseAcceptance.UnavailableReason)

	hygiene := resp.Values.HygieneReappointment
	require.True(t, hygiene.Available)
	require.Equal(t, 0.0, *hygiene.Value)
	require.Equal(t,
		[]string{"hygiene_reappointment.below_target", "hygiene_reappointment.calculator_warning"},
		codes(hygiene.ValidationIssues),
	)
	require.Len(t, resp.ValidationSummary, 2)
}

func TestGetKPIsUnsupportedLocation(t *testing.T) {
	svc, _ := newTestService(&stubProvider{}, GoalsConfig{})
	_, err := svc.GetKPIs(context.Background(), Location("pasadena"), day("2025-01-06"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedLocation))
}

func TestOverallAvailability(t *testing.T) {
	available, err := NewKPIValue(f(1), true, StatusAvailable, "", nil)
	require.NoError(t, err)

	values := uniformValues(StatusDataNotReady, "x")
	require.Equal(t, StatusDataNotReady, overallAvailability(values))

	values.set(KPINewPatients, unavailableValue(StatusDataQualityIssue, "bad"))
	require.Equal(t, StatusDataQualityIssue, overallAvailability(values))

	values.set(KPIProductionTotal, available)
	require.Equal(t, StatusPartial, overallAvailability(values))

	for _, name := range AllKPIs() {
		values.set(name, available)
	}
	require.Equal(t, StatusAvailable, overallAvailability(values))
}

func TestGetHistorySkipsClosedDays(t *testing.T) {
	eod := eodTable()
	eod.Rows = append(eod.Rows,
		[]any{"2025-01-05", "100", "0", "0", "0", "0", "0", "0"},
		[]any{"2025-01-07", "", "0", "0", "0", "0", "0", "6"},
		[]any{"2025-01-07", "7000", "0", "0", "0", "0", "0", "6"},
		[]any{"2025-02-01", "9000", "0", "0", "0", "0", "0", "1"},
	)
	provider := &stubProvider{tables: map[string]*Table{"baytown_eod": eod}}
	svc, _ := newTestService(provider, GoalsConfig{})

	series, err := svc.GetHistory(context.Background(), LocationBaytown, KPIProductionTotal, day("2025-01-01"), day("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, series.Points, 3)
	require.Equal(t, day("2025-01-03"), series.Points[0].Date)
	require.Equal(t, 4000.0, *series.Points[0].Value)
	require.Equal(t, day("2025-01-06"), series.Points[1].Date)
	require.Equal(t, day("2025-01-07"), series.Points[2].Date)
	require.Equal(t, 7000.0, *series.Points[2].Value)
}

func TestGetHistoryErrors(t *testing.T) {
	provider := &stubProvider{errs: map[string]error{"humble_front": errors.New("boom")}}
	svc, _ := newTestService(provider, GoalsConfig{})
	ctx := context.Background()

	_, err := svc.GetHistory(ctx, LocationHumble, KPICaseAcceptance, day("2025-01-01"), day("2025-01-31"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeDataSource))

	_, err = svc.GetHistory(ctx, LocationHumble, KPICaseAcceptance, day("2025-02-01"), day("2025-01-01"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	_, err = svc.GetHistory(ctx, LocationHumble, KPIName("revenue"), day("2025-01-01"), day("2025-01-31"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	series, err := svc.GetHistory(ctx, LocationHumble, KPINewPatients, day("2025-01-01"), day("2025-01-31"))
	require.NoError(t, err)
	require.Empty(t, series.Points)
}

func TestSourcesSorted(t *testing.T) {
	svc, _ := newTestService(&stubProvider{aliases: []string{"humble_eod", "baytown_eod"}}, GoalsConfig{})
	aliases, err := svc.Sources(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"baytown_eod", "humble_eod"}, aliases)
}

func TestCalendarStatusUnsupportedLocation(t *testing.T) {
	svc, _ := newTestService(&stubProvider{}, GoalsConfig{})
	_, err := svc.CalendarStatus(Location("pasadena"), day("2025-01-06"))
	require.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedLocation))
}
