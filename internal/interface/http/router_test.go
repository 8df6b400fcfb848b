package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/practice-kpi/internal/domain/auth"
	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	"github.com/yanqian/practice-kpi/internal/infra/config"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
	"github.com/yanqian/practice-kpi/pkg/metrics"
)

func TestRouter_GetKPIsSuccess(t *testing.T) {
	value := 4200.0
	svc := &stubKPIService{
		getKPIsFn: func(ctx context.Context, loc kpi.Location, date time.Time) (kpi.KPIResponse, error) {
			require.Equal(t, kpi.LocationBaytown, loc)
			require.Equal(t, "2025-01-06", date.Format(time.DateOnly))
			return kpi.KPIResponse{
				Location:     loc,
				BusinessDate: date,
				Availability: kpi.StatusAvailable,
				Values: kpi.KPIValues{
					ProductionTotal: kpi.KPIValue{Value: &value, Available: true, Status: kpi.StatusAvailable},
				},
			}, nil
		},
	}

	rec := performRequest(newRouterUnderTest(t, svc, testConfig()), "/api/v1/kpis/Baytown?date=2025-01-06", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var got kpi.KPIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, kpi.StatusAvailable, got.Availability)
	require.NotNil(t, got.Values.ProductionTotal.Value)
	require.InDelta(t, 4200.0, *got.Values.ProductionTotal.Value, 1e-9)
}

func TestRouter_GetKPIsDefaultsToToday(t *testing.T) {
	var seen time.Time
	svc := &stubKPIService{
		getKPIsFn: func(ctx context.Context, loc kpi.Location, date time.Time) (kpi.KPIResponse, error) {
			seen = date
			return kpi.KPIResponse{Location: loc, BusinessDate: date, Availability: kpi.StatusDataNotReady}, nil
		},
	}
	cfg := testConfig()
	cfg.Calendar.Timezone = "America/Chicago"
	handler := NewKPIHandler(cfg, svc, newTestLogger())
	// 03:00 UTC on the 7th is still the 6th in Chicago.
	handler.now = func() time.Time { return time.Date(2025, 1, 7, 3, 0, 0, 0, time.UTC) }
	server := NewRouter(cfg, handler, nil, nil)

	rec := performRequest(server, "/api/v1/kpis/humble", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2025-01-06", seen.Format(time.DateOnly))
}

func TestRouter_GetKPIsRejectsBadInput(t *testing.T) {
	server := newRouterUnderTest(t, &stubKPIService{}, testConfig())

	rec := performRequest(server, "/api/v1/kpis/pasadena", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, apperrors.CodeUnsupportedLocation, decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	rec = performRequest(server, "/api/v1/kpis/baytown?date=01/06/2025", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, "invalid_request", body["error"]["code"])
	require.Contains(t, body["error"]["message"], "YYYY-MM-DD")
	require.NotEmpty(t, body["error"]["requestId"])
}

func TestRouter_GetHistory(t *testing.T) {
	svc := &stubKPIService{
		historyFn: func(ctx context.Context, loc kpi.Location, name kpi.KPIName, from, to time.Time) (kpi.HistorySeries, error) {
			require.Equal(t, kpi.KPICollectionRate, name)
			require.Equal(t, "2025-01-01", from.Format(time.DateOnly))
			require.Equal(t, "2025-01-10", to.Format(time.DateOnly))
			return kpi.HistorySeries{Location: loc, KPI: name, From: from, To: to, Points: []kpi.HistoryPoint{}}, nil
		},
	}
	server := newRouterUnderTest(t, svc, testConfig())

	rec := performRequest(server, "/api/v1/kpis/baytown/history?kpi=collection_rate&from=2025-01-01&to=2025-01-10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(server, "/api/v1/kpis/baytown/history?kpi=revenue", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HistoryInvalidRange(t *testing.T) {
	svc := &stubKPIService{
		historyFn: func(ctx context.Context, loc kpi.Location, name kpi.KPIName, from, to time.Time) (kpi.HistorySeries, error) {
			return kpi.HistorySeries{}, apperrors.Wrap(apperrors.CodeInvalidInput, "history range end precedes start", nil)
		},
	}
	rec := performRequest(newRouterUnderTest(t, svc, testConfig()), "/api/v1/kpis/humble/history?kpi=new_patients&from=2025-02-01&to=2025-01-01", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, apperrors.CodeInvalidInput, body["error"]["code"])
	require.Equal(t, "history range end precedes start", body["error"]["message"])
}

func TestRouter_SourcesUpstreamFailure(t *testing.T) {
	svc := &stubKPIService{
		sourcesFn: func(ctx context.Context) ([]string, error) {
			return nil, apperrors.Wrap(apperrors.CodeDataSource, "failed to list data sources", io.ErrUnexpectedEOF)
		},
	}
	rec := performRequest(newRouterUnderTest(t, svc, testConfig()), "/api/v1/sources", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, apperrors.CodeDataSource, decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
}

func TestRouter_CalendarStatus(t *testing.T) {
	svc := &stubKPIService{
		calendarFn: func(loc kpi.Location, date time.Time) (kpi.CalendarStatus, error) {
			return kpi.CalendarStatus{Location: loc, Date: date, Open: false, ClosureReason: "Sunday"}, nil
		},
	}
	rec := performRequest(newRouterUnderTest(t, svc, testConfig()), "/api/v1/calendar/baytown?date=2025-01-05", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got kpi.CalendarStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.False(t, got.Open)
	require.Equal(t, "Sunday", got.ClosureReason)
}

func TestRouter_AuthScopesLocations(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, Secret: "router-secret"}
	authSvc := auth.NewService(auth.Config{Secret: cfg.Auth.Secret}, newTestLogger())
	svc := &stubKPIService{}
	server := NewRouter(cfg, NewKPIHandler(cfg, svc, newTestLogger()), authSvc, nil)

	rec := performRequest(server, "/api/v1/kpis/baytown?date=2025-01-06", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = performRequest(server, "/api/v1/kpis/baytown?date=2025-01-06", "garbage")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, apperrors.CodeInvalidToken, decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	token := signedToken(t, cfg.Auth.Secret, "humble-manager", []string{"humble"})

	rec = performRequest(server, "/api/v1/kpis/baytown?date=2025-01-06", token)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden_location", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	rec = performRequest(server, "/api/v1/kpis/humble?date=2025-01-06", token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(server, "/api/v1/locations", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var locations struct {
		Locations []struct {
			ID string `json:"id"`
		} `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locations))
	require.Len(t, locations.Locations, 1)
	require.Equal(t, "humble", locations.Locations[0].ID)

	rec = performRequest(server, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	server := newRouterUnderTest(t, &stubKPIService{}, cfg)

	require.Equal(t, http.StatusOK, performRequest(server, "/api/v1/sources", "").Code)
	rec := performRequest(server, "/api/v1/sources", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	cfg := testConfig()
	m := metrics.New(prometheus.NewRegistry())
	server := NewRouter(cfg, NewKPIHandler(cfg, &stubKPIService{}, newTestLogger()), nil, m)

	require.Equal(t, http.StatusOK, performRequest(server, "/healthz", "").Code)
	rec := performRequest(server, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestRouter_PropagatesRequestID(t *testing.T) {
	server := newRouterUnderTest(t, &stubKPIService{}, testConfig())
	id := "7f1f6d4e-8a43-4a39-9d0a-1f0b8f9c2b11"

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, id)
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func signedToken(t *testing.T, secret, subject string, locations []string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       subject,
		"exp":       time.Now().Add(time.Hour).Unix(),
		"locations": locations,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func performRequest(server *http.Server, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Calendar: config.CalendarConfig{Timezone: "UTC"},
	}
}

func newRouterUnderTest(t *testing.T, svc kpi.Service, cfg *config.Config) *http.Server {
	t.Helper()
	return NewRouter(cfg, NewKPIHandler(cfg, svc, newTestLogger()), nil, nil)
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubKPIService struct {
	getKPIsFn  func(ctx context.Context, loc kpi.Location, date time.Time) (kpi.KPIResponse, error)
	historyFn  func(ctx context.Context, loc kpi.Location, name kpi.KPIName, from, to time.Time) (kpi.HistorySeries, error)
	calendarFn func(loc kpi.Location, date time.Time) (kpi.CalendarStatus, error)
	sourcesFn  func(ctx context.Context) ([]string, error)
}

func (s *stubKPIService) GetKPIs(ctx context.Context, loc kpi.Location, date time.Time) (kpi.KPIResponse, error) {
	if s.getKPIsFn != nil {
		return s.getKPIsFn(ctx, loc, date)
	}
	return kpi.KPIResponse{Location: loc, BusinessDate: date, Availability: kpi.StatusAvailable}, nil
}

func (s *stubKPIService) GetHistory(ctx context.Context, loc kpi.Location, name kpi.KPIName, from, to time.Time) (kpi.HistorySeries, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, loc, name, from, to)
	}
	return kpi.HistorySeries{Location: loc, KPI: name, From: from, To: to}, nil
}

func (s *stubKPIService) CalendarStatus(loc kpi.Location, date time.Time) (kpi.CalendarStatus, error) {
	if s.calendarFn != nil {
		return s.calendarFn(loc, date)
	}
	return kpi.CalendarStatus{Location: loc, Date: date, Open: true}, nil
}

func (s *stubKPIService) Sources(ctx context.Context) ([]string, error) {
	if s.sourcesFn != nil {
		return s.sourcesFn(ctx)
	}
	return []string{"baytown_eod"}, nil
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
