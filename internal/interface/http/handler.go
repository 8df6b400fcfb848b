package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	"github.com/yanqian/practice-kpi/internal/infra/config"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

// KPIHandler wires the HTTP transport to the KPI service.
type KPIHandler struct {
	svc      kpi.Service
	logger   *slog.Logger
	timezone *time.Location
	now      func() time.Time
}

// NewKPIHandler constructs the KPI HTTP handler. Dates default to "today" in the calendar timezone.
func NewKPIHandler(cfg *config.Config, svc kpi.Service, logger *slog.Logger) *KPIHandler {
	tz, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		tz = time.UTC
	}
	return &KPIHandler{
		svc:      svc,
		logger:   logger.With("component", "http.kpi_handler"),
		timezone: tz,
		now:      time.Now,
	}
}

// GetKPIs returns the daily snapshot for a location. Each source reports its row dated on the
// requested day, falling back to its latest-dated row.
func (h *KPIHandler) GetKPIs(c *gin.Context) {
	loc, ok := h.location(c)
	if !ok {
		return
	}
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}

	resp, err := h.svc.GetKPIs(c.Request.Context(), loc, date)
	if err != nil {
		abortWithError(c, fromAppError(err, "kpi_failed"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory returns one KPI over a date range.
func (h *KPIHandler) GetHistory(c *gin.Context) {
	loc, ok := h.location(c)
	if !ok {
		return
	}
	name, err := kpi.ParseKPIName(c.Query("kpi"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	to, ok := h.dateParam(c, "to")
	if !ok {
		return
	}
	from := to.AddDate(0, 0, -30)
	if c.Query("from") != "" {
		if from, ok = h.dateParam(c, "from"); !ok {
			return
		}
	}

	series, err := h.svc.GetHistory(c.Request.Context(), loc, name, from, to)
	if err != nil {
		abortWithError(c, fromAppError(err, "history_failed"))
		return
	}
	c.JSON(http.StatusOK, series)
}

// CalendarStatus reports whether the location is open on a date.
func (h *KPIHandler) CalendarStatus(c *gin.Context) {
	loc, ok := h.location(c)
	if !ok {
		return
	}
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}
	status, err := h.svc.CalendarStatus(loc, date)
	if err != nil {
		abortWithError(c, fromAppError(err, "calendar_failed"))
		return
	}
	c.JSON(http.StatusOK, status)
}

// Sources lists the aliases the configured provider can serve.
func (h *KPIHandler) Sources(c *gin.Context) {
	aliases, err := h.svc.Sources(c.Request.Context())
	if err != nil {
		abortWithError(c, fromAppError(err, "sources_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": aliases})
}

// Locations lists the supported sites.
func (h *KPIHandler) Locations(c *gin.Context) {
	type location struct {
		ID          kpi.Location `json:"id"`
		DisplayName string       `json:"displayName"`
	}
	out := make([]location, 0, len(kpi.Locations()))
	for _, loc := range kpi.Locations() {
		if claims, ok := getClaims(c); ok && !claims.AllowsLocation(string(loc)) {
			continue
		}
		out = append(out, location{ID: loc, DisplayName: loc.DisplayName()})
	}
	c.JSON(http.StatusOK, gin.H{"locations": out})
}

// Health is the liveness probe.
func (h *KPIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *KPIHandler) location(c *gin.Context) (kpi.Location, bool) {
	loc, err := kpi.ParseLocation(c.Param("location"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusNotFound, apperrors.CodeUnsupportedLocation, errMessage(err), err))
		return "", false
	}
	if claims, ok := getClaims(c); ok && !claims.AllowsLocation(string(loc)) {
		abortWithError(c, NewHTTPError(http.StatusForbidden, "forbidden_location", "token is not scoped to this location", nil))
		return "", false
	}
	return loc, true
}

func (h *KPIHandler) dateParam(c *gin.Context, key string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return kpi.DateOf(h.now().In(h.timezone)), true
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", key+" must be formatted as YYYY-MM-DD", err))
		return time.Time{}, false
	}
	return date, true
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
