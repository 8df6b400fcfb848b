package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/practice-kpi/internal/domain/auth"
	"github.com/yanqian/practice-kpi/internal/infra/config"
	"github.com/yanqian/practice-kpi/pkg/metrics"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *KPIHandler, authSvc auth.Service, m *metrics.Metrics) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		requestLogger(handler.logger, m),
		corsMiddleware(cfg.HTTP.CORSOrigins),
		errorHandlingMiddleware(handler.logger),
	)

	router.GET("/healthz", handler.Health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger))
	if cfg.Auth.Enabled {
		api.Use(authMiddleware(authSvc))
	}
	{
		api.GET("/locations", handler.Locations)
		api.GET("/sources", handler.Sources)
		api.GET("/kpis/:location", handler.GetKPIs)
		api.GET("/kpis/:location/history", handler.GetHistory)
		api.GET("/calendar/:location", handler.CalendarStatus)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
