//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/practice-kpi/internal/bootstrap"
	"github.com/yanqian/practice-kpi/internal/domain/auth"
	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	"github.com/yanqian/practice-kpi/internal/infra/config"
	httpiface "github.com/yanqian/practice-kpi/internal/interface/http"
	"github.com/yanqian/practice-kpi/pkg/metrics"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		provideLogger,
		provideRegistry,
		metrics.New,
		provideAuthConfig,
		provideServiceConfig,
		provideCalendar,
		provideValidationRules,
		provideTransformer,
		provideDataProvider,
		auth.NewService,
		kpi.NewService,
		wire.Bind(new(kpi.Recorder), new(*metrics.Metrics)),
		httpiface.NewKPIHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}
