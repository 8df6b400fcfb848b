package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/practice-kpi/internal/domain/auth"
	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	"github.com/yanqian/practice-kpi/internal/infra/breaker"
	"github.com/yanqian/practice-kpi/internal/infra/config"
	"github.com/yanqian/practice-kpi/internal/infra/goals"
	"github.com/yanqian/practice-kpi/internal/infra/pgsource"
	"github.com/yanqian/practice-kpi/internal/infra/sheets"
	"github.com/yanqian/practice-kpi/internal/infra/tablecache"
	"github.com/yanqian/practice-kpi/internal/infra/workbook"
	"github.com/yanqian/practice-kpi/pkg/logger"
	"github.com/yanqian/practice-kpi/pkg/metrics"
)

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{Secret: cfg.Auth.Secret, Issuer: cfg.Auth.Issuer}
}

func provideServiceConfig(cfg *config.Config) kpi.Config {
	return kpi.Config{Timezone: cfg.Calendar.Timezone}
}

func provideCalendar(cfg *config.Config) (*kpi.BusinessCalendar, error) {
	anchor, err := cfg.Calendar.Anchor()
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.Calendar.BuildOverrides()
	if err != nil {
		return nil, err
	}
	return kpi.NewBusinessCalendar(kpi.CalendarConfig{SaturdayAnchor: anchor, Overrides: overrides}), nil
}

func provideValidationRules(cfg *config.Config, logger *slog.Logger) (*kpi.ValidationRules, error) {
	goalsCfg, err := goals.Load(cfg.Goals.Path, logger)
	if err != nil {
		return nil, err
	}
	return kpi.NewValidationRules(goalsCfg), nil
}

func provideTransformer(cfg *config.Config) *kpi.Transformer {
	return kpi.NewTransformer(kpi.TransformConfig{
		DateColumn: cfg.Transform.DateColumn,
		Columns:    cfg.Transform.Columns,
	})
}

// provideDataProvider builds the configured source and layers the breaker and cache over it.
func provideDataProvider(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (kpi.DataProvider, func(), error) {
	source, closeSource, err := provideSourceProvider(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanups := []func(){closeSource}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	provider := source
	if cfg.Breaker.Enabled {
		provider = breaker.New(provider, breaker.Config{
			Name:                "data-source",
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		}, logger, m.ObserveBreaker)
	}
	if cfg.Cache.Enabled {
		store, closeStore := provideTableStore(cfg, logger)
		cleanups = append(cleanups, closeStore)
		provider = tablecache.New(provider, store, cfg.Cache.TTL, logger)
	}
	return provider, cleanup, nil
}

func provideSourceProvider(cfg *config.Config, logger *slog.Logger) (kpi.DataProvider, func(), error) {
	noop := func() {}
	switch cfg.Data.Provider {
	case config.ProviderSheets:
		sources := make(map[string]sheets.Source, len(cfg.Data.Sheets.Sources))
		for alias, ref := range cfg.Data.Sheets.Sources {
			sources[alias] = sheets.Source{SpreadsheetID: ref.SpreadsheetID, Range: ref.Range}
		}
		provider, err := sheets.New(context.Background(), sheets.Config{
			CredentialsFile: cfg.Data.Sheets.CredentialsFile,
			Endpoint:        cfg.Data.Sheets.Endpoint,
			Timeout:         cfg.Data.Sheets.Timeout,
			Sources:         sources,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("google sheets data provider enabled", "sources", len(sources))
		return provider, noop, nil
	case config.ProviderXLSX:
		logger.Info("xlsx data provider enabled", "sources", len(cfg.Data.XLSX.Sources))
		return workbook.New(workbook.FileOpener{}, workbookSources(cfg.Data.XLSX.Sources), logger), noop, nil
	case config.ProviderObjectStore:
		store := cfg.Data.ObjectStore
		opener, err := workbook.NewObjectOpener(workbook.ObjectStoreConfig{
			Endpoint:  store.Endpoint,
			AccessKey: store.AccessKey,
			SecretKey: store.SecretKey,
			Bucket:    store.Bucket,
			Region:    store.Region,
			UseSSL:    store.UseSSL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("object storage data provider enabled", "bucket", store.Bucket, "sources", len(store.Sources))
		return workbook.New(opener, workbookSources(store.Sources), logger), noop, nil
	case config.ProviderPostgres:
		pool, err := providePostgresPool(cfg.Data.Postgres)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("postgres data provider enabled", "sources", len(cfg.Data.Postgres.Queries))
		return pgsource.New(pool, cfg.Data.Postgres.Queries, logger), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported data provider %q", cfg.Data.Provider)
	}
}

func workbookSources(refs map[string]config.WorkbookRef) map[string]workbook.Source {
	out := make(map[string]workbook.Source, len(refs))
	for alias, ref := range refs {
		out[alias] = workbook.Source{Path: ref.Path, Sheet: ref.Sheet}
	}
	return out
}

func providePostgresPool(cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres pool: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

func provideTableStore(cfg *config.Config, logger *slog.Logger) (tablecache.Store, func()) {
	noop := func() {}
	if !cfg.Cache.Valkey.Enabled {
		return tablecache.NewMemoryStore(), noop
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory store", "error", err)
		return tablecache.NewMemoryStore(), noop
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory store", "error", err)
		return tablecache.NewMemoryStore(), noop
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory store", "error", err)
		client.Close()
		return tablecache.NewMemoryStore(), noop
	}
	logger.Info("valkey table cache enabled", "addr", cfg.Cache.Valkey.Addr)
	return tablecache.NewValkeyStore(client, cfg.Cache.Valkey.Prefix), client.Close
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Cache.Valkey.Addr, "://") {
		opt, err = valkey.ParseURL(cfg.Cache.Valkey.Addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Cache.Valkey.Addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
