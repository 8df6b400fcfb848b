package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
)

// Provider kinds accepted by data.provider.
const (
	ProviderSheets      = "sheets"
	ProviderXLSX        = "xlsx"
	ProviderObjectStore = "objectStore"
	ProviderPostgres    = "postgres"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Goals     GoalsConfig     `yaml:"goals"`
	Data      DataConfig      `yaml:"data"`
	Cache     CacheConfig     `yaml:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Transform TransformConfig `yaml:"transform"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	CORSOrigins  []string        `yaml:"corsOrigins"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig enables bearer-token protection of the API.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
}

// CalendarConfig configures the business calendar.
type CalendarConfig struct {
	SaturdayAnchor string                      `yaml:"saturdayAnchor"`
	Timezone       string                      `yaml:"timezone"`
	Overrides      map[string]CalendarOverride `yaml:"overrides"`
}

// CalendarOverride pins dates (YYYY-MM-DD) open or closed for one location.
type CalendarOverride struct {
	Open   []string          `yaml:"open"`
	Closed map[string]string `yaml:"closed"`
}

// GoalsConfig points at the goals document.
type GoalsConfig struct {
	Path string `yaml:"path"`
}

// DataConfig selects and configures the tabular data provider.
type DataConfig struct {
	Provider    string            `yaml:"provider"`
	Sheets      SheetsConfig      `yaml:"sheets"`
	XLSX        XLSXConfig        `yaml:"xlsx"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore"`
	Postgres    PostgresConfig    `yaml:"postgres"`
}

// SheetsConfig maps aliases to Google Sheets ranges.
type SheetsConfig struct {
	CredentialsFile string              `yaml:"credentialsFile"`
	Endpoint        string              `yaml:"endpoint"`
	Timeout         time.Duration       `yaml:"timeout"`
	Sources         map[string]SheetRef `yaml:"sources"`
}

// SheetRef locates one sheet range.
type SheetRef struct {
	SpreadsheetID string `yaml:"spreadsheetId"`
	Range         string `yaml:"range"`
}

// XLSXConfig maps aliases to local workbooks.
type XLSXConfig struct {
	Sources map[string]WorkbookRef `yaml:"sources"`
}

// WorkbookRef locates one worksheet; Path is a file path or an object key.
type WorkbookRef struct {
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet"`
}

// ObjectStoreConfig holds S3-compatible storage settings.
type ObjectStoreConfig struct {
	Endpoint  string                 `yaml:"endpoint"`
	AccessKey string                 `yaml:"accessKey"`
	SecretKey string                 `yaml:"secretKey"`
	Region    string                 `yaml:"region"`
	UseSSL    bool                   `yaml:"useSSL"`
	Bucket    string                 `yaml:"bucket"`
	Sources   map[string]WorkbookRef `yaml:"sources"`
}

// PostgresConfig contains DSN, pooling settings and the per-alias queries.
type PostgresConfig struct {
	DSN      string            `yaml:"dsn"`
	MaxConns int32             `yaml:"maxConns"`
	MinConns int32             `yaml:"minConns"`
	Queries  map[string]string `yaml:"queries"`
}

// CacheConfig controls the fetched-table cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Valkey  ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig contains connection information for shared cache storage.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// BreakerConfig tunes the circuit breaker around the data provider.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	MaxRequests         uint32        `yaml:"maxRequests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutiveFailures"`
}

// TransformConfig names the spreadsheet columns.
type TransformConfig struct {
	DateColumn string        `yaml:"dateColumn"`
	Columns    kpi.ColumnMap `yaml:"columns"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v)
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("CALENDAR_SATURDAY_ANCHOR"); v != "" {
		cfg.Calendar.SaturdayAnchor = v
	}
	if v := os.Getenv("CALENDAR_TIMEZONE"); v != "" {
		cfg.Calendar.Timezone = v
	}
	if v := os.Getenv("GOALS_PATH"); v != "" {
		cfg.Goals.Path = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.Data.Provider = v
	}
	if v := os.Getenv("SHEETS_CREDENTIALS_FILE"); v != "" {
		cfg.Data.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("OBJECT_STORE_ENDPOINT"); v != "" {
		cfg.Data.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("OBJECT_STORE_ACCESS_KEY"); v != "" {
		cfg.Data.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("OBJECT_STORE_SECRET_KEY"); v != "" {
		cfg.Data.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("OBJECT_STORE_REGION"); v != "" {
		cfg.Data.ObjectStore.Region = v
	}
	if v := os.Getenv("OBJECT_STORE_BUCKET"); v != "" {
		cfg.Data.ObjectStore.Bucket = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Data.Postgres.DSN = v
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = parsed
		}
	}
	if v := os.Getenv("VALKEY_ENABLED"); v != "" {
		cfg.Cache.Valkey.Enabled = parseBool(v)
	}
	if v := os.Getenv("VALKEY_ADDR"); v != "" {
		cfg.Cache.Valkey.Addr = v
	}
	if v := os.Getenv("BREAKER_ENABLED"); v != "" {
		cfg.Breaker.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             30,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Calendar: CalendarConfig{
			SaturdayAnchor: "2025-01-04",
			Timezone:       "America/Chicago",
		},
		Goals: GoalsConfig{
			Path: "configs/goals.yaml",
		},
		Data: DataConfig{
			Provider: ProviderSheets,
			Sheets: SheetsConfig{
				Timeout: 10 * time.Second,
			},
			Postgres: PostgresConfig{
				MaxConns: 4,
				MinConns: 0,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
			Valkey: ValkeyConfig{
				Prefix: "practice-kpi:table:",
			},
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 3,
		},
		Transform: TransformConfig{
			DateColumn: kpi.DefaultDateColumn,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return errors.New("auth.secret is required when auth is enabled")
	}
	anchor, err := c.Calendar.Anchor()
	if err != nil {
		return err
	}
	if anchor.Weekday() != time.Saturday {
		return fmt.Errorf("calendar.saturdayAnchor %s is not a Saturday", c.Calendar.SaturdayAnchor)
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	if _, err := c.Calendar.BuildOverrides(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive when the cache is enabled")
	}
	if c.Cache.Valkey.Enabled && c.Cache.Valkey.Addr == "" {
		return errors.New("cache.valkey.addr is required when valkey is enabled")
	}
	if c.Breaker.Enabled && c.Breaker.ConsecutiveFailures == 0 {
		return errors.New("breaker.consecutiveFailures must be positive")
	}
	return nil
}

func (d DataConfig) validate() error {
	switch d.Provider {
	case ProviderSheets:
		for alias, ref := range d.Sheets.Sources {
			if ref.SpreadsheetID == "" || ref.Range == "" {
				return fmt.Errorf("data.sheets.sources.%s needs spreadsheetId and range", alias)
			}
		}
	case ProviderXLSX:
		for alias, ref := range d.XLSX.Sources {
			if ref.Path == "" {
				return fmt.Errorf("data.xlsx.sources.%s needs a path", alias)
			}
		}
	case ProviderObjectStore:
		if d.ObjectStore.Endpoint == "" || d.ObjectStore.Bucket == "" {
			return errors.New("data.objectStore needs endpoint and bucket")
		}
		for alias, ref := range d.ObjectStore.Sources {
			if ref.Path == "" {
				return fmt.Errorf("data.objectStore.sources.%s needs a path", alias)
			}
		}
	case ProviderPostgres:
		if d.Postgres.DSN == "" {
			return errors.New("data.postgres.dsn cannot be empty")
		}
		for alias, query := range d.Postgres.Queries {
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("data.postgres.queries.%s cannot be empty", alias)
			}
		}
	default:
		return fmt.Errorf("data.provider %q is not supported", d.Provider)
	}
	return nil
}

// Anchor parses the Saturday anchor date.
func (c CalendarConfig) Anchor() (time.Time, error) {
	anchor, err := time.Parse(time.DateOnly, strings.TrimSpace(c.SaturdayAnchor))
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar.saturdayAnchor: %w", err)
	}
	return anchor, nil
}

// BuildOverrides converts the YAML override lists into calendar overrides.
func (c CalendarConfig) BuildOverrides() (map[kpi.Location]kpi.CalendarOverrides, error) {
	out := make(map[kpi.Location]kpi.CalendarOverrides, len(c.Overrides))
	for raw, o := range c.Overrides {
		loc, err := kpi.ParseLocation(raw)
		if err != nil {
			return nil, fmt.Errorf("calendar.overrides: %w", err)
		}
		entry := kpi.CalendarOverrides{
			Open:   make(map[time.Time]struct{}, len(o.Open)),
			Closed: make(map[time.Time]string, len(o.Closed)),
		}
		for _, d := range o.Open {
			parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(d))
			if err != nil {
				return nil, fmt.Errorf("calendar.overrides.%s.open: %w", raw, err)
			}
			entry.Open[parsed] = struct{}{}
		}
		for d, reason := range o.Closed {
			parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(d))
			if err != nil {
				return nil, fmt.Errorf("calendar.overrides.%s.closed: %w", raw, err)
			}
			entry.Closed[parsed] = reason
		}
		out[loc] = entry
	}
	return out, nil
}
