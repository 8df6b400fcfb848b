package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

// Source locates the range backing one alias.
type Source struct {
	SpreadsheetID string
	Range         string
}

// Config controls the Sheets provider.
type Config struct {
	CredentialsFile string
	Endpoint        string
	Timeout         time.Duration
	Sources         map[string]Source
}

// Provider reads KPI tables from Google Sheets value ranges.
type Provider struct {
	svc     *sheetsapi.Service
	sources map[string]Source
	timeout time.Duration
	logger  *slog.Logger
}

var _ kpi.DataProvider = (*Provider)(nil)

// New builds the Sheets client. Extra options are appended last so callers can
// point the client at a test server.
func New(ctx context.Context, cfg Config, logger *slog.Logger, extra ...option.ClientOption) (*Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "read sheets credentials", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsReadonlyScope)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "parse sheets credentials", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, "create sheets service", err)
	}
	sources := make(map[string]Source, len(cfg.Sources))
	for alias, src := range cfg.Sources {
		sources[alias] = src
	}
	return &Provider{
		svc:     svc,
		sources: sources,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "sheets.provider"),
	}, nil
}

// Fetch reads the alias range; the first row is the header. A header-only range yields nil.
func (p *Provider) Fetch(ctx context.Context, alias string) (*kpi.Table, error) {
	src, ok := p.sources[alias]
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeUnknownAlias, fmt.Sprintf("unknown data source %q", alias), nil)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	resp, err := p.svc.Spreadsheets.Values.Get(src.SpreadsheetID, src.Range).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("read sheet range for %s", alias), err)
	}
	table := toTable(resp.Values)
	p.logger.Debug("sheet range fetched", "alias", alias, "rows", rowCount(table))
	return table, nil
}

// ListAvailableAliases returns the configured aliases sorted.
func (p *Provider) ListAvailableAliases(context.Context) ([]string, error) {
	aliases := make([]string, 0, len(p.sources))
	for alias := range p.sources {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases, nil
}

// ValidateAlias reports whether alias is configured.
func (p *Provider) ValidateAlias(alias string) bool {
	_, ok := p.sources[alias]
	return ok
}

func toTable(values [][]any) *kpi.Table {
	if len(values) < 2 {
		return nil
	}
	header := make([]string, len(values[0]))
	for i, cell := range values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(cell))
	}
	rows := make([][]any, 0, len(values)-1)
	for _, row := range values[1:] {
		if blankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return &kpi.Table{Columns: header, Rows: rows}
}

func blankRow(row []any) bool {
	for _, cell := range row {
		if cell == nil {
			continue
		}
		if s, ok := cell.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return false
	}
	return true
}

func rowCount(t *kpi.Table) int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
