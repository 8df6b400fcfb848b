package pgsource

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

// Querier is the subset of *pgxpool.Pool the provider needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Provider serves KPI tables from reporting queries; each alias maps to one SELECT
// whose column names match the form export headers.
type Provider struct {
	db      Querier
	queries map[string]string
	logger  *slog.Logger
}

var _ kpi.DataProvider = (*Provider)(nil)

// New constructs the provider.
func New(db Querier, queries map[string]string, logger *slog.Logger) *Provider {
	copied := make(map[string]string, len(queries))
	for alias, q := range queries {
		copied[alias] = q
	}
	return &Provider{db: db, queries: copied, logger: logger.With("component", "pgsource.provider")}
}

// Fetch runs the alias query. An empty result yields a nil table.
func (p *Provider) Fetch(ctx context.Context, alias string) (*kpi.Table, error) {
	query, ok := p.queries[alias]
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeUnknownAlias, fmt.Sprintf("unknown data source %q", alias), nil)
	}
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("query %s", alias), err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}
	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("scan %s", alias), err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = normalize(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("read %s", alias), err)
	}
	p.logger.Debug("query fetched", "alias", alias, "rows", len(out))
	if len(out) == 0 {
		return nil, nil
	}
	return &kpi.Table{Columns: columns, Rows: out}, nil
}

// ListAvailableAliases returns the configured aliases sorted.
func (p *Provider) ListAvailableAliases(context.Context) ([]string, error) {
	aliases := make([]string, 0, len(p.queries))
	for alias := range p.queries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases, nil
}

// ValidateAlias reports whether alias is configured.
func (p *Provider) ValidateAlias(alias string) bool {
	_, ok := p.queries[alias]
	return ok
}

// normalize maps pgx scan results onto the cell types the transformer understands.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case time.Time:
		return val
	case pgtype.Date:
		if !val.Valid {
			return nil
		}
		return val.Time
	default:
		return val
	}
}
