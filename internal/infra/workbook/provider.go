package workbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

// Source locates the worksheet backing one alias. An empty Sheet selects the first sheet.
type Source struct {
	Path  string
	Sheet string
}

// Provider serves KPI tables from xlsx workbooks.
type Provider struct {
	opener  Opener
	sources map[string]Source
	logger  *slog.Logger
}

var _ kpi.DataProvider = (*Provider)(nil)

// New builds a workbook provider over opener.
func New(opener Opener, sources map[string]Source, logger *slog.Logger) *Provider {
	copied := make(map[string]Source, len(sources))
	for alias, src := range sources {
		copied[alias] = src
	}
	return &Provider{
		opener:  opener,
		sources: copied,
		logger:  logger.With("component", "workbook.provider", "store", opener.Describe()),
	}
}

// Fetch reads the alias worksheet. A workbook that does not exist yet yields a nil table.
func (p *Provider) Fetch(ctx context.Context, alias string) (*kpi.Table, error) {
	src, ok := p.sources[alias]
	if !ok {
		return nil, apperrors.Wrap(apperrors.CodeUnknownAlias, fmt.Sprintf("unknown data source %q", alias), nil)
	}
	rc, err := p.opener.Open(ctx, src.Path)
	if errors.Is(err, ErrNotFound) {
		p.logger.Info("workbook not published yet", "alias", alias, "path", src.Path)
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("open workbook for %s", alias), err)
	}
	defer rc.Close()

	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("parse workbook for %s", alias), err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			p.logger.Warn("close workbook", "alias", alias, "error", cerr)
		}
	}()

	sheet := src.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDataSource, fmt.Sprintf("read sheet %q for %s", sheet, alias), err)
	}
	return toTable(newDateReader(f, sheet, p.logger).normalize(rows)), nil
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

// dateReader turns date-formatted serial cells into time.Time. Raw values are read
// so dates do not depend on the workbook's display format.
type dateReader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
	logger   *slog.Logger
}

func newDateReader(f *excelize.File, sheet string, logger *slog.Logger) *dateReader {
	r := &dateReader{f: f, sheet: sheet, styles: make(map[int]bool), logger: logger}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		r.date1904 = *props.Date1904
	}
	return r
}

func (r *dateReader) normalize(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, raw := range row {
			cells[j] = raw
			if i == 0 {
				continue
			}
			if ts, ok := r.dateAt(j+1, i+1, raw); ok {
				cells[j] = ts
			}
		}
		out[i] = cells
	}
	return out
}

func (r *dateReader) dateAt(col, row int, raw string) (time.Time, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || serial <= 0 {
		return time.Time{}, false
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return time.Time{}, false
	}
	id, err := r.f.GetCellStyle(r.sheet, axis)
	if err != nil || !r.isDateStyle(id) {
		return time.Time{}, false
	}
	ts, err := excelize.ExcelDateToTime(serial, r.date1904)
	if err != nil {
		r.logger.Debug("date serial out of range", "cell", axis, "value", raw)
		return time.Time{}, false
	}
	return ts, true
}

func (r *dateReader) isDateStyle(id int) bool {
	if known, ok := r.styles[id]; ok {
		return known
	}
	isDate := false
	if style, err := r.f.GetStyle(id); err == nil && style != nil {
		isDate = isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	}
	r.styles[id] = isDate
	return isDate
}

// isDateNumFmt recognises the builtin date formats and custom codes carrying a day or year token.
func isDateNumFmt(id int, custom *string) bool {
	if (id >= 14 && id <= 22) || (id >= 45 && id <= 47) {
		return true
	}
	if custom == nil {
		return false
	}
	var b strings.Builder
	quoted, bracket := false, false
	for _, ch := range strings.ToLower(*custom) {
		switch {
		case ch == '"':
			quoted = !quoted
		case quoted:
		case ch == '[':
			bracket = true
		case ch == ']':
			bracket = false
		case bracket:
		default:
			b.WriteRune(ch)
		}
	}
	return strings.ContainsAny(b.String(), "yd")
}

func toTable(rows [][]any) *kpi.Table {
	if len(rows) < 2 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(cell))
	}
	out := make([][]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]any, len(row))
		blank := true
		for i, cell := range row {
			cells[i] = cell
			if s, ok := cell.(string); !ok || strings.TrimSpace(s) != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, cells)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return &kpi.Table{Columns: header, Rows: out}
}
