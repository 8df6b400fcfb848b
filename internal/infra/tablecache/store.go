package tablecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
)

// Store persists fetched tables keyed by alias.
type Store interface {
	Get(ctx context.Context, key string) (*kpi.Table, bool, error)
	Set(ctx context.Context, key string, table *kpi.Table, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type tableRecord struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func encodeTable(t *kpi.Table) ([]byte, error) {
	return json.Marshal(tableRecord{Columns: t.Columns, Rows: t.Rows})
}

func decodeTable(payload []byte) (*kpi.Table, error) {
	var rec tableRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	return &kpi.Table{Columns: rec.Columns, Rows: rec.Rows}, nil
}
