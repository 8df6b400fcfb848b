package tablecache

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
)

// ValkeyStore shares cached tables between replicas through a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore constructs a new store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "practice-kpi:table:"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (s *ValkeyStore) Get(ctx context.Context, key string) (*kpi.Table, bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.entryKey(key)).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	table, err := decodeTable(payload)
	if err != nil {
		return nil, false, err
	}
	return table, true, nil
}

func (s *ValkeyStore) Set(ctx context.Context, key string, table *kpi.Table, ttl time.Duration) error {
	payload, err := encodeTable(table)
	if err != nil {
		return err
	}
	builder := s.client.B().Set().Key(s.entryKey(key)).Value(valkey.BinaryString(payload))
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.entryKey(key)).Build()).Error()
}

func (s *ValkeyStore) entryKey(key string) string {
	return s.prefix + key
}

var _ Store = (*ValkeyStore)(nil)
