package tablecache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
)

// DefaultFetchTimeout bounds a shared fetch once it is detached from the caller.
const DefaultFetchTimeout = 30 * time.Second

// Provider caches tables fetched from the wrapped provider. Nil tables and errors are
// never cached so a source that fills in later is picked up on the next call.
type Provider struct {
	next         kpi.DataProvider
	store        Store
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	logger       *slog.Logger
}

var _ kpi.DataProvider = (*Provider)(nil)

// New wraps next with a read-through cache.
func New(next kpi.DataProvider, store Store, ttl time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		next:         next,
		store:        store,
		ttl:          ttl,
		fetchTimeout: DefaultFetchTimeout,
		logger:       logger.With("component", "tablecache.provider"),
	}
}

// Fetch serves from the store when possible; concurrent misses for one alias share a fetch.
// The shared fetch outlives any single caller's cancellation so waiters are not failed by it.
func (p *Provider) Fetch(ctx context.Context, alias string) (*kpi.Table, error) {
	if table, ok, err := p.store.Get(ctx, alias); err != nil {
		p.logger.Warn("cache read failed", "alias", alias, "error", err)
	} else if ok {
		return table, nil
	}

	v, err, shared := p.group.Do(alias, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()
		table, err := p.next.Fetch(fetchCtx, alias)
		if err != nil || table.Empty() {
			return table, err
		}
		if err := p.store.Set(fetchCtx, alias, table, p.ttl); err != nil {
			p.logger.Warn("cache write failed", "alias", alias, "error", err)
		}
		return table, nil
	})
	if shared {
		p.logger.Debug("fetch shared", "alias", alias)
	}
	if err != nil {
		return nil, err
	}
	table, _ := v.(*kpi.Table)
	return table, nil
}

// Invalidate drops the cached table for alias.
func (p *Provider) Invalidate(ctx context.Context, alias string) error {
	return p.store.Delete(ctx, alias)
}

func (p *Provider) ListAvailableAliases(ctx context.Context) ([]string, error) {
	return p.next.ListAvailableAliases(ctx)
}

func (p *Provider) ValidateAlias(alias string) bool {
	return p.next.ValidateAlias(alias)
}
