package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
	apperrors "github.com/yanqian/practice-kpi/pkg/errors"
)

// Config tunes the breaker. Zero values fall back to gobreaker defaults.
type Config struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// StateFunc observes breaker transitions.
type StateFunc func(name string, from, to gobreaker.State)

// Provider trips after repeated fetch failures so a struggling backend is not
// hammered on every dashboard refresh.
type Provider struct {
	next   kpi.DataProvider
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

var _ kpi.DataProvider = (*Provider)(nil)

// New wraps next with a circuit breaker.
func New(next kpi.DataProvider, cfg Config, logger *slog.Logger, onChange StateFunc) *Provider {
	log := logger.With("component", "breaker.provider", "breaker", cfg.Name)
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 3
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.IsCode(err, apperrors.CodeUnknownAlias) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	}
	return &Provider{next: next, cb: gobreaker.NewCircuitBreaker(settings), logger: log}
}

// Fetch runs through the breaker; an open circuit fails fast with a data source error.
func (p *Provider) Fetch(ctx context.Context, alias string) (*kpi.Table, error) {
	v, err := p.cb.Execute(func() (any, error) {
		return p.next.Fetch(ctx, alias)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperrors.Wrap(apperrors.CodeDataSource, "data source temporarily unavailable", err)
		}
		return nil, err
	}
	table, _ := v.(*kpi.Table)
	return table, nil
}

// State reports the current breaker state.
func (p *Provider) State() gobreaker.State {
	return p.cb.State()
}

func (p *Provider) ListAvailableAliases(ctx context.Context) ([]string, error) {
	return p.next.ListAvailableAliases(ctx)
}

func (p *Provider) ValidateAlias(alias string) bool {
	return p.next.ValidateAlias(alias)
}
