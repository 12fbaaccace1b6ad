package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cdpview/multicall"
	"cdpview/observability"
	"cdpview/units"
)

// Poller keeps a Store fresh by re-reading every configured ilk.
type Poller struct {
	runner   multicall.Runner
	store    *Store
	addrs    Addresses
	ilks     []Ilk
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.FeedMetrics
	cache    *Cache
	now      func() time.Time
}

// NewPoller constructs a poller. A zero interval defaults to 30 seconds.
func NewPoller(runner multicall.Runner, store *Store, addrs Addresses, ilks []Ilk, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		runner:   runner,
		store:    store,
		addrs:    addrs,
		ilks:     ilks,
		interval: interval,
		logger:   logger.With("component", "feeds"),
		metrics:  observability.Feeds(),
		now:      time.Now,
	}
}

// WithCache persists every successful refresh to cache.
func (p *Poller) WithCache(cache *Cache) *Poller {
	p.cache = cache
	return p
}

// Calls assembles the descriptors for every configured ilk.
func (p *Poller) Calls() ([]multicall.Call, error) {
	var calls []multicall.Call
	for _, ilk := range p.ilks {
		decimals := ilk.Decimals
		if decimals <= 0 {
			decimals = DefaultDecimals
		}
		model, err := Model(ilk.Key, p.addrs, PriceFeedWithDecimals(decimals))
		if err != nil {
			return nil, err
		}
		if p.logger.Enabled(context.Background(), slog.LevelDebug) {
			id, _ := units.ToHex(ilk.Key)
			p.logger.Debug("feed descriptors", "ilk", ilk.Key, "ilk_id", id, "calls", len(model))
		}
		calls = append(calls, model...)
	}
	return calls, nil
}

// Refresh performs one batched read and applies it to the store. On failure
// the store keeps its previous values.
func (p *Poller) Refresh(ctx context.Context) error {
	calls, err := p.Calls()
	if err != nil {
		p.metrics.ObserveRefresh(p.now(), 0, err)
		return err
	}
	res, err := p.runner.Run(ctx, calls)
	if err != nil {
		err = fmt.Errorf("refresh feeds: %w", err)
		p.metrics.ObserveRefresh(p.now(), 0, err)
		return err
	}
	p.store.Apply(res.Values)
	p.metrics.ObserveRefresh(p.now(), len(p.ilks), nil)
	if p.cache != nil {
		if err := p.cache.Save(p.store); err != nil {
			p.logger.Warn("feed cache write failed", "error", err)
		}
	}
	p.logger.Debug("feeds refreshed", "ilks", len(p.ilks), "block", res.BlockNumber.String())
	return nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("feed refresh failed", "error", err)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("feed refresh failed", "error", err)
			}
		}
	}
}
