package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cdpview/feeds"
	"cdpview/observability"
)

// Loader assembles snapshots from a Manager and the feed store.
type Loader struct {
	manager Manager
	feeds   FeedSource
	metrics *observability.SnapshotMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewLoader constructs a loader.
func NewLoader(manager Manager, source FeedSource) *Loader {
	return &Loader{
		manager: manager,
		feeds:   source,
		metrics: observability.Snapshots(),
		tracer:  otel.Tracer("cdpview/cdp"),
		now:     time.Now,
	}
}

// Load resolves the CDP and issues its eight reads concurrently. The
// snapshot is only returned when every read succeeds.
func (l *Loader) Load(ctx context.Context, id uint64) (*Snapshot, error) {
	if l == nil || l.manager == nil {
		return nil, fmt.Errorf("cdp: loader not initialised")
	}
	ctx, span := l.tracer.Start(ctx, "cdp.Load", trace.WithAttributes(attribute.Int64("cdp.id", int64(id))))
	defer span.End()

	start := time.Now()
	snap, err := l.load(ctx, id)
	l.metrics.ObserveLoad(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return snap, nil
}

func (l *Loader) load(ctx context.Context, id uint64) (*Snapshot, error) {
	position, err := l.manager.GetCDP(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get cdp %d: %w", id, err)
	}
	ilkData := l.ilkData(position.Ilk())

	var (
		debt, collateral, price, liqPrice decimal.Decimal
		available, minColl, freeColl      decimal.Decimal
		ratio                             Ratio
	)
	g, gctx := errgroup.WithContext(ctx)
	read := func(name string, dst *decimal.Decimal, fn func(context.Context) (decimal.Decimal, error)) {
		g.Go(func() error {
			v, err := fn(gctx)
			if err != nil {
				return fmt.Errorf("cdp %d %s: %w", id, name, err)
			}
			*dst = v
			return nil
		})
	}
	read("debt", &debt, position.DebtValue)
	read("collateral", &collateral, position.CollateralAmount)
	read("price", &price, position.Price)
	g.Go(func() error {
		v, err := position.CollateralizationRatio(gctx)
		if err != nil {
			return fmt.Errorf("cdp %d collateralization ratio: %w", id, err)
		}
		ratio = v
		return nil
	})
	read("liquidation price", &liqPrice, position.LiquidationPrice)
	read("dai available", &available, position.DaiAvailable)
	read("min collateral", &minColl, position.MinCollateral)
	read("free collateral", &freeColl, position.CollateralAvailable)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{
		ID:                     position.ID(),
		Ilk:                    position.Ilk(),
		IlkData:                ilkData,
		Debt:                   debt,
		DebtSymbol:             DebtSymbol,
		Collateral:             collateral,
		CollateralSymbol:       ilkData.Gem,
		CollateralPrice:        price,
		CollateralizationRatio: ratio,
		LiquidationPrice:       liqPrice,
		DaiAvailable:           available,
		MinCollateral:          minColl,
		FreeCollateral:         freeColl,
		LoadedAt:               l.now().UTC(),
	}, nil
}

func (l *Loader) ilkData(name string) feeds.IlkData {
	if l.feeds == nil {
		return defaultIlkData(name)
	}
	data, _ := l.feeds.IlkData(name)
	if data.Key == "" {
		return defaultIlkData(name)
	}
	return data
}

func defaultIlkData(name string) feeds.IlkData {
	return feeds.IlkData{Key: name, Gem: feeds.GemOf(feeds.Ilk{Key: name})}
}
