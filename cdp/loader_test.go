package cdp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cdpview/feeds"
)

type fakeCDP struct {
	id      uint64
	ilk     string
	failing string
	calls   sync.Map
}

func (f *fakeCDP) read(ctx context.Context, name, value string) (decimal.Decimal, error) {
	f.calls.Store(name, true)
	if f.failing == name {
		return decimal.Zero, errors.New(name + " unavailable")
	}
	return decimal.RequireFromString(value), nil
}

func (f *fakeCDP) ID() uint64  { return f.id }
func (f *fakeCDP) Ilk() string { return f.ilk }
func (f *fakeCDP) DebtValue(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "debt", "100")
}
func (f *fakeCDP) CollateralAmount(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "collateral", "2")
}
func (f *fakeCDP) Price(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "price", "150")
}
func (f *fakeCDP) CollateralizationRatio(ctx context.Context) (Ratio, error) {
	v, err := f.read(ctx, "ratio", "3")
	return NewRatio(v), err
}
func (f *fakeCDP) LiquidationPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "liquidation", "75")
}
func (f *fakeCDP) DaiAvailable(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "available", "100")
}
func (f *fakeCDP) MinCollateral(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "min", "1")
}
func (f *fakeCDP) CollateralAvailable(ctx context.Context) (decimal.Decimal, error) {
	return f.read(ctx, "free", "1")
}

type fakeManager struct {
	cdp *fakeCDP
	err error
}

func (m fakeManager) GetCDP(context.Context, uint64) (CDP, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cdp, nil
}

func TestLoaderJoinsAllReads(t *testing.T) {
	position := &fakeCDP{id: 3, ilk: "BAT-A"}
	store := feeds.NewStore(feeds.Ilk{Key: "BAT-A", Gem: "BAT"})
	store.Apply(map[string]any{"BAT-A.rate": decimal.RequireFromString("0.05")})

	snap, err := NewLoader(fakeManager{cdp: position}, store).Load(context.Background(), 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, name := range []string{"debt", "collateral", "price", "ratio", "liquidation", "available", "min", "free"} {
		if _, ok := position.calls.Load(name); !ok {
			t.Fatalf("expected %s to be read", name)
		}
	}
	if snap.CollateralSymbol != "BAT" || snap.IlkData.Rate.String() != "0.05" {
		t.Fatalf("unexpected ilk data %+v", snap.IlkData)
	}
	if !snap.Debt.Equal(decimal.NewFromInt(100)) || !snap.CollateralizationRatio.Value.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLoaderFailsWithoutPartialSnapshot(t *testing.T) {
	position := &fakeCDP{id: 3, ilk: "BAT-A", failing: "min"}
	snap, err := NewLoader(fakeManager{cdp: position}, nil).Load(context.Background(), 3)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if snap != nil {
		t.Fatalf("expected no snapshot, got %+v", snap)
	}
}

func TestLoaderPropagatesManagerError(t *testing.T) {
	_, err := NewLoader(fakeManager{err: ErrNotFound}, nil).Load(context.Background(), 3)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoaderDefaultsGemWithoutFeeds(t *testing.T) {
	snap, err := NewLoader(fakeManager{cdp: &fakeCDP{id: 1, ilk: "WBTC-A"}}, nil).Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.CollateralSymbol != "WBTC" {
		t.Fatalf("expected WBTC, got %q", snap.CollateralSymbol)
	}
}

// gatedLoader blocks each load until its id's gate is released.
type gatedLoader struct {
	mu    sync.Mutex
	gates map[uint64]chan error
}

func newGatedLoader(ids ...uint64) *gatedLoader {
	g := &gatedLoader{gates: make(map[uint64]chan error)}
	for _, id := range ids {
		g.gates[id] = make(chan error, 1)
	}
	return g
}

func (g *gatedLoader) release(id uint64, err error) {
	g.mu.Lock()
	gate := g.gates[id]
	g.mu.Unlock()
	gate <- err
}

func (g *gatedLoader) Load(ctx context.Context, id uint64) (*Snapshot, error) {
	g.mu.Lock()
	gate := g.gates[id]
	g.mu.Unlock()
	select {
	case err := <-gate:
		if err != nil {
			return nil, err
		}
		return &Snapshot{ID: id, LoadedAt: time.Now()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSessionDiscardsSupersededResult(t *testing.T) {
	loader := newGatedLoader(1, 2)
	session := NewSession(context.Background(), loader, nil)

	session.Select(1)
	session.Select(2)
	if _, loading := session.Current(); !loading {
		t.Fatalf("expected loading state before any result")
	}

	loader.release(2, nil)
	loader.release(1, nil)
	session.Wait()

	snap, loading := session.Current()
	if loading || snap == nil {
		t.Fatalf("expected a snapshot")
	}
	if snap.ID != 2 {
		t.Fatalf("expected latest selection to win, got cdp %d", snap.ID)
	}
	if id, ok := session.Selected(); !ok || id != 2 {
		t.Fatalf("unexpected selection %d", id)
	}
}

func TestSessionKeepsSnapshotOnFailedRefresh(t *testing.T) {
	loader := newGatedLoader(5)
	session := NewSession(context.Background(), loader, nil)

	session.Select(5)
	loader.release(5, nil)
	session.Wait()

	boom := errors.New("node unavailable")
	session.Select(5)
	if snap, _ := session.Current(); snap == nil {
		t.Fatalf("refreshing the same cdp should keep the displayed snapshot")
	}
	loader.release(5, boom)
	session.Wait()

	if !errors.Is(session.Err(), boom) {
		t.Fatalf("expected refresh error, got %v", session.Err())
	}
	if snap, _ := session.Current(); snap == nil || snap.ID != 5 {
		t.Fatalf("expected previous snapshot to remain")
	}
}

func TestSessionClearsOnNewSelection(t *testing.T) {
	loader := newGatedLoader(1, 2)
	session := NewSession(context.Background(), loader, nil)
	session.Select(1)
	loader.release(1, nil)
	session.Wait()

	session.Select(2)
	if _, loading := session.Current(); !loading {
		t.Fatalf("expected loading state for a new selection")
	}
	loader.release(2, nil)
	session.Wait()
}
