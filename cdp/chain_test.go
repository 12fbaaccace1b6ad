package cdp_test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cdpview/cdp"
	"cdpview/feeds"
	"cdpview/multicall"
	"cdpview/multicall/multicalltest"
	"cdpview/units"
)

var (
	managerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	vatAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	spotAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	urnAddr     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func scaled(n int64, tenths int64, decimals int64) *big.Int {
	// (n + tenths/10) × 10^decimals
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals-1), nil)
	return new(big.Int).Mul(big.NewInt(n*10+tenths), base)
}

// mcdChain seeds CDP #7: 10 ETH locked, 1000 art at rate 1.1, price 300, mat 1.5.
func mcdChain(t *testing.T) *multicalltest.Chain {
	t.Helper()
	ilk, err := units.ToBytes32("ETH-A")
	require.NoError(t, err)

	chain := multicalltest.New()
	chain.Handle(managerAddr, "ilks(uint256)(bytes32)", func(args []any) ([]any, error) {
		if args[0].(*big.Int).Uint64() == 7 {
			return []any{ilk}, nil
		}
		return []any{[32]byte{}}, nil
	})
	chain.Handle(managerAddr, "urns(uint256)(address)", func(args []any) ([]any, error) {
		if args[0].(*big.Int).Uint64() == 7 {
			return []any{urnAddr}, nil
		}
		return []any{common.Address{}}, nil
	})
	chain.Returns(vatAddr, "urns(bytes32,address)(uint256,uint256)", scaled(10, 0, 18), scaled(1000, 0, 18))
	chain.Returns(vatAddr, "ilks(bytes32)(uint256,uint256,uint256,uint256,uint256)",
		scaled(5000, 0, 18), scaled(1, 1, 27), scaled(200, 0, 27), scaled(1000000, 0, 45), scaled(20, 0, 45))
	chain.Returns(spotAddr, "ilks(bytes32)(address,uint256)", common.HexToAddress("0x01"), scaled(1, 5, 27))
	return chain
}

func newManager(chain *multicalltest.Chain) *cdp.ChainManager {
	batcher := multicall.NewBatcher(chain, multicall.WithMulticall(chain.Multicall))
	return cdp.NewChainManager(batcher, cdp.Contracts{CDPManager: managerAddr, Vat: vatAddr, Spotter: spotAddr})
}

func TestChainManagerLoadsSnapshot(t *testing.T) {
	store := feeds.NewStore(feeds.Ilk{Key: "ETH-A", Gem: "ETH"})
	store.Apply(map[string]any{"ETH-A.liquidationPenalty": units.PenaltyPercent(scaled(1, 3, 27))})

	loader := cdp.NewLoader(newManager(mcdChain(t)), store)
	snap, err := loader.Load(context.Background(), 7)
	require.NoError(t, err)

	require.Equal(t, uint64(7), snap.ID)
	require.Equal(t, "ETH-A", snap.Ilk)
	require.Equal(t, "ETH", snap.CollateralSymbol)
	require.Equal(t, cdp.DebtSymbol, snap.DebtSymbol)
	require.Equal(t, "1100", snap.Debt.String())
	require.Equal(t, "10", snap.Collateral.String())
	require.Equal(t, "300", snap.CollateralPrice.String())
	require.False(t, snap.CollateralizationRatio.Infinite)
	require.Equal(t, "2.73", snap.CollateralizationRatio.Value.StringFixed(2))
	require.Equal(t, "165", snap.LiquidationPrice.String())
	require.Equal(t, "900", snap.DaiAvailable.String())
	require.Equal(t, "5.5", snap.MinCollateral.String())
	require.Equal(t, "4.5", snap.FreeCollateral.String())
	require.Equal(t, "30", snap.IlkData.LiquidationPenalty.String())
	require.False(t, snap.LoadedAt.IsZero())
}

func TestChainManagerReadsUrnStateOnce(t *testing.T) {
	chain := mcdChain(t)
	var (
		mu    sync.Mutex
		reads int
	)
	// ink grows on every read, so mixed reads would disagree with each other.
	chain.Handle(vatAddr, "urns(bytes32,address)(uint256,uint256)", func([]any) ([]any, error) {
		mu.Lock()
		defer mu.Unlock()
		reads++
		return []any{scaled(int64(9+reads), 0, 18), scaled(1000, 0, 18)}, nil
	})

	snap, err := cdp.NewLoader(newManager(chain), nil).Load(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 1, reads)
	require.Equal(t, 2, chain.Requests())

	require.Equal(t, "10", snap.Collateral.String())
	want := snap.Collateral.Mul(snap.CollateralPrice).Div(snap.Debt)
	require.Equal(t, want.StringFixed(8), snap.CollateralizationRatio.Value.StringFixed(8))
	require.Equal(t, snap.Collateral.Sub(snap.MinCollateral).String(), snap.FreeCollateral.String())
}

func TestChainManagerUnknownCDP(t *testing.T) {
	_, err := newManager(mcdChain(t)).GetCDP(context.Background(), 99)
	require.ErrorIs(t, err, cdp.ErrNotFound)

	_, err = cdp.NewLoader(newManager(mcdChain(t)), nil).Load(context.Background(), 99)
	require.ErrorIs(t, err, cdp.ErrNotFound)
}
