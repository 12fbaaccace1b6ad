package wiring

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"cdpview/config"
	"cdpview/multicall/multicalltest"
	"cdpview/observability/logging"
)

var (
	daiAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	accountAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func testConfig(chain *multicalltest.Chain) config.Config {
	cfg := config.Default()
	cfg.RPCURL = "http://127.0.0.1:8545"
	cfg.Multicall = chain.Multicall.Hex()
	cfg.DaiToken = daiAddr.Hex()
	cfg.Account = accountAddr.Hex()
	cfg.Contracts = config.Contracts{
		CDPManager: "0x00000000000000000000000000000000000000a1",
		Vat:        "0x00000000000000000000000000000000000000a2",
		Spotter:    "0x00000000000000000000000000000000000000a3",
	}
	return cfg
}

func TestBuildWiresWalletThroughBatcher(t *testing.T) {
	chain := multicalltest.New()
	chain.Returns(daiAddr, "balanceOf(address)(uint256)", new(big.Int).Mul(big.NewInt(12), big.NewInt(1e18)))

	stack := Build(testConfig(chain), chain, slog.Default())
	require.True(t, stack.Batcher.Aggregating())
	require.NotNil(t, stack.Wallet())

	balance, err := stack.Token.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, "12", balance.String())
}

func TestBuildWithoutToken(t *testing.T) {
	chain := multicalltest.New()
	cfg := testConfig(chain)
	cfg.DaiToken = ""
	stack := Build(cfg, chain, slog.Default())
	require.Nil(t, stack.Wallet())
	require.Nil(t, stack.Recorder())
	require.NoError(t, stack.Close())
}

func TestOpenHistory(t *testing.T) {
	chain := multicalltest.New()
	stack := Build(testConfig(chain), chain, slog.Default())
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	require.NoError(t, stack.OpenHistory(dsn, logger))
	require.NotNil(t, stack.Recorder())
	require.NotContains(t, buf.String(), dsn)
	require.Contains(t, buf.String(), `"history_dsn":"`+logging.RedactedValue+`"`)
	require.NoError(t, stack.Close())
}

func TestOpenFeedCache(t *testing.T) {
	chain := multicalltest.New()
	stack := Build(testConfig(chain), chain, slog.Default())
	require.NoError(t, stack.OpenFeedCache(filepath.Join(t.TempDir(), "feeds"), slog.Default()))
	require.NotNil(t, stack.Cache)
	require.NoError(t, stack.Close())
}
