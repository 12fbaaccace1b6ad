package multicall_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"cdpview/multicall"
	"cdpview/multicall/multicalltest"
)

var (
	pip = common.HexToAddress("0x0000000000000000000000000000000000000101")
	jug = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

func TestParseSignature(t *testing.T) {
	sig, err := multicall.ParseSignature("ilks(bytes32)(uint256,uint48)")
	require.NoError(t, err)
	require.Equal(t, "ilks", sig.Name)
	require.Len(t, sig.Inputs, 1)
	require.Len(t, sig.Outputs, 2)
	require.Equal(t, "ilks(bytes32)", sig.String())
	require.Equal(t, crypto.Keccak256([]byte("ilks(bytes32)"))[:4], sig.Selector[:])

	peek, err := multicall.ParseSignature("peek()(uint256,bool)")
	require.NoError(t, err)
	require.Empty(t, peek.Inputs)
	require.Equal(t, "peek()", peek.String())

	noOutputs, err := multicall.ParseSignature("drip(bytes32)")
	require.NoError(t, err)
	require.Empty(t, noOutputs.Outputs)
}

func TestParseSignatureRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "peek", "(uint256)", "peek(uint256", "peek()(uint256)x", "peek(notatype)"} {
		_, err := multicall.ParseSignature(raw)
		require.ErrorIs(t, err, multicall.ErrInvalidSignature, raw)
	}
}

func TestCallPackRejectsArgumentMismatch(t *testing.T) {
	call := multicall.Call{Target: jug, Signature: "ilks(bytes32)(uint256,uint48)"}
	_, err := call.Pack()
	require.Error(t, err)
}

func TestCallDecodeRejectsExtraReturns(t *testing.T) {
	call := multicall.Call{
		Target:    pip,
		Signature: "peek()(uint256)",
		Returns:   []multicall.Return{{Key: "a"}, {Key: "b"}},
	}
	_, err := call.Decode(make([]byte, 32))
	require.Error(t, err)
}

func feedCalls() []multicall.Call {
	return []multicall.Call{
		{
			Target:    pip,
			Signature: "peek()(uint256,bool)",
			Returns: []multicall.Return{
				{Key: "ETH-A.value", Decode: multicall.Big(func(v *big.Int) string { return v.String() })},
				{Key: "ETH-A.live", Decode: multicall.Bool(func(b bool) string {
					if b {
						return "live"
					}
					return "ded"
				})},
			},
		},
		{
			Target:    jug,
			Signature: "ilks(bytes32)(uint256,uint48)",
			Args:      []any{[32]byte{'E', 'T', 'H', '-', 'A'}},
			Returns:   []multicall.Return{{Key: "ETH-A.duty"}, {Key: "ETH-A.rho"}},
		},
	}
}

func newChain(t *testing.T) *multicalltest.Chain {
	t.Helper()
	chain := multicalltest.New()
	chain.Block = big.NewInt(42)
	chain.Returns(pip, "peek()(uint256,bool)", big.NewInt(150), true)
	chain.Handle(jug, "ilks(bytes32)(uint256,uint48)", func(args []any) ([]any, error) {
		ilk := args[0].([32]byte)
		if ilk != [32]byte{'E', 'T', 'H', '-', 'A'} {
			return nil, errors.New("unknown ilk")
		}
		return []any{big.NewInt(7), big.NewInt(1600000000)}, nil
	})
	return chain
}

func TestBatcherAggregate(t *testing.T) {
	chain := newChain(t)
	batcher := multicall.NewBatcher(chain, multicall.WithMulticall(chain.Multicall))

	res, err := batcher.Run(context.Background(), feedCalls())
	require.NoError(t, err)
	require.Equal(t, 1, chain.Requests())
	require.Equal(t, int64(42), res.BlockNumber.Int64())
	require.Equal(t, "150", res.Values["ETH-A.value"])
	require.Equal(t, "live", res.Values["ETH-A.live"])
	require.Equal(t, int64(7), res.Values["ETH-A.duty"].(*big.Int).Int64())
	require.Equal(t, int64(1600000000), res.Values["ETH-A.rho"].(*big.Int).Int64())
}

func TestBatcherDirect(t *testing.T) {
	chain := newChain(t)
	batcher := multicall.NewBatcher(chain)
	require.False(t, batcher.Aggregating())

	res, err := batcher.Run(context.Background(), feedCalls())
	require.NoError(t, err)
	require.Equal(t, 2, chain.Requests())
	require.Equal(t, "150", res.Values["ETH-A.value"])
	require.Equal(t, int64(0), res.BlockNumber.Int64())
}

func TestBatcherChunksAggregateRequests(t *testing.T) {
	chain := newChain(t)
	batcher := multicall.NewBatcher(chain, multicall.WithMulticall(chain.Multicall), multicall.WithMaxCalls(1))

	res, err := batcher.Run(context.Background(), feedCalls())
	require.NoError(t, err)
	require.Equal(t, 2, chain.Requests())
	require.Len(t, res.Values, 4)
}

// blockRecorder remembers the block each eth_call asked for.
type blockRecorder struct {
	*multicalltest.Chain
	mu     sync.Mutex
	blocks []*big.Int
}

func (r *blockRecorder) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	r.mu.Lock()
	r.blocks = append(r.blocks, block)
	r.mu.Unlock()
	return r.Chain.CallContract(ctx, msg, block)
}

func TestBatcherPinsChunksToFirstBlock(t *testing.T) {
	chain := newChain(t)
	caller := &blockRecorder{Chain: chain}
	batcher := multicall.NewBatcher(caller, multicall.WithMulticall(chain.Multicall), multicall.WithMaxCalls(1))

	res, err := batcher.Run(context.Background(), feedCalls())
	require.NoError(t, err)
	require.Equal(t, int64(42), res.BlockNumber.Int64())
	require.Len(t, caller.blocks, 2)
	require.Nil(t, caller.blocks[0])
	require.Equal(t, int64(42), caller.blocks[1].Int64())
}

func TestBatcherFailsWholeBatch(t *testing.T) {
	chain := newChain(t)
	calls := append(feedCalls(), multicall.Call{
		Target:    common.HexToAddress("0x0000000000000000000000000000000000000999"),
		Signature: "peek()(uint256,bool)",
		Returns:   []multicall.Return{{Key: "missing"}},
	})

	for _, batcher := range []*multicall.Batcher{
		multicall.NewBatcher(chain, multicall.WithMulticall(chain.Multicall)),
		multicall.NewBatcher(chain),
	} {
		res, err := batcher.Run(context.Background(), calls)
		require.ErrorIs(t, err, multicalltest.ErrReverted)
		require.Nil(t, res.Values)
	}
}

func TestBatcherLastKeyWins(t *testing.T) {
	chain := newChain(t)
	chain.Returns(jug, "peek()(uint256,bool)", big.NewInt(999), false)
	calls := append(feedCalls(), multicall.Call{
		Target:    jug,
		Signature: "peek()(uint256,bool)",
		Returns:   []multicall.Return{{Key: "ETH-A.value", Decode: multicall.Big(func(v *big.Int) string { return v.String() })}},
	})
	batcher := multicall.NewBatcher(chain, multicall.WithMulticall(chain.Multicall))

	res, err := batcher.Run(context.Background(), calls)
	require.NoError(t, err)
	require.Equal(t, "999", res.Values["ETH-A.value"])
}

func TestBatcherEmpty(t *testing.T) {
	batcher := multicall.NewBatcher(multicalltest.New())
	res, err := batcher.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, res.Values)
}

func TestAsBig(t *testing.T) {
	v, err := multicall.AsBig(uint64(12))
	require.NoError(t, err)
	require.Equal(t, int64(12), v.Int64())

	_, err = multicall.AsBig("12")
	require.Error(t, err)
}
