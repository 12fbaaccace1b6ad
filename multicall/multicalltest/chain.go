// Package multicalltest provides an in-memory contract caller for tests that
// exercise multicall descriptors without a node.
package multicalltest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"cdpview/multicall"
)

// ErrReverted mimics an execution revert for unknown calls.
var ErrReverted = errors.New("execution reverted")

// Handler answers one call. Inputs arrive unpacked; outputs are packed with
// the signature's output types.
type Handler func(args []any) ([]any, error)

type route struct {
	sig     *multicall.Signature
	handler Handler
}

type routeKey struct {
	target   common.Address
	selector [4]byte
}

// Chain is a fake node implementing ethereum.ContractCaller.
type Chain struct {
	// Multicall is the address answering aggregate requests.
	Multicall common.Address
	// Block is reported by aggregate.
	Block *big.Int

	mu       sync.Mutex
	routes   map[routeKey]route
	requests int
}

// New returns an empty chain whose multicall lives at a fixed address.
func New() *Chain {
	return &Chain{
		Multicall: common.HexToAddress("0x00000000000000000000000000000000000000ca"),
		Block:     big.NewInt(1),
		routes:    make(map[routeKey]route),
	}
}

// Handle registers a handler for signature on target.
func (c *Chain) Handle(target common.Address, signature string, h Handler) {
	sig, err := multicall.ParseSignature(signature)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[routeKey{target: target, selector: sig.Selector}] = route{sig: sig, handler: h}
}

// Returns registers a handler answering with fixed outputs.
func (c *Chain) Returns(target common.Address, signature string, outputs ...any) {
	c.Handle(target, signature, func([]any) ([]any, error) { return outputs, nil })
}

// Requests reports how many eth_call requests reached the chain.
func (c *Chain) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// CallContract implements ethereum.ContractCaller.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil {
		return nil, fmt.Errorf("call without target")
	}
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
	if *msg.To == c.Multicall {
		return c.aggregate(msg.Data)
	}
	return c.dispatch(*msg.To, msg.Data)
}

func (c *Chain) dispatch(target common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrReverted
	}
	var selector [4]byte
	copy(selector[:], data[:4])
	c.mu.Lock()
	r, ok := c.routes[routeKey{target: target, selector: selector}]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %x on %s", ErrReverted, selector, target.Hex())
	}
	args, err := r.sig.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", r.sig, err)
	}
	outputs, err := r.handler(args)
	if err != nil {
		return nil, err
	}
	return r.sig.Outputs.Pack(outputs...)
}

func (c *Chain) aggregate(data []byte) ([]byte, error) {
	parsed := multicall.AggregateABI()
	method := parsed.Methods["aggregate"]
	if len(data) < 4 {
		return nil, ErrReverted
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate: %w", err)
	}
	calls := *abi.ConvertType(values[0], new([]multicall.AggregateCall)).(*[]multicall.AggregateCall)
	results := make([][]byte, len(calls))
	for i, call := range calls {
		ret, err := c.dispatch(call.Target, call.CallData)
		if err != nil {
			return nil, err
		}
		results[i] = ret
	}
	return method.Outputs.Pack(c.Block, results)
}
