// Package multicall encodes contract read descriptors and executes them in
// batches through the Multicall aggregate contract.
package multicall

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cdpview/observability"
)

// DefaultMaxCalls bounds the number of calls carried by one aggregate request.
const DefaultMaxCalls = 50

const aggregateJSON = `[{"constant":false,"inputs":[{"components":[{"name":"target","type":"address"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate","outputs":[{"name":"blockNumber","type":"uint256"},{"name":"returnData","type":"bytes[]"}],"payable":false,"stateMutability":"nonpayable","type":"function"}]`

var (
	aggregateOnce sync.Once
	aggregateABI  abi.ABI
)

// AggregateABI returns the parsed ABI of the Multicall contract.
func AggregateABI() abi.ABI {
	aggregateOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(aggregateJSON))
		if err != nil {
			panic(fmt.Sprintf("multicall: parse aggregate abi: %v", err))
		}
		aggregateABI = parsed
	})
	return aggregateABI
}

// AggregateCall is one element of the aggregate calls argument.
type AggregateCall struct {
	Target   common.Address
	CallData []byte
}

// Result carries the merged decoded fields of a batch. Aggregated batches
// read every chunk at BlockNumber; direct calls leave it zero.
type Result struct {
	BlockNumber *big.Int
	Values      map[string]any
}

// Batcher executes read descriptors against an Ethereum node.
type Batcher struct {
	caller    ethereum.ContractCaller
	multicall common.Address
	maxCalls  int
	parallel  int
	metrics   *observability.MulticallMetrics
	tracer    trace.Tracer
}

// Option customises a Batcher.
type Option func(*Batcher)

// WithMulticall routes batches through the aggregate contract at addr. Without
// it every call is issued as its own eth_call.
func WithMulticall(addr common.Address) Option {
	return func(b *Batcher) { b.multicall = addr }
}

// WithMaxCalls bounds the calls per aggregate request.
func WithMaxCalls(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.maxCalls = n
		}
	}
}

// WithParallelism bounds concurrent requests issued for one Run.
func WithParallelism(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.parallel = n
		}
	}
}

// NewBatcher constructs a batcher over the supplied caller.
func NewBatcher(caller ethereum.ContractCaller, opts ...Option) *Batcher {
	b := &Batcher{
		caller:   caller,
		maxCalls: DefaultMaxCalls,
		parallel: 4,
		metrics:  observability.Multicall(),
		tracer:   otel.Tracer("cdpview/multicall"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Aggregating reports whether calls go through the multicall contract.
func (b *Batcher) Aggregating() bool {
	return b != nil && b.multicall != (common.Address{})
}

// Run executes all calls and merges their decoded fields. Any failing call
// fails the whole run. Later calls overwrite duplicate keys.
func (b *Batcher) Run(ctx context.Context, calls []Call) (Result, error) {
	if b == nil || b.caller == nil {
		return Result{}, fmt.Errorf("multicall: batcher not initialised")
	}
	result := Result{BlockNumber: new(big.Int), Values: make(map[string]any)}
	if len(calls) == 0 {
		return result, nil
	}

	mode := "direct"
	if b.Aggregating() {
		mode = "aggregate"
	}
	ctx, span := b.tracer.Start(ctx, "multicall.Run", trace.WithAttributes(
		attribute.String("multicall.mode", mode),
		attribute.Int("multicall.calls", len(calls)),
	))
	defer span.End()

	start := time.Now()
	var (
		fields [][]Field
		block  *big.Int
		err    error
	)
	if b.Aggregating() {
		fields, block, err = b.aggregate(ctx, calls)
	} else {
		fields, err = b.direct(ctx, calls)
	}
	b.metrics.Observe(mode, len(calls), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if block != nil {
		result.BlockNumber = block
	}
	for _, group := range fields {
		for _, f := range group {
			result.Values[f.Key] = f.Value
		}
	}
	return result, nil
}

func (b *Batcher) direct(ctx context.Context, calls []Call) ([][]Field, error) {
	out := make([][]Field, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallel)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			data, err := call.Pack()
			if err != nil {
				return err
			}
			target := call.Target
			ret, err := b.caller.CallContract(gctx, ethereum.CallMsg{To: &target, Data: data}, nil)
			if err != nil {
				return fmt.Errorf("call %s on %s: %w", call.Signature, target.Hex(), err)
			}
			fields, err := call.Decode(ret)
			if err != nil {
				return err
			}
			out[i] = fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// aggregate runs the first chunk at the latest block and pins the remaining
// chunks to the block it reported.
func (b *Batcher) aggregate(ctx context.Context, calls []Call) ([][]Field, *big.Int, error) {
	chunks := chunk(calls, b.maxCalls)
	out := make([][][]Field, len(chunks))
	first, block, err := b.aggregateChunk(ctx, chunks[0], nil)
	if err != nil {
		return nil, nil, err
	}
	out[0] = first
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallel)
	for i := 1; i < len(chunks); i++ {
		i := i
		g.Go(func() error {
			fields, _, err := b.aggregateChunk(gctx, chunks[i], block)
			if err != nil {
				return err
			}
			out[i] = fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	var merged [][]Field
	for i := range chunks {
		merged = append(merged, out[i]...)
	}
	return merged, block, nil
}

func (b *Batcher) aggregateChunk(ctx context.Context, calls []Call, at *big.Int) ([][]Field, *big.Int, error) {
	parsed := AggregateABI()
	args := make([]AggregateCall, len(calls))
	for i, call := range calls {
		data, err := call.Pack()
		if err != nil {
			return nil, nil, err
		}
		args[i] = AggregateCall{Target: call.Target, CallData: data}
	}
	input, err := parsed.Pack("aggregate", args)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: pack aggregate: %w", err)
	}
	target := b.multicall
	ret, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: input}, at)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: aggregate: %w", err)
	}
	values, err := parsed.Unpack("aggregate", ret)
	if err != nil {
		return nil, nil, fmt.Errorf("multicall: unpack aggregate: %w", err)
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("multicall: aggregate returned %d values", len(values))
	}
	block, ok := values[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("multicall: unexpected block number type %T", values[0])
	}
	returnData, ok := values[1].([][]byte)
	if !ok {
		return nil, nil, fmt.Errorf("multicall: unexpected return data type %T", values[1])
	}
	if len(returnData) != len(calls) {
		return nil, nil, fmt.Errorf("multicall: %d results for %d calls", len(returnData), len(calls))
	}
	out := make([][]Field, len(calls))
	for i, call := range calls {
		fields, err := call.Decode(returnData[i])
		if err != nil {
			return nil, nil, err
		}
		out[i] = fields
	}
	return out, block, nil
}

func chunk(calls []Call, size int) [][]Call {
	if size <= 0 {
		size = DefaultMaxCalls
	}
	var out [][]Call
	for start := 0; start < len(calls); start += size {
		end := start + size
		if end > len(calls) {
			end = len(calls)
		}
		out = append(out, calls[start:end])
	}
	return out
}
