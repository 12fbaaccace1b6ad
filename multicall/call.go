package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Decoder post-processes one raw output value.
type Decoder func(raw any) (any, error)

// Return maps one positional output of a call to a named field. A nil Decode
// keeps the raw ABI value.
type Return struct {
	Key    string
	Decode Decoder
}

// Call describes a single read: target contract, call signature plus its
// arguments, and the ordered named outputs.
type Call struct {
	Target    common.Address
	Signature string
	Args      []any
	Returns   []Return
}

// Field is one decoded output.
type Field struct {
	Key   string
	Value any
}

// Pack returns the selector-prefixed calldata for the call.
func (c Call) Pack() ([]byte, error) {
	sig, err := ParseSignature(c.Signature)
	if err != nil {
		return nil, err
	}
	if len(c.Args) != len(sig.Inputs) {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", sig, len(sig.Inputs), len(c.Args))
	}
	encoded, err := sig.Inputs.Pack(c.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack arguments: %w", sig, err)
	}
	data := make([]byte, 0, 4+len(encoded))
	data = append(data, sig.Selector[:]...)
	return append(data, encoded...), nil
}

// Decode unpacks return data and applies the per-field decoders in order.
func (c Call) Decode(ret []byte) ([]Field, error) {
	sig, err := ParseSignature(c.Signature)
	if err != nil {
		return nil, err
	}
	if len(c.Returns) > len(sig.Outputs) {
		return nil, fmt.Errorf("%s: %d returns mapped onto %d outputs", sig, len(c.Returns), len(sig.Outputs))
	}
	values, err := sig.Outputs.Unpack(ret)
	if err != nil {
		return nil, fmt.Errorf("%s at %s: unpack: %w", sig, c.Target.Hex(), err)
	}
	fields := make([]Field, 0, len(c.Returns))
	for i, r := range c.Returns {
		value := values[i]
		if r.Decode != nil {
			value, err = r.Decode(value)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", r.Key, err)
			}
		}
		fields = append(fields, Field{Key: r.Key, Value: value})
	}
	return fields, nil
}

// AsBig normalises any unsigned or signed ABI integer to *big.Int.
func AsBig(raw any) (*big.Int, error) {
	switch v := raw.(type) {
	case *big.Int:
		if v == nil {
			return big.NewInt(0), nil
		}
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", raw)
	}
}

// Big adapts a *big.Int transform into a Decoder.
func Big[T any](fn func(*big.Int) T) Decoder {
	return func(raw any) (any, error) {
		v, err := AsBig(raw)
		if err != nil {
			return nil, err
		}
		return fn(v), nil
	}
}

// Bool adapts a bool transform into a Decoder.
func Bool[T any](fn func(bool) T) Decoder {
	return func(raw any) (any, error) {
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return fn(v), nil
	}
}

// Runner executes a batch of descriptors. *Batcher satisfies it.
type Runner interface {
	Run(ctx context.Context, calls []Call) (Result, error)
}
