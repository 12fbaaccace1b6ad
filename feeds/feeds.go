// Package feeds builds the per-ilk multicall descriptors that populate the
// feed store and exposes the store itself.
package feeds

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"cdpview/multicall"
	"cdpview/units"
)

// Field names of the values published under "<ilk>.<field>".
const (
	FieldFeedValueUSD          = "feedValueUSD"
	FieldFeedSetUSD            = "feedSetUSD"
	FieldRate                  = "rate"
	FieldLastDrip              = "lastDrip"
	FieldPriceWithSafetyMargin = "priceWithSafetyMargin"
	FieldDebtCeiling           = "debtCeiling"
	FieldLiquidationRatio      = "liquidationRatio"
	FieldLiquidatorAddress     = "liquidatorAddress"
	FieldLiquidationPenalty    = "liquidationPenalty"
	FieldMaxAuctionLotSize     = "maxAuctionLotSize"
	FieldAdapterBalance        = "adapterBalance"
)

// Liveness values reported by price feeds.
const (
	Live = "live"
	Dead = "ded"
)

// DefaultDecimals is the scale of pip values.
const DefaultDecimals int32 = 18

// ErrMissingAddress is returned when a descriptor needs an unknown contract.
var ErrMissingAddress = errors.New("feeds: contract address not configured")

// Addresses maps contract keys (MCD_JUG, PIP_ETH-A, ...) to deployments.
type Addresses map[string]common.Address

func (a Addresses) lookup(key string) (common.Address, error) {
	addr, ok := a[key]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrMissingAddress, key)
	}
	return addr, nil
}

// Builder produces the descriptor for one ilk.
type Builder func(addrs Addresses, name string) (multicall.Call, error)

func key(name, field string) string { return name + "." + field }

// PriceFeedWithDecimals reads the ilk's pip. The value is scaled by
// 10^-decimals.
func PriceFeedWithDecimals(decimals int32) Builder {
	return func(addrs Addresses, name string) (multicall.Call, error) {
		target, err := addrs.lookup("PIP_" + name)
		if err != nil {
			return multicall.Call{}, err
		}
		return multicall.Call{
			Target:    target,
			Signature: "peek()(uint256,bool)",
			Returns: []multicall.Return{
				{Key: key(name, FieldFeedValueUSD), Decode: multicall.Big(func(v *big.Int) decimal.Decimal {
					return units.Scale(v, decimals)
				})},
				{Key: key(name, FieldFeedSetUSD), Decode: multicall.Bool(func(live bool) string {
					if live {
						return Live
					}
					return Dead
				})},
			},
		}, nil
	}
}

// PriceFeed reads the ilk's pip at the default 18 decimals.
func PriceFeed(addrs Addresses, name string) (multicall.Call, error) {
	return PriceFeedWithDecimals(DefaultDecimals)(addrs, name)
}

// RateData reads the jug duty and derives the annual stability fee.
func RateData(addrs Addresses, name string) (multicall.Call, error) {
	target, err := addrs.lookup("MCD_JUG")
	if err != nil {
		return multicall.Call{}, err
	}
	ilk, err := units.ToBytes32(name)
	if err != nil {
		return multicall.Call{}, err
	}
	return multicall.Call{
		Target:    target,
		Signature: "ilks(bytes32)(uint256,uint48)",
		Args:      []any{ilk},
		Returns: []multicall.Return{
			{Key: key(name, FieldRate), Decode: multicall.Big(units.AnnualRate)},
			{Key: key(name, FieldLastDrip)},
		},
	}, nil
}

// PitData reads the price with safety margin and debt ceiling.
func PitData(addrs Addresses, name string) (multicall.Call, error) {
	target, err := addrs.lookup("MCD_PIT")
	if err != nil {
		return multicall.Call{}, err
	}
	ilk, err := units.ToBytes32(name)
	if err != nil {
		return multicall.Call{}, err
	}
	return multicall.Call{
		Target:    target,
		Signature: "ilks(bytes32)(uint256,uint256)",
		Args:      []any{ilk},
		Returns: []multicall.Return{
			{Key: key(name, FieldPriceWithSafetyMargin), Decode: multicall.Big(func(v *big.Int) decimal.Decimal {
				return units.FromRay(v, 5)
			})},
			{Key: key(name, FieldDebtCeiling), Decode: multicall.Big(func(v *big.Int) decimal.Decimal {
				return units.FromWei(v, 5)
			})},
		},
	}, nil
}

// Liquidation reads the spotter pip and liquidation ratio.
func Liquidation(addrs Addresses, name string) (multicall.Call, error) {
	target, err := addrs.lookup("MCD_SPOT")
	if err != nil {
		return multicall.Call{}, err
	}
	ilk, err := units.ToBytes32(name)
	if err != nil {
		return multicall.Call{}, err
	}
	return multicall.Call{
		Target:    target,
		Signature: "ilks(bytes32)(address,uint256)",
		Args:      []any{ilk},
		Returns: []multicall.Return{
			{Key: "pip" + name},
			{Key: key(name, FieldLiquidationRatio), Decode: multicall.Big(units.LiquidationRatio)},
		},
	}, nil
}

// Flipper reads the cat liquidator, penalty and lot size.
func Flipper(addrs Addresses, name string) (multicall.Call, error) {
	target, err := addrs.lookup("MCD_CAT")
	if err != nil {
		return multicall.Call{}, err
	}
	ilk, err := units.ToBytes32(name)
	if err != nil {
		return multicall.Call{}, err
	}
	return multicall.Call{
		Target:    target,
		Signature: "ilks(bytes32)(address,uint256,uint256)",
		Args:      []any{ilk},
		Returns: []multicall.Return{
			{Key: key(name, FieldLiquidatorAddress)},
			{Key: key(name, FieldLiquidationPenalty), Decode: multicall.Big(units.PenaltyPercent)},
			{Key: key(name, FieldMaxAuctionLotSize), Decode: multicall.Big(func(v *big.Int) decimal.Decimal {
				return units.FromWei(v, 5)
			})},
		},
	}, nil
}

// AdapterBalance reads the gem balance locked in the ilk's join adapter.
func AdapterBalance(addrs Addresses, name string) (multicall.Call, error) {
	target, err := addrs.lookup(name)
	if err != nil {
		return multicall.Call{}, err
	}
	join, err := addrs.lookup("MCD_JOIN_" + name)
	if err != nil {
		return multicall.Call{}, err
	}
	return multicall.Call{
		Target:    target,
		Signature: "balanceOf(address)(uint256)",
		Args:      []any{join},
		Returns: []multicall.Return{
			{Key: key(name, FieldAdapterBalance), Decode: multicall.Big(func(v *big.Int) decimal.Decimal {
				return units.FromWei(v, 5)
			})},
		},
	}, nil
}

// CDPTypeModel returns every descriptor for one ilk in a fixed order:
// price feed, rate, pit, liquidation, flipper, adapter balance.
func CDPTypeModel(name string, addrs Addresses) ([]multicall.Call, error) {
	return Model(name, addrs, PriceFeed)
}

// Model builds the CDP type descriptors with a custom price feed builder.
func Model(name string, addrs Addresses, price Builder) ([]multicall.Call, error) {
	builders := []Builder{price, RateData, PitData, Liquidation, Flipper, AdapterBalance}
	calls := make([]multicall.Call, 0, len(builders))
	for _, build := range builders {
		call, err := build(addrs, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		calls = append(calls, call)
	}
	return calls, nil
}
