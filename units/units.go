// Package units converts the fixed-point integers stored by the MCD contracts
// into decimal quantities. Wad values carry 18 decimals, ray values 27.
package units

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	wadDecimals = 18
	rayDecimals = 27

	// SecondsPerYear is the compounding horizon used for stability fees.
	SecondsPerYear uint64 = 60 * 60 * 24 * 365

	// PowPrecision is the number of decimal places kept at every step of the
	// stability fee exponentiation. Compounding 1+1e-9 over 31.5M periods
	// loses all meaningful digits at float64 precision.
	PowPrecision int32 = 100
)

var (
	// WAD is 10^18.
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(wadDecimals), nil)
	// RAY is 10^27.
	RAY = new(big.Int).Exp(big.NewInt(10), big.NewInt(rayDecimals), nil)

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Scale returns v × 10^-decimals.
func Scale(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// FromWei converts a wad quantity and rounds it to places.
func FromWei(v *big.Int, places int32) decimal.Decimal {
	return Scale(v, wadDecimals).Round(places)
}

// FromRay converts a ray quantity and rounds it to places.
func FromRay(v *big.Int, places int32) decimal.Decimal {
	return Scale(v, rayDecimals).Round(places)
}

// Mul returns v × n without touching v.
func Mul(v *big.Int, n int64) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(v, big.NewInt(n))
}

// Sub returns a − b without touching either operand.
func Sub(a, b *big.Int) *big.Int {
	out := new(big.Int)
	if a != nil {
		out.Set(a)
	}
	if b != nil {
		out.Sub(out, b)
	}
	return out
}

// LiquidationRatio renders a spotter mat as a whole percentage.
func LiquidationRatio(mat *big.Int) decimal.Decimal {
	return FromRay(Mul(mat, 100), 0)
}

// PenaltyPercent renders a cat chop as the percentage charged on top of the
// debt at liquidation: ((chop - RAY) / RAY) × 100 rounded to two places.
func PenaltyPercent(chop *big.Int) decimal.Decimal {
	if chop == nil {
		return decimal.Zero
	}
	return FromRay(Mul(Sub(chop, RAY), 100), 2)
}

// AnnualRate derives the yearly stability fee from a per-second jug duty:
// (duty / RAY)^SecondsPerYear - 1, rounded to three places.
func AnnualRate(duty *big.Int) decimal.Decimal {
	if duty == nil {
		return decimal.Zero
	}
	base := Scale(duty, rayDecimals)
	return Pow(base, SecondsPerYear, PowPrecision).Sub(one).Round(3)
}

// Pow raises base to exp by repeated squaring, rounding every intermediate
// product to places decimal places.
func Pow(base decimal.Decimal, exp uint64, places int32) decimal.Decimal {
	result := one
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(places)
		}
		exp >>= 1
		if exp > 0 {
			base = base.Mul(base).Round(places)
		}
	}
	return result
}

// Percent returns d × 100.
func Percent(d decimal.Decimal) decimal.Decimal {
	return d.Mul(hundred)
}

// Round rounds value half away from zero using its shortest decimal string,
// so Round(1.005, 2) is 1.01 rather than the 1.00 binary rounding produces.
func Round(value float64, places int32) float64 {
	d, err := decimal.NewFromString(strconv.FormatFloat(value, 'f', -1, 64))
	if err != nil {
		return value
	}
	return d.Round(places).InexactFloat64()
}

// ToBytes32 encodes an ilk name as right-padded ASCII.
func ToBytes32(name string) ([32]byte, error) {
	var out [32]byte
	if len(name) > len(out) {
		return out, fmt.Errorf("name %q exceeds 32 bytes", name)
	}
	copy(out[:], name)
	return out, nil
}

// ToHex returns the 0x-prefixed bytes32 encoding of name.
func ToHex(name string) (string, error) {
	word, err := ToBytes32(name)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(word[:]), nil
}

// FromBytes32 strips the zero padding of an ilk identifier.
func FromBytes32(word [32]byte) string {
	end := len(word)
	for end > 0 && word[end-1] == 0 {
		end--
	}
	return string(word[:end])
}
