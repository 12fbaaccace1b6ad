package units

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "invalid integer %q", s)
	return v
}

func TestPenaltyPercent(t *testing.T) {
	require.True(t, PenaltyPercent(RAY).IsZero())
	require.True(t, PenaltyPercent(Mul(RAY, 2)).Equal(decimal.NewFromInt(100)))

	// 1.13 RAY is the classic 13% liquidation penalty.
	chop := mustBig(t, "1130000000000000000000000000")
	require.Equal(t, "13.00", PenaltyPercent(chop).StringFixed(2))
	require.True(t, PenaltyPercent(nil).IsZero())
}

func TestAnnualRate(t *testing.T) {
	require.Equal(t, "0.000", AnnualRate(RAY).StringFixed(3))

	fivePercent := mustBig(t, "1000000001547125957863212448")
	got := AnnualRate(fivePercent)
	diff := got.Sub(decimal.RequireFromString("0.05")).Abs()
	require.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.001")), "got %s", got)
	require.Equal(t, "0.050", got.StringFixed(3))
}

func TestPowKeepsPrecision(t *testing.T) {
	base := decimal.RequireFromString("1.000000001")
	got := Pow(base, 1_000_000, PowPrecision)
	// e^0.001 = 1.0010005001667...
	require.Equal(t, "1.001000500", got.Truncate(9).StringFixed(9))
	require.True(t, Pow(base, 0, PowPrecision).Equal(decimal.NewFromInt(1)))
}

func TestFromWei(t *testing.T) {
	require.Equal(t, "1.00000", FromWei(WAD, 5).StringFixed(5))
	require.Equal(t, "0.00100", FromWei(mustBig(t, "1000000000000000"), 5).StringFixed(5))

	v := mustBig(t, "1234567890000000000")
	require.Equal(t, "1.23", FromWei(v, 2).String())
	require.Equal(t, "1.2346", FromWei(v, 4).String())
	require.True(t, FromWei(nil, 5).IsZero())
}

func TestFromRayAndLiquidationRatio(t *testing.T) {
	require.Equal(t, "1", FromRay(RAY, 5).String())
	mat := mustBig(t, "1500000000000000000000000000")
	require.Equal(t, "150", LiquidationRatio(mat).String())
}

func TestScale(t *testing.T) {
	require.Equal(t, "2.5", Scale(big.NewInt(25), 1).String())
	require.Equal(t, "250.12", Scale(mustBig(t, "250120000000000000000"), 18).String())
}

func TestSubAndMulDoNotMutate(t *testing.T) {
	a := big.NewInt(10)
	b := big.NewInt(3)
	require.Equal(t, int64(7), Sub(a, b).Int64())
	require.Equal(t, int64(30), Mul(a, 3).Int64())
	require.Equal(t, int64(10), a.Int64())
	require.Equal(t, int64(3), b.Int64())
}

func TestRound(t *testing.T) {
	require.Equal(t, 1.01, Round(1.005, 2))
	require.Equal(t, 2.5, Round(2.499999, 2))
	require.Equal(t, 3.0, Round(2.999, 2))
	require.Equal(t, 123.0, Round(123.4, 0))
}

func TestBytes32(t *testing.T) {
	word, err := ToBytes32("ETH-A")
	require.NoError(t, err)
	require.Equal(t, "ETH-A", FromBytes32(word))

	hexed, err := ToHex("ETH-A")
	require.NoError(t, err)
	require.Equal(t, "0x4554482d41000000000000000000000000000000000000000000000000000000", hexed)

	_, err = ToBytes32("this-ilk-name-is-far-too-long-to-fit")
	require.Error(t, err)
}
