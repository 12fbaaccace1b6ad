package cdp

import "github.com/shopspring/decimal"

// divPrecision is the number of decimal places kept by quotients.
const divPrecision int32 = 27

// CollateralizationRatio is collateral value over debt.
func CollateralizationRatio(collateral, price, debt decimal.Decimal) Ratio {
	if debt.Sign() <= 0 {
		return InfiniteRatio
	}
	return NewRatio(collateral.Mul(price).DivRound(debt, divPrecision))
}

// LiquidationPrice is the collateral price at which the position reaches the
// liquidation ratio.
func LiquidationPrice(debt, collateral, liquidationRatio decimal.Decimal) decimal.Decimal {
	if collateral.Sign() <= 0 {
		return decimal.Zero
	}
	return debt.Mul(liquidationRatio).DivRound(collateral, divPrecision)
}

// DaiAvailable is the extra debt that can be drawn before hitting the
// liquidation ratio, floored at zero.
func DaiAvailable(collateral, price, debt, liquidationRatio decimal.Decimal) decimal.Decimal {
	if liquidationRatio.Sign() <= 0 {
		return decimal.Zero
	}
	capacity := collateral.Mul(price).DivRound(liquidationRatio, divPrecision)
	return floor(capacity.Sub(debt))
}

// MinCollateral is the collateral needed to keep the debt at the
// liquidation ratio.
func MinCollateral(debt, price, liquidationRatio decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	return debt.Mul(liquidationRatio).DivRound(price, divPrecision)
}

// FreeCollateral is the collateral that can be withdrawn, floored at zero.
func FreeCollateral(collateral, minCollateral decimal.Decimal) decimal.Decimal {
	return floor(collateral.Sub(minCollateral))
}

func floor(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}
