// Package curve implements the Bancor-style bonding curve used to price
// batched buy and sell orders:
//
//	buyReturn  = supply  * ((1 + amount/balance)^(ratio/1e6) - 1)
//	sellReturn = balance * (1 - (1 - amount/supply)^(1e6/ratio))
//
// All arithmetic is arbitrary-precision decimal. The fractional power is
// evaluated via exp(y*ln x) at 64 fractional digits (PowWithPrecision), which
// keeps the relative error many orders of magnitude below the 1e-7 tolerance
// the pricing contract requires. The linear degeneration (ratio == 1e6) and
// the zero-amount short circuit are exact.
package curve

import (
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

// PPM is the base for reserve ratios, parts per million.
const PPM = 1_000_000

// powPrecision is the number of fractional decimal digits carried through the
// power evaluation and the divisions feeding it.
const powPrecision = 64

var (
	one    = decimal.NewFromInt(1)
	ppmDec = decimal.NewFromInt(PPM)
)

// ValidReserveRatio reports whether ratio is inside (0, 1e6].
func ValidReserveRatio(ratio uint32) bool {
	return ratio > 0 && ratio <= PPM
}

// BuyReturn computes the bonded tokens minted for spending amount of
// collateral against a curve with the given supply, balance and reserve ratio.
func BuyReturn(supply, balance decimal.Decimal, ratio uint32, amount decimal.Decimal) (decimal.Decimal, error) {
	if !ValidReserveRatio(ratio) {
		return decimal.Zero, apperrors.Newf(apperrors.KindInvalidReserveRatio, "reserve ratio %d ppm out of range", ratio)
	}
	if amount.IsNegative() {
		return decimal.Zero, apperrors.New(apperrors.KindZeroAmount, "buy amount must not be negative")
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	if balance.Sign() <= 0 {
		return decimal.Zero, apperrors.New(apperrors.KindCurveDivisionByZero, "curve balance is zero, cannot price buy")
	}

	// Linear curve when the reserve ratio is 100%.
	if ratio == PPM {
		return supply.Mul(amount).DivRound(balance, powPrecision), nil
	}

	base := one.Add(amount.DivRound(balance, powPrecision))
	exponent := decimal.NewFromInt(int64(ratio)).DivRound(ppmDec, powPrecision)
	power, err := base.PowWithPrecision(exponent, powPrecision)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err)
	}
	return supply.Mul(power.Sub(one)), nil
}

// SellReturn computes the collateral released for burning amount of bonded
// tokens against a curve with the given supply, balance and reserve ratio.
func SellReturn(supply, balance decimal.Decimal, ratio uint32, amount decimal.Decimal) (decimal.Decimal, error) {
	if !ValidReserveRatio(ratio) {
		return decimal.Zero, apperrors.Newf(apperrors.KindInvalidReserveRatio, "reserve ratio %d ppm out of range", ratio)
	}
	if amount.IsNegative() {
		return decimal.Zero, apperrors.New(apperrors.KindZeroAmount, "sell amount must not be negative")
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	if supply.Sign() <= 0 {
		return decimal.Zero, apperrors.New(apperrors.KindCurveDivisionByZero, "curve supply is zero, cannot price sell")
	}
	if amount.GreaterThan(supply) {
		return decimal.Zero, apperrors.New(apperrors.KindCurveDivisionByZero, "sell amount exceeds curve supply")
	}

	// Selling the whole supply drains the whole balance.
	if amount.Equal(supply) {
		return balance, nil
	}

	// Linear curve when the reserve ratio is 100%.
	if ratio == PPM {
		return balance.Mul(amount).DivRound(supply, powPrecision), nil
	}

	base := one.Sub(amount.DivRound(supply, powPrecision))
	exponent := ppmDec.DivRound(decimal.NewFromInt(int64(ratio)), powPrecision)
	power, err := base.PowWithPrecision(exponent, powPrecision)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err)
	}
	return balance.Mul(one.Sub(power)), nil
}

// SpotPrice returns the instantaneous collateral-per-bond price of the curve,
// balance * PPM / (supply * ratio).
func SpotPrice(supply, balance decimal.Decimal, ratio uint32) (decimal.Decimal, error) {
	if !ValidReserveRatio(ratio) {
		return decimal.Zero, apperrors.Newf(apperrors.KindInvalidReserveRatio, "reserve ratio %d ppm out of range", ratio)
	}
	if supply.Sign() <= 0 {
		return decimal.Zero, apperrors.New(apperrors.KindCurveDivisionByZero, "curve supply is zero, spot price undefined")
	}
	denom := supply.Mul(decimal.NewFromInt(int64(ratio)))
	return balance.Mul(ppmDec).DivRound(denom, powPrecision), nil
}
