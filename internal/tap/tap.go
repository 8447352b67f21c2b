// Package tap throttles how fast raised collateral can leave the reserve for
// the beneficiary: a per-collateral rate with a protected floor, and bounded
// rate-of-change across updates.
package tap

import (
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Reserve is the treasury the tap withdraws from.
type Reserve interface {
	BalanceOf(token common.Address) decimal.Decimal
	Transfer(token, to common.Address, amount decimal.Decimal) error
}

// ClaimsReserved reports collateral already owed elsewhere (pending sell-order
// claims); the tap must never withdraw into those funds.
type ClaimsReserved interface {
	CollateralsToBeClaimed(token common.Address) decimal.Decimal
}

// Config carries the tap governance parameters fixed at construction.
type Config struct {
	Beneficiary common.Address
	Cooldown    int64 // seconds between effective updates, e.g. 30 days
	// MaxRateIncreasePct bounds rate growth per cool-down period:
	// newRate <= rate * (1 + pct)^periods.
	MaxRateIncreasePct decimal.Decimal
	// MaxFloorDecreasePct bounds floor shrinkage per cool-down period:
	// newFloor >= floor * (1 - pct)^periods.
	MaxFloorDecreasePct decimal.Decimal
}

const envelopePrecision = 32

type Tap struct {
	reserve Reserve
	claims  ClaimsReserved
	cfg     Config
	taps    map[common.Address]*model.TapEntry
}

func New(cfg Config, reserve Reserve, claims ClaimsReserved) *Tap {
	return &Tap{
		reserve: reserve,
		claims:  claims,
		cfg:     cfg,
		taps:    make(map[common.Address]*model.TapEntry),
	}
}

func (t *Tap) Beneficiary() common.Address {
	return t.cfg.Beneficiary
}

// Add starts tapping a collateral. Both checkpoints start at now, so nothing
// is tappable before time passes.
func (t *Tap) Add(token common.Address, rate, floor decimal.Decimal, now int64) (*model.TapEntry, error) {
	if _, ok := t.taps[token]; ok {
		return nil, apperrors.Newf(apperrors.KindAlreadyTapped, "collateral %s already tapped", token.Hex())
	}
	if rate.Sign() <= 0 {
		return nil, apperrors.New(apperrors.KindZeroRate, "tap rate must be positive")
	}
	if floor.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "tap floor must not be negative")
	}

	entry := &model.TapEntry{
		Token:          token,
		Rate:           rate,
		Floor:          floor,
		LastWithdrawal: now,
		LastTapUpdate:  now,
	}
	t.taps[token] = entry
	out := *entry
	return &out, nil
}

// Update changes rate and floor within the bounded-growth envelope. The
// currently accrued tap is withdrawn first so the new rate cannot
// retroactively shrink or inflate what was already earned.
func (t *Tap) Update(token common.Address, newRate, newFloor decimal.Decimal, now int64) (*model.TapEntry, decimal.Decimal, error) {
	entry, ok := t.taps[token]
	if !ok {
		return nil, decimal.Zero, apperrors.Newf(apperrors.KindNotTapped, "collateral %s not tapped", token.Hex())
	}
	if newRate.Sign() <= 0 {
		return nil, decimal.Zero, apperrors.New(apperrors.KindZeroRate, "tap rate must be positive")
	}
	if newFloor.IsNegative() {
		return nil, decimal.Zero, apperrors.New(apperrors.KindInvalidRequest, "tap floor must not be negative")
	}

	changed := !newRate.Equal(entry.Rate) || !newFloor.Equal(entry.Floor)
	if !changed {
		out := *entry
		return &out, decimal.Zero, nil
	}

	elapsed := now - entry.LastTapUpdate
	if elapsed < t.cfg.Cooldown {
		return nil, decimal.Zero, apperrors.Newf(apperrors.KindUpdateTooSoon, "tap updated %ds ago, cool-down is %ds", elapsed, t.cfg.Cooldown)
	}

	periods := decimal.NewFromInt(elapsed).DivRound(decimal.NewFromInt(t.cfg.Cooldown), envelopePrecision)
	if newRate.GreaterThan(entry.Rate) {
		maxRate, err := growthBound(entry.Rate, decimal.NewFromInt(1).Add(t.cfg.MaxRateIncreasePct), periods)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if newRate.GreaterThan(maxRate) {
			return nil, decimal.Zero, apperrors.Newf(apperrors.KindRateIncreaseTooLarge, "rate %s exceeds envelope %s", newRate, maxRate)
		}
	}
	if newFloor.LessThan(entry.Floor) {
		minFloor, err := growthBound(entry.Floor, decimal.NewFromInt(1).Sub(t.cfg.MaxFloorDecreasePct), periods)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if newFloor.LessThan(minFloor) {
			return nil, decimal.Zero, apperrors.Newf(apperrors.KindFloorDecreaseTooLarge, "floor %s below envelope %s", newFloor, minFloor)
		}
	}

	// Flush the accrued tap at the old rate before switching.
	withdrawn, err := t.withdrawMax(entry, now)
	if err != nil {
		return nil, decimal.Zero, err
	}

	entry.Rate = newRate
	entry.Floor = newFloor
	entry.LastTapUpdate = now
	entry.LastWithdrawal = now
	out := *entry
	return &out, withdrawn, nil
}

// Reset re-stamps both checkpoints without touching rate or floor. Used after
// large external reserve top-ups so the accrued window does not turn into an
// instant spike.
func (t *Tap) Reset(token common.Address, now int64) (*model.TapEntry, error) {
	entry, ok := t.taps[token]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotTapped, "collateral %s not tapped", token.Hex())
	}
	entry.LastWithdrawal = now
	entry.LastTapUpdate = now
	out := *entry
	return &out, nil
}

// Remove stops tapping the collateral and zeroes all fields.
func (t *Tap) Remove(token common.Address) error {
	if _, ok := t.taps[token]; !ok {
		return apperrors.Newf(apperrors.KindNotTapped, "collateral %s not tapped", token.Hex())
	}
	delete(t.taps, token)
	return nil
}

func (t *Tap) Get(token common.Address) (*model.TapEntry, error) {
	entry, ok := t.taps[token]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotTapped, "collateral %s not tapped", token.Hex())
	}
	out := *entry
	return &out, nil
}

// MaximumWithdrawal returns what the tap may release right now:
// min(rate * elapsed, balance - floor - reservedClaims), clamped to zero.
func (t *Tap) MaximumWithdrawal(token common.Address, now int64) (decimal.Decimal, error) {
	entry, ok := t.taps[token]
	if !ok {
		return decimal.Zero, apperrors.Newf(apperrors.KindNotTapped, "collateral %s not tapped", token.Hex())
	}
	return t.maximum(entry, now), nil
}

func (t *Tap) maximum(entry *model.TapEntry, now int64) decimal.Decimal {
	elapsed := now - entry.LastWithdrawal
	if elapsed <= 0 {
		return decimal.Zero
	}
	accrued := entry.Rate.Mul(decimal.NewFromInt(elapsed))

	available := t.reserve.BalanceOf(entry.Token).Sub(entry.Floor)
	if t.claims != nil {
		available = available.Sub(t.claims.CollateralsToBeClaimed(entry.Token))
	}
	if available.Sign() <= 0 {
		return decimal.Zero
	}
	if accrued.GreaterThan(available) {
		return available
	}
	return accrued
}

// Withdraw transfers the maximum tappable amount to the beneficiary and
// advances the withdrawal checkpoint.
func (t *Tap) Withdraw(token common.Address, now int64) (decimal.Decimal, error) {
	entry, ok := t.taps[token]
	if !ok {
		return decimal.Zero, apperrors.Newf(apperrors.KindNotTapped, "collateral %s not tapped", token.Hex())
	}
	amount := t.maximum(entry, now)
	if amount.Sign() <= 0 {
		return decimal.Zero, apperrors.Newf(apperrors.KindNothingToWithdraw, "nothing to withdraw for %s", token.Hex())
	}
	if err := t.reserve.Transfer(token, t.cfg.Beneficiary, amount); err != nil {
		return decimal.Zero, err
	}
	entry.LastWithdrawal = now
	return amount, nil
}

func (t *Tap) withdrawMax(entry *model.TapEntry, now int64) (decimal.Decimal, error) {
	amount := t.maximum(entry, now)
	if amount.Sign() <= 0 {
		entry.LastWithdrawal = now
		return decimal.Zero, nil
	}
	if err := t.reserve.Transfer(entry.Token, t.cfg.Beneficiary, amount); err != nil {
		return decimal.Zero, err
	}
	entry.LastWithdrawal = now
	return amount, nil
}

func growthBound(base, factor, periods decimal.Decimal) (decimal.Decimal, error) {
	if base.Sign() <= 0 {
		return base, nil
	}
	if factor.Sign() <= 0 {
		// A 100% floor decrease allowance collapses the envelope to zero.
		return decimal.Zero, nil
	}
	grown, err := factor.PowWithPrecision(periods, envelopePrecision)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err)
	}
	return base.Mul(grown), nil
}
