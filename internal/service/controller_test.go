package service

import (
	"context"
	"testing"

	"github.com/curvebond/curvegate/internal/marketmaker"
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/curvebond/curvegate/internal/registry"
	"github.com/curvebond/curvegate/internal/reserve"
	"github.com/curvebond/curvegate/internal/tap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dai         = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	beneficiary = common.HexToAddress("0x000000000000000000000000000000000000feee")
)

func d(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

type fixture struct {
	ctrl  *Controller
	vault *reserve.Vault
	token *reserve.BondedToken
	clock *ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	vault := reserve.NewVault()
	token := reserve.NewBondedToken()
	mm := marketmaker.New(marketmaker.Config{
		BatchWindow: 10,
		BuyFeePct:   decimal.Zero,
		SellFeePct:  decimal.Zero,
		Beneficiary: beneficiary,
	}, reg, vault, token)
	tp := tap.New(tap.Config{
		Beneficiary:         beneficiary,
		Cooldown:            100,
		MaxRateIncreasePct:  d("0.5"),
		MaxFloorDecreasePct: d("0.2"),
	}, vault, mm)
	journal, err := NewEventJournal(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(journal.Close)

	clock := &ManualClock{T: 100}
	return &fixture{
		ctrl:  NewController(mm, tp, clock, journal),
		vault: vault,
		token: token,
		clock: clock,
	}
}

func eventTypes(t *testing.T, f *fixture) map[model.EventType]int {
	t.Helper()
	events, err := f.ctrl.Journal().List(context.Background(), 0)
	require.NoError(t, err)
	out := make(map[model.EventType]int)
	for _, event := range events {
		out[event.Type]++
	}
	return out
}

func TestControllerCollateralLifecycle(t *testing.T) {
	f := newFixture(t)

	col, err := f.ctrl.AddCollateral(dai, d("1000"), d("400"), 500000, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, uint32(500000), col.ReserveRatio)

	_, err = f.ctrl.AddCollateral(dai, d("1"), d("1"), 500000, decimal.Zero)
	assert.True(t, apperrors.Is(err, apperrors.KindAlreadyExists))

	_, err = f.ctrl.UpdateCollateral(dai, d("2000"), d("800"), 500000, d("0.1"))
	require.NoError(t, err)

	cols := f.ctrl.ListCollaterals()
	require.Len(t, cols, 1)
	assert.True(t, cols[0].VirtualSupply.Equal(d("2000")))

	require.NoError(t, f.ctrl.RemoveCollateral(dai))
	assert.Empty(t, f.ctrl.ListCollaterals())

	types := eventTypes(t, f)
	assert.Equal(t, 1, types[model.EventAddCollateralToken])
	assert.Equal(t, 1, types[model.EventUpdateCollateralToken])
	assert.Equal(t, 1, types[model.EventRemoveCollateralToken])
}

// Orders in one window settle against the batch-open snapshot; claims arriving
// after the window lazily clear the batch on the way in.
func TestControllerOrderFlow(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.AddCollateral(dai, d("1000"), d("400"), 500000, decimal.Zero)
	require.NoError(t, err)
	f.vault.Deposit(dai, alice, d("400"))

	f.clock.T = 105
	res, err := f.ctrl.OpenBuyOrder(alice, dai, d("400"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.BatchID)
	assert.Empty(t, res.Cleared)

	// Same-window view: the batch exists but is not cleared yet.
	batch, err := f.ctrl.GetBatch(dai, 100)
	require.NoError(t, err)
	assert.False(t, batch.Cleared)

	f.clock.Advance(10)
	claim, err := f.ctrl.ClaimBuy(alice, dai, 100)
	require.NoError(t, err)
	require.Len(t, claim.Cleared, 1)
	// supply 1000, balance 400, ratio 1/2: a 400 buy doubles the balance and
	// mints supply*(sqrt(2)-1).
	assert.True(t, claim.Amount.Sub(d("414.2135623730950488")).Abs().LessThan(d("0.000001")), "got %s", claim.Amount)
	assert.True(t, f.token.BalanceOf(alice).Equal(claim.Amount))

	_, err = f.ctrl.ClaimBuy(alice, dai, 100)
	assert.True(t, apperrors.Is(err, apperrors.KindNothingToClaim))

	types := eventTypes(t, f)
	assert.Equal(t, 1, types[model.EventOpenBuyOrder])
	assert.Equal(t, 1, types[model.EventClearBatch])
	assert.Equal(t, 1, types[model.EventClaimBuyOrder])
}

func TestControllerSellFlow(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.AddCollateral(dai, d("1000"), d("400"), 500000, decimal.Zero)
	require.NoError(t, err)
	f.vault.Deposit(dai, bob, d("400"))

	f.clock.T = 105
	_, err = f.ctrl.OpenBuyOrder(bob, dai, d("400"))
	require.NoError(t, err)
	f.clock.Advance(10)
	claim, err := f.ctrl.ClaimBuy(bob, dai, 100)
	require.NoError(t, err)

	res, err := f.ctrl.OpenSellOrder(bob, dai, claim.Amount)
	require.NoError(t, err)
	assert.Equal(t, int64(110), res.BatchID)
	assert.True(t, f.token.BalanceOf(bob).IsZero(), "bonded tokens burn at submission")

	f.clock.Advance(10)
	sellClaim, err := f.ctrl.ClaimSell(bob, dai, 110)
	require.NoError(t, err)
	assert.True(t, sellClaim.Amount.Sign() > 0)
	assert.True(t, f.vault.HolderBalance(dai, bob).Equal(sellClaim.Amount))

	types := eventTypes(t, f)
	assert.Equal(t, 1, types[model.EventOpenSellOrder])
	assert.Equal(t, 1, types[model.EventClaimSellOrder])
	assert.Equal(t, 2, types[model.EventClearBatch])
}

func TestControllerRejectionEmitsNoEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.OpenBuyOrder(alice, dai, d("10"))
	assert.True(t, apperrors.Is(err, apperrors.KindNotWhitelisted))

	types := eventTypes(t, f)
	assert.Zero(t, types[model.EventOpenBuyOrder])
}

// Withdraw clears elapsed batches first so pending sell claims stay reserved
// against the tap.
func TestControllerWithdrawSeesReservedClaims(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.AddCollateral(dai, d("1000"), d("400"), 500000, decimal.Zero)
	require.NoError(t, err)
	f.vault.Deposit(dai, alice, d("400"))

	f.clock.T = 105
	_, err = f.ctrl.OpenBuyOrder(alice, dai, d("400"))
	require.NoError(t, err)
	f.clock.Advance(10)
	claim, err := f.ctrl.ClaimBuy(alice, dai, 100)
	require.NoError(t, err)

	// Sell everything back, then leave the claim pending.
	_, err = f.ctrl.OpenSellOrder(alice, dai, claim.Amount)
	require.NoError(t, err)

	_, err = f.ctrl.AddTappedToken(dai, d("1000"), decimal.Zero)
	require.NoError(t, err)

	f.clock.Advance(10)
	// The sell batch clears on the withdraw touch; its payout is owed to alice
	// and everything in the pool is promised, so the tap gets nothing.
	_, err = f.ctrl.Withdraw(dai)
	assert.True(t, apperrors.Is(err, apperrors.KindNothingToWithdraw))

	owed, err := f.ctrl.ClaimSell(alice, dai, 110)
	require.NoError(t, err)
	assert.True(t, owed.Amount.Sign() > 0)
}

func TestControllerTapLifecycle(t *testing.T) {
	f := newFixture(t)
	f.vault.FundPool(dai, d("1000"))

	entry, err := f.ctrl.AddTappedToken(dai, d("10"), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.LastWithdrawal)

	f.clock.Advance(20)
	maxOut, err := f.ctrl.GetMaximumWithdrawal(dai)
	require.NoError(t, err)
	assert.True(t, maxOut.Equal(d("200")))

	amount, err := f.ctrl.Withdraw(dai)
	require.NoError(t, err)
	assert.True(t, amount.Equal(d("200")))
	assert.True(t, f.vault.HolderBalance(dai, beneficiary).Equal(d("200")))

	f.clock.Advance(100)
	entry, err = f.ctrl.UpdateTappedToken(dai, d("15"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, entry.Rate.Equal(d("15")))

	_, err = f.ctrl.ResetTappedToken(dai)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.RemoveTappedToken(dai))
	_, err = f.ctrl.GetTappedToken(dai)
	assert.True(t, apperrors.Is(err, apperrors.KindNotTapped))

	types := eventTypes(t, f)
	assert.Equal(t, 1, types[model.EventAddTappedToken])
	assert.Equal(t, 1, types[model.EventUpdateTappedToken])
	assert.Equal(t, 1, types[model.EventResetTappedToken])
	assert.Equal(t, 1, types[model.EventRemoveTappedToken])
	// The explicit withdrawal plus the flush inside the update.
	assert.Equal(t, 2, types[model.EventWithdraw])
}

func TestControllerClearBatchesNoop(t *testing.T) {
	f := newFixture(t)
	cleared, err := f.ctrl.ClearBatches()
	require.NoError(t, err)
	assert.Empty(t, cleared)
}
