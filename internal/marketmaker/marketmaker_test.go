package marketmaker

import (
	"testing"

	"github.com/curvebond/curvegate/internal/curve"
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/curvebond/curvegate/internal/registry"
	"github.com/curvebond/curvegate/internal/reserve"
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
	mm    *MarketMaker
	vault *reserve.Vault
	token *reserve.BondedToken
	reg   *registry.Registry
}

func newFixture(t *testing.T, buyFee, sellFee string) *fixture {
	t.Helper()
	reg := registry.New()
	_, err := reg.Add(dai, d("1000"), d("400"), 500000, decimal.Zero)
	require.NoError(t, err)

	vault := reserve.NewVault()
	token := reserve.NewBondedToken()
	mm := New(Config{
		BatchWindow: 10,
		BuyFeePct:   d(buyFee),
		SellFeePct:  d(sellFee),
		Beneficiary: beneficiary,
	}, reg, vault, token)
	return &fixture{mm: mm, vault: vault, token: token, reg: reg}
}

func TestOpenBuyOrderDeductsFee(t *testing.T) {
	f := newFixture(t, "0.01", "0")
	f.vault.Deposit(dai, alice, d("100"))

	res, err := f.mm.OpenBuyOrder(alice, dai, d("100"), 105)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.BatchID)
	assert.True(t, res.Fee.Equal(d("1")))
	assert.True(t, res.Amount.Equal(d("99")))

	// Net amount in the pool, fee with the beneficiary.
	assert.True(t, f.vault.BalanceOf(dai).Equal(d("99")))
	assert.True(t, f.vault.HolderBalance(dai, beneficiary).Equal(d("1")))

	batch, err := f.mm.GetBatch(dai, 100)
	require.NoError(t, err)
	assert.True(t, batch.TotalBuySpend.Equal(d("99")))
}

func TestOpenBuyOrderRejections(t *testing.T) {
	f := newFixture(t, "0", "0")
	f.vault.Deposit(dai, alice, d("10"))

	_, err := f.mm.OpenBuyOrder(alice, common.HexToAddress("0xdead"), d("10"), 100)
	assert.True(t, apperrors.Is(err, apperrors.KindNotWhitelisted))

	_, err = f.mm.OpenBuyOrder(alice, dai, decimal.Zero, 100)
	assert.True(t, apperrors.Is(err, apperrors.KindZeroAmount))

	_, err = f.mm.OpenBuyOrder(alice, dai, d("11"), 100)
	assert.True(t, apperrors.Is(err, apperrors.KindInsufficientFunds))

	// The rejected order must not be recorded.
	batch, err := f.mm.GetBatch(dai, 100)
	require.NoError(t, err)
	assert.True(t, batch.TotalBuySpend.IsZero())
}

func TestOpenSellOrderBurnsImmediately(t *testing.T) {
	f := newFixture(t, "0", "0")
	require.NoError(t, f.token.Mint(bob, d("50")))

	res, err := f.mm.OpenSellOrder(bob, dai, d("30"), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.BatchID)
	assert.True(t, f.token.BalanceOf(bob).Equal(d("20")), "tokens escrowed via burn at submit")

	// A second order cannot double-spend the escrowed tokens.
	_, err = f.mm.OpenSellOrder(bob, dai, d("30"), 101)
	assert.True(t, apperrors.Is(err, apperrors.KindInsufficientFunds))
}

// Buys and sells in one batch both clear against the batch-open snapshot.
func TestClearBatchesPricesAtOpenSnapshot(t *testing.T) {
	f := newFixture(t, "0", "0")
	f.vault.Deposit(dai, alice, d("100"))
	require.NoError(t, f.token.Mint(bob, d("50")))

	buyRes, err := f.mm.OpenBuyOrder(alice, dai, d("100"), 100)
	require.NoError(t, err)
	sellRes, err := f.mm.OpenSellOrder(bob, dai, d("50"), 105)
	require.NoError(t, err)
	require.Equal(t, buyRes.BatchID, sellRes.BatchID)

	open, err := f.mm.GetBatch(dai, buyRes.BatchID)
	require.NoError(t, err)

	cleared, err := f.mm.ClearBatches(115)
	require.NoError(t, err)
	require.Len(t, cleared, 1)
	batch := cleared[0]

	wantBuy, err := curve.BuyReturn(open.Supply, open.Balance, open.ReserveRatio, d("100"))
	require.NoError(t, err)
	wantSell, err := curve.SellReturn(open.Supply, open.Balance, open.ReserveRatio, d("50"))
	require.NoError(t, err)
	assert.True(t, batch.TotalBuyReturn.Equal(wantBuy))
	assert.True(t, batch.TotalSellReturn.Equal(wantSell), "sell return unaffected by the buy in the same batch")

	// Owed amounts are reserved for claimants.
	assert.True(t, f.mm.TokensToBeMinted().Equal(wantBuy))
	assert.True(t, f.mm.CollateralsToBeClaimed(dai).Equal(wantSell))
}

func TestClearBatchesNoopWhenNothingPending(t *testing.T) {
	f := newFixture(t, "0", "0")
	cleared, err := f.mm.ClearBatches(1000)
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestClaimBuyMintsAtMostOnce(t *testing.T) {
	f := newFixture(t, "0", "0")
	f.vault.Deposit(dai, alice, d("100"))

	res, err := f.mm.OpenBuyOrder(alice, dai, d("100"), 100)
	require.NoError(t, err)

	// Claim before clearing fails; the claim touch at 115 clears lazily.
	_, err = f.mm.ClaimBuy(alice, dai, res.BatchID, 109)
	assert.True(t, apperrors.Is(err, apperrors.KindBatchNotCleared))

	claim, err := f.mm.ClaimBuy(alice, dai, res.BatchID, 115)
	require.NoError(t, err)
	assert.True(t, claim.Amount.Sign() > 0)
	assert.True(t, f.token.BalanceOf(alice).Equal(claim.Amount))

	batch, err := f.mm.GetBatch(dai, res.BatchID)
	require.NoError(t, err)
	assert.True(t, claim.Amount.LessThanOrEqual(batch.TotalBuyReturn))

	_, err = f.mm.ClaimBuy(alice, dai, res.BatchID, 116)
	assert.True(t, apperrors.Is(err, apperrors.KindNothingToClaim))
}

func TestClaimSellPaysNetOfFee(t *testing.T) {
	f := newFixture(t, "0", "0.02")
	require.NoError(t, f.token.Mint(bob, d("50")))
	// Give the pool real liquidity to pay the claim from.
	f.vault.FundPool(dai, d("500"))

	res, err := f.mm.OpenSellOrder(bob, dai, d("50"), 100)
	require.NoError(t, err)

	claim, err := f.mm.ClaimSell(bob, dai, res.BatchID, 120)
	require.NoError(t, err)
	assert.True(t, claim.Fee.Sign() > 0)

	gross := claim.Amount.Add(claim.Fee)
	assert.True(t, claim.Fee.Equal(gross.Mul(d("0.02"))))
	assert.True(t, f.vault.HolderBalance(dai, bob).Equal(claim.Amount))
	assert.True(t, f.vault.HolderBalance(dai, beneficiary).Equal(claim.Fee))

	// Owed counter released.
	assert.True(t, f.mm.CollateralsToBeClaimed(dai).Abs().LessThan(d("0.000001")))

	_, err = f.mm.ClaimSell(bob, dai, res.BatchID, 121)
	assert.True(t, apperrors.Is(err, apperrors.KindNothingToClaim))
}

// Any touch clears elapsed batches across all collaterals.
func TestClearCascadesAcrossCollaterals(t *testing.T) {
	f := newFixture(t, "0", "0")
	_, err := f.reg.Add(model.ETH, d("1000"), d("400"), 300000, decimal.Zero)
	require.NoError(t, err)

	f.vault.Deposit(dai, alice, d("10"))
	f.vault.Deposit(model.ETH, alice, d("10"))
	f.vault.Deposit(dai, bob, d("10"))

	_, err = f.mm.OpenBuyOrder(alice, dai, d("10"), 100)
	require.NoError(t, err)
	_, err = f.mm.OpenBuyOrder(alice, model.ETH, d("10"), 105)
	require.NoError(t, err)

	// A buy in the next window on one collateral clears both pending batches.
	res, err := f.mm.OpenBuyOrder(bob, dai, d("10"), 112)
	require.NoError(t, err)
	require.Len(t, res.Cleared, 2)
	ids := map[common.Address]int64{}
	for _, b := range res.Cleared {
		assert.True(t, b.Cleared)
		ids[b.Collateral] = b.ID
	}
	assert.Equal(t, int64(100), ids[dai])
	assert.Equal(t, int64(100), ids[model.ETH])
}

func TestBuySlippageExceeded(t *testing.T) {
	f := newFixture(t, "0", "0")
	// Tight 1% tolerance on a steep curve.
	_, err := f.reg.Update(dai, d("1000"), d("400"), 100000, d("0.01"))
	require.NoError(t, err)
	f.vault.Deposit(dai, alice, d("500"))

	_, err = f.mm.OpenBuyOrder(alice, dai, d("400"), 100)
	assert.True(t, apperrors.Is(err, apperrors.KindSlippageExceeded))

	// A small order passes.
	_, err = f.mm.OpenBuyOrder(alice, dai, d("1"), 100)
	require.NoError(t, err)
}

func TestSellSlippageExceeded(t *testing.T) {
	f := newFixture(t, "0", "0")
	_, err := f.reg.Update(dai, d("1000"), d("400"), 100000, d("0.01"))
	require.NoError(t, err)
	require.NoError(t, f.token.Mint(bob, d("900")))

	_, err = f.mm.OpenSellOrder(bob, dai, d("800"), 100)
	assert.True(t, apperrors.Is(err, apperrors.KindSlippageExceeded))

	_, err = f.mm.OpenSellOrder(bob, dai, d("1"), 100)
	require.NoError(t, err)
}

// A sell claim whose payout the reserve cannot cover must survive to be
// retried once the reserve is funded.
func TestClaimSellSurvivesFailedPayout(t *testing.T) {
	f := newFixture(t, "0", "0")
	// Bonded tokens exist but the pool is empty: the sell return is priced
	// against the virtual balance and cannot be paid out yet.
	require.NoError(t, f.token.Mint(alice, d("500")))

	res, err := f.mm.OpenSellOrder(alice, dai, d("500"), 105)
	require.NoError(t, err)

	_, err = f.mm.ClaimSell(alice, dai, res.BatchID, 115)
	assert.True(t, apperrors.Is(err, apperrors.KindInsufficientFunds))

	// The claim is untouched: a retry fails the same way, not with
	// NothingToClaim.
	_, err = f.mm.ClaimSell(alice, dai, res.BatchID, 116)
	assert.True(t, apperrors.Is(err, apperrors.KindInsufficientFunds))
	owed := f.mm.CollateralsToBeClaimed(dai)
	assert.True(t, owed.Sign() > 0, "owed counter keeps the share reserved")

	// Once the reserve is funded the claim settles exactly once.
	f.vault.FundPool(dai, d("1000"))
	claim, err := f.mm.ClaimSell(alice, dai, res.BatchID, 117)
	require.NoError(t, err)
	assert.True(t, owed.Sub(claim.Amount).Abs().LessThan(d("0.000001")))
	assert.True(t, f.vault.HolderBalance(dai, alice).Equal(claim.Amount))

	_, err = f.mm.ClaimSell(alice, dai, res.BatchID, 118)
	assert.True(t, apperrors.Is(err, apperrors.KindNothingToClaim))
}

type failingMint struct {
	*reserve.BondedToken
	fail bool
}

func (m *failingMint) Mint(to common.Address, amount decimal.Decimal) error {
	if m.fail {
		return apperrors.New(apperrors.KindInternal, "mint unavailable")
	}
	return m.BondedToken.Mint(to, amount)
}

// A buy claim whose mint fails must survive to be retried.
func TestClaimBuySurvivesFailedMint(t *testing.T) {
	reg := registry.New()
	_, err := reg.Add(dai, d("1000"), d("400"), 500000, decimal.Zero)
	require.NoError(t, err)
	vault := reserve.NewVault()
	supply := &failingMint{BondedToken: reserve.NewBondedToken()}
	mm := New(Config{BatchWindow: 10, Beneficiary: beneficiary}, reg, vault, supply)
	vault.Deposit(dai, alice, d("100"))

	res, err := mm.OpenBuyOrder(alice, dai, d("100"), 105)
	require.NoError(t, err)

	supply.fail = true
	_, err = mm.ClaimBuy(alice, dai, res.BatchID, 115)
	require.Error(t, err)
	assert.True(t, mm.TokensToBeMinted().Sign() > 0, "owed counter keeps the share reserved")

	supply.fail = false
	claim, err := mm.ClaimBuy(alice, dai, res.BatchID, 116)
	require.NoError(t, err)
	assert.True(t, supply.BalanceOf(alice).Equal(claim.Amount))
	assert.True(t, mm.TokensToBeMinted().Abs().LessThan(d("0.000001")))

	_, err = mm.ClaimBuy(alice, dai, res.BatchID, 117)
	assert.True(t, apperrors.Is(err, apperrors.KindNothingToClaim))
}

// An order the curve cannot price at clear time is rejected at submission, so
// no batch can wedge the clearing cascade for the other collaterals.
func TestOrderIntoUnpriceableBatchRejected(t *testing.T) {
	f := newFixture(t, "0", "0")
	// A collateral with no virtual balance and an empty pool: any buy would
	// divide by a zero balance at clear time.
	bare := common.HexToAddress("0x00000000000000000000000000000000000000ba")
	_, err := f.reg.Add(bare, d("1000"), decimal.Zero, 500000, decimal.Zero)
	require.NoError(t, err)
	f.vault.Deposit(bare, alice, d("100"))
	f.vault.Deposit(dai, alice, d("100"))

	_, err = f.mm.OpenBuyOrder(alice, bare, d("100"), 105)
	assert.True(t, apperrors.Is(err, apperrors.KindCurveDivisionByZero))

	// The rejected order moved nothing.
	assert.True(t, f.vault.BalanceOf(bare).IsZero())
	batch, err := f.mm.GetBatch(bare, 100)
	require.NoError(t, err)
	assert.True(t, batch.TotalBuySpend.IsZero())

	// The dai market keeps working through the same and later windows.
	_, err = f.mm.OpenBuyOrder(alice, dai, d("100"), 105)
	require.NoError(t, err)
	claim, err := f.mm.ClaimBuy(alice, dai, 100, 120)
	require.NoError(t, err)
	assert.True(t, claim.Amount.Sign() > 0)

	_, err = f.mm.ClearBatches(130)
	require.NoError(t, err)
}

func TestUpdateFees(t *testing.T) {
	f := newFixture(t, "0", "0")
	require.NoError(t, f.mm.UpdateFees(d("0.05"), d("0.03")))
	err := f.mm.UpdateFees(d("1"), d("0"))
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))
	err = f.mm.UpdateFees(d("-0.1"), d("0"))
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))
}
