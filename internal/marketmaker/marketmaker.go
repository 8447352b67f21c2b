// Package marketmaker orchestrates order submission, batch lifecycle and claim
// settlement for the batched bonding-curve market.
package marketmaker

import (
	"github.com/curvebond/curvegate/internal/batching"
	"github.com/curvebond/curvegate/internal/curve"
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/curvebond/curvegate/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Reserve is the treasury the market maker deposits collateral into and pays
// sell claims out of.
type Reserve interface {
	BalanceOf(token common.Address) decimal.Decimal
	Transfer(token, to common.Address, amount decimal.Decimal) error
	Receive(token, from common.Address, amount decimal.Decimal) error
}

// TokenSupply is the bonded-token mint/burn ledger.
type TokenSupply interface {
	Mint(to common.Address, amount decimal.Decimal) error
	Burn(from common.Address, amount decimal.Decimal) error
	TotalSupply() decimal.Decimal
	BalanceOf(addr common.Address) decimal.Decimal
}

// Config carries the market parameters fixed at construction.
type Config struct {
	BatchWindow int64 // seconds per batch
	BuyFeePct   decimal.Decimal
	SellFeePct  decimal.Decimal
	Beneficiary common.Address
}

// MarketMaker owns the collateral registry and the batch history. Buy
// collateral enters the reserve at submission (net of fee); bonded tokens are
// burned at sell submission; minting and sell payouts happen at claim time.
// The owed amounts are tracked so batch snapshots and the tap exclude funds
// already promised to cleared orders.
type MarketMaker struct {
	reg     *registry.Registry
	acc     *batching.Accumulator
	reserve Reserve
	supply  TokenSupply

	buyFeePct   decimal.Decimal
	sellFeePct  decimal.Decimal
	beneficiary common.Address

	tokensToBeMinted       decimal.Decimal
	collateralsToBeClaimed map[common.Address]decimal.Decimal
}

// OrderResult reports a submitted order along with any batches the touch
// cleared on the way in.
type OrderResult struct {
	BatchID int64
	Amount  decimal.Decimal // net amount recorded into the batch
	Fee     decimal.Decimal
	Cleared []*model.Batch
}

// ClaimResult reports a settled claim.
type ClaimResult struct {
	Amount  decimal.Decimal // paid to the claimant, net of sell fee
	Fee     decimal.Decimal
	Cleared []*model.Batch
}

func New(cfg Config, reg *registry.Registry, reserve Reserve, supply TokenSupply) *MarketMaker {
	return &MarketMaker{
		reg:                    reg,
		acc:                    batching.New(cfg.BatchWindow),
		reserve:                reserve,
		supply:                 supply,
		buyFeePct:              cfg.BuyFeePct,
		sellFeePct:             cfg.SellFeePct,
		beneficiary:            cfg.Beneficiary,
		collateralsToBeClaimed: make(map[common.Address]decimal.Decimal),
	}
}

func (m *MarketMaker) Registry() *registry.Registry {
	return m.reg
}

func (m *MarketMaker) CurrentBatchID(now int64) int64 {
	return m.acc.CurrentBatchID(now)
}

func (m *MarketMaker) GetBatch(collateral common.Address, id int64) (*model.Batch, error) {
	return m.acc.Get(collateral, id)
}

// CollateralsToBeClaimed returns the collateral owed to cleared but unclaimed
// sell orders. The tap consumes this to avoid tapping promised funds.
func (m *MarketMaker) CollateralsToBeClaimed(token common.Address) decimal.Decimal {
	return m.collateralsToBeClaimed[token]
}

// TokensToBeMinted returns the bonded tokens owed to cleared but unclaimed
// buy orders.
func (m *MarketMaker) TokensToBeMinted() decimal.Decimal {
	return m.tokensToBeMinted
}

// UpdateFees replaces the buy/sell fee percentages. Fees are fractions in
// [0, 1).
func (m *MarketMaker) UpdateFees(buyFeePct, sellFeePct decimal.Decimal) error {
	one := decimal.NewFromInt(1)
	if buyFeePct.IsNegative() || sellFeePct.IsNegative() ||
		buyFeePct.GreaterThanOrEqual(one) || sellFeePct.GreaterThanOrEqual(one) {
		return apperrors.New(apperrors.KindInvalidRequest, "fee percentages must be in [0, 1)")
	}
	m.buyFeePct = buyFeePct
	m.sellFeePct = sellFeePct
	return nil
}

// AdvanceBatches clears, across every collateral, all pending batches whose
// window has elapsed. It runs at the top of every public operation, which is
// what makes clearing lazy: time passing is only observed on the next touch.
func (m *MarketMaker) AdvanceBatches(now int64) ([]*model.Batch, error) {
	var cleared []*model.Batch
	var firstErr error
	for _, collateral := range m.acc.PendingCollaterals() {
		batches, err := m.acc.ClearElapsed(collateral, now)
		// Credit each batch the moment it clears; a later failure in the
		// cascade must not leave cleared batches claimable but unaccounted.
		for _, batch := range batches {
			m.tokensToBeMinted = m.tokensToBeMinted.Add(batch.TotalBuyReturn)
			m.collateralsToBeClaimed[batch.Collateral] = m.collateralsToBeClaimed[batch.Collateral].Add(batch.TotalSellReturn)
		}
		cleared = append(cleared, batches...)
		// A collateral whose head batch fails to price stays pending; the
		// rest of the cascade proceeds.
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return cleared, firstErr
}

// ClearBatches is the explicit clear trigger; a no-op when nothing is ready.
func (m *MarketMaker) ClearBatches(now int64) ([]*model.Batch, error) {
	return m.AdvanceBatches(now)
}

// OpenBuyOrder deducts the buy fee, moves the remainder into the reserve and
// records the buy into the current batch. Returns the batch id the order
// landed in.
func (m *MarketMaker) OpenBuyOrder(buyer, collateral common.Address, amount decimal.Decimal, now int64) (*OrderResult, error) {
	col, err := m.whitelisted(collateral)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, apperrors.New(apperrors.KindZeroAmount, "buy amount must be positive")
	}

	cleared, err := m.AdvanceBatches(now)
	if err != nil {
		return nil, err
	}
	batch := m.openCurrentBatch(col, now)

	fee := amount.Mul(m.buyFeePct)
	net := amount.Sub(fee)

	// The batch must remain priceable at clear time; an order the curve
	// cannot price would leave the batch stuck pending and is rejected here.
	if _, err := curve.BuyReturn(batch.Supply, batch.Balance, batch.ReserveRatio, batch.TotalBuySpend.Add(net)); err != nil {
		return nil, err
	}
	if err := m.checkBuySlippage(batch, net); err != nil {
		return nil, err
	}
	if err := m.reserve.Receive(collateral, buyer, amount); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := m.reserve.Transfer(collateral, m.beneficiary, fee); err != nil {
			return nil, err
		}
	}
	if err := m.acc.RecordBuy(collateral, batch.ID, buyer, net); err != nil {
		return nil, err
	}

	return &OrderResult{BatchID: batch.ID, Amount: net, Fee: fee, Cleared: cleared}, nil
}

// OpenSellOrder burns the seller's bonded tokens immediately (escrow, so the
// same tokens cannot back two orders) and records the sell into the current
// batch.
func (m *MarketMaker) OpenSellOrder(seller, collateral common.Address, amount decimal.Decimal, now int64) (*OrderResult, error) {
	col, err := m.whitelisted(collateral)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, apperrors.New(apperrors.KindZeroAmount, "sell amount must be positive")
	}
	if m.supply.BalanceOf(seller).LessThan(amount) {
		return nil, apperrors.Newf(apperrors.KindInsufficientFunds, "seller holds %s bonded tokens, cannot sell %s", m.supply.BalanceOf(seller), amount)
	}

	cleared, err := m.AdvanceBatches(now)
	if err != nil {
		return nil, err
	}
	batch := m.openCurrentBatch(col, now)

	if _, err := curve.SellReturn(batch.Supply, batch.Balance, batch.ReserveRatio, batch.TotalSellSpend.Add(amount)); err != nil {
		return nil, err
	}
	if err := m.checkSellSlippage(batch, amount); err != nil {
		return nil, err
	}
	if err := m.supply.Burn(seller, amount); err != nil {
		return nil, err
	}
	if err := m.acc.RecordSell(collateral, batch.ID, seller, amount); err != nil {
		return nil, err
	}

	return &OrderResult{BatchID: batch.ID, Amount: amount, Cleared: cleared}, nil
}

// ClaimBuy mints the buyer's pro-rata share of a cleared batch's buy return.
// The ledger entry is settled only after the mint succeeded, so a failed mint
// leaves the claim intact for a retry.
func (m *MarketMaker) ClaimBuy(buyer, collateral common.Address, id int64, now int64) (*ClaimResult, error) {
	cleared, err := m.AdvanceBatches(now)
	if err != nil {
		return nil, err
	}
	share, err := m.acc.BuyShare(collateral, id, buyer)
	if err != nil {
		return nil, err
	}
	if err := m.supply.Mint(buyer, share); err != nil {
		return nil, err
	}
	if _, err := m.acc.SettleBuy(collateral, id, buyer); err != nil {
		return nil, err
	}
	m.tokensToBeMinted = m.tokensToBeMinted.Sub(share)
	return &ClaimResult{Amount: share, Cleared: cleared}, nil
}

// ClaimSell pays out the seller's pro-rata share of a cleared batch's sell
// return from the reserve, net of the sell fee. The reserve must cover the
// full share before anything moves; an unfunded payout leaves the claim
// intact for a retry once the reserve is topped up.
func (m *MarketMaker) ClaimSell(seller, collateral common.Address, id int64, now int64) (*ClaimResult, error) {
	cleared, err := m.AdvanceBatches(now)
	if err != nil {
		return nil, err
	}
	share, err := m.acc.SellShare(collateral, id, seller)
	if err != nil {
		return nil, err
	}
	if m.reserve.BalanceOf(collateral).LessThan(share) {
		return nil, apperrors.Newf(apperrors.KindInsufficientFunds, "reserve holds %s, cannot pay out %s", m.reserve.BalanceOf(collateral), share)
	}

	fee := share.Mul(m.sellFeePct)
	payout := share.Sub(fee)
	if err := m.reserve.Transfer(collateral, seller, payout); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := m.reserve.Transfer(collateral, m.beneficiary, fee); err != nil {
			return nil, err
		}
	}
	if _, err := m.acc.SettleSell(collateral, id, seller); err != nil {
		return nil, err
	}
	m.collateralsToBeClaimed[collateral] = m.collateralsToBeClaimed[collateral].Sub(share)
	return &ClaimResult{Amount: payout, Fee: fee, Cleared: cleared}, nil
}

func (m *MarketMaker) whitelisted(collateral common.Address) (*model.CollateralToken, error) {
	col, err := m.reg.Get(collateral)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindNotWhitelisted, "collateral %s not whitelisted", collateral.Hex())
	}
	return col, nil
}

// openCurrentBatch initializes the current window's batch with supply and
// balance snapshots. Amounts already owed to cleared orders are excluded so
// pending claims are not priced twice.
func (m *MarketMaker) openCurrentBatch(col *model.CollateralToken, now int64) *model.Batch {
	supply := m.supply.TotalSupply().
		Add(m.tokensToBeMinted).
		Add(col.VirtualSupply)
	balance := m.reserve.BalanceOf(col.Token).
		Sub(m.collateralsToBeClaimed[col.Token]).
		Add(col.VirtualBalance)
	return m.acc.Open(col.Token, m.acc.CurrentBatchID(now), supply, balance, col.ReserveRatio, col.Slippage)
}

// checkBuySlippage rejects a buy that would push the batch's effective price
// above the batch-open spot price by more than the collateral's tolerance.
func (m *MarketMaker) checkBuySlippage(batch *model.Batch, net decimal.Decimal) error {
	if batch.Slippage.Sign() <= 0 {
		return nil
	}
	startPrice, err := curve.SpotPrice(batch.Supply, batch.Balance, batch.ReserveRatio)
	if err != nil {
		return err
	}
	spend := batch.TotalBuySpend.Add(net)
	bought, err := curve.BuyReturn(batch.Supply, batch.Balance, batch.ReserveRatio, spend)
	if err != nil {
		return err
	}
	if bought.Sign() <= 0 {
		return apperrors.New(apperrors.KindCurveDivisionByZero, "buy return is zero, effective price undefined")
	}
	effective := spend.Div(bought)
	limit := startPrice.Mul(decimal.NewFromInt(1).Add(batch.Slippage))
	if effective.GreaterThan(limit) {
		return apperrors.Newf(apperrors.KindSlippageExceeded, "effective buy price %s exceeds limit %s", effective, limit)
	}
	return nil
}

// checkSellSlippage rejects a sell that would push the batch's effective price
// below the batch-open spot price by more than the collateral's tolerance.
func (m *MarketMaker) checkSellSlippage(batch *model.Batch, amount decimal.Decimal) error {
	if batch.Slippage.Sign() <= 0 {
		return nil
	}
	startPrice, err := curve.SpotPrice(batch.Supply, batch.Balance, batch.ReserveRatio)
	if err != nil {
		return err
	}
	spend := batch.TotalSellSpend.Add(amount)
	returned, err := curve.SellReturn(batch.Supply, batch.Balance, batch.ReserveRatio, spend)
	if err != nil {
		return err
	}
	effective := returned.Div(spend)
	limit := startPrice.Mul(decimal.NewFromInt(1).Sub(batch.Slippage))
	if effective.LessThan(limit) {
		return apperrors.Newf(apperrors.KindSlippageExceeded, "effective sell price %s below limit %s", effective, limit)
	}
	return nil
}
