// Package batching aggregates buy and sell orders into time-bucketed batches
// and clears them against the bonding curve at batch-open snapshots.
package batching

import (
	"sort"

	"github.com/curvebond/curvegate/internal/curve"
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// claimPrecision is the number of fractional digits a settled claim is
// truncated to. Truncation rounds every share down, so the sum of claims can
// never exceed the cleared batch total.
const claimPrecision = 18

// BatchID floor-divides a unix-second timestamp into its window start.
func BatchID(now, window int64) int64 {
	return now - now%window
}

// Accumulator owns the batch history of every collateral. Like the registry it
// relies on the controller's transaction boundary instead of internal locking.
type Accumulator struct {
	window  int64
	batches map[common.Address]map[int64]*model.Batch
	pending map[common.Address][]int64 // uncleared batch ids, ascending
}

func New(window int64) *Accumulator {
	if window <= 0 {
		window = 1
	}
	return &Accumulator{
		window:  window,
		batches: make(map[common.Address]map[int64]*model.Batch),
		pending: make(map[common.Address][]int64),
	}
}

func (a *Accumulator) Window() int64 {
	return a.window
}

// CurrentBatchID returns the batch id covering now.
func (a *Accumulator) CurrentBatchID(now int64) int64 {
	return BatchID(now, a.window)
}

// Open initializes the batch for (collateral, id) with the given curve
// snapshot. Opening an already-initialized batch is a no-op; the original
// snapshot wins.
func (a *Accumulator) Open(collateral common.Address, id int64, supply, balance decimal.Decimal, ratio uint32, slippage decimal.Decimal) *model.Batch {
	byID, ok := a.batches[collateral]
	if !ok {
		byID = make(map[int64]*model.Batch)
		a.batches[collateral] = byID
	}
	if batch, ok := byID[id]; ok {
		return batch
	}

	batch := &model.Batch{
		Collateral:   collateral,
		ID:           id,
		Initialized:  true,
		Supply:       supply,
		Balance:      balance,
		ReserveRatio: ratio,
		Slippage:     slippage,
		Buyers:       make(map[common.Address]decimal.Decimal),
		Sellers:      make(map[common.Address]decimal.Decimal),
	}
	byID[id] = batch

	ids := append(a.pending[collateral], id)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	a.pending[collateral] = ids
	return batch
}

// Get returns a copy of the batch totals. The per-address ledgers are not
// exposed; settlement goes through SettleBuy/SettleSell.
func (a *Accumulator) Get(collateral common.Address, id int64) (*model.Batch, error) {
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return nil, err
	}
	cp := *batch
	cp.Buyers = nil
	cp.Sellers = nil
	return &cp, nil
}

func (a *Accumulator) lookup(collateral common.Address, id int64) (*model.Batch, error) {
	byID, ok := a.batches[collateral]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "no batch %d for collateral %s", id, collateral.Hex())
	}
	batch, ok := byID[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindNotFound, "no batch %d for collateral %s", id, collateral.Hex())
	}
	return batch, nil
}

// RecordBuy adds a net buy spend to the batch and the buyer's ledger entry.
func (a *Accumulator) RecordBuy(collateral common.Address, id int64, buyer common.Address, amount decimal.Decimal) error {
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return err
	}
	if batch.Cleared {
		return apperrors.Newf(apperrors.KindBatchAlreadyCleared, "batch %d already cleared", id)
	}
	batch.TotalBuySpend = batch.TotalBuySpend.Add(amount)
	batch.Buyers[buyer] = batch.Buyers[buyer].Add(amount)
	return nil
}

// RecordSell adds a bonded-token sell spend to the batch and the seller's
// ledger entry.
func (a *Accumulator) RecordSell(collateral common.Address, id int64, seller common.Address, amount decimal.Decimal) error {
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return err
	}
	if batch.Cleared {
		return apperrors.Newf(apperrors.KindBatchAlreadyCleared, "batch %d already cleared", id)
	}
	batch.TotalSellSpend = batch.TotalSellSpend.Add(amount)
	batch.Sellers[seller] = batch.Sellers[seller].Add(amount)
	return nil
}

// Clear settles the aggregate returns of one batch. The window must have fully
// elapsed and every older batch of the collateral must already be cleared.
func (a *Accumulator) Clear(collateral common.Address, id int64, now int64) (*model.Batch, error) {
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return nil, err
	}
	if batch.Cleared {
		return nil, apperrors.Newf(apperrors.KindAlreadyCleared, "batch %d already cleared", id)
	}
	if now < id+a.window {
		return nil, apperrors.Newf(apperrors.KindBatchWindowNotElapsed, "batch %d open until %d", id, id+a.window)
	}
	if pending := a.pending[collateral]; len(pending) > 0 && pending[0] != id {
		return nil, apperrors.Newf(apperrors.KindBatchWindowNotElapsed, "batch %d must clear after batch %d", id, pending[0])
	}

	buyReturn, err := curve.BuyReturn(batch.Supply, batch.Balance, batch.ReserveRatio, batch.TotalBuySpend)
	if err != nil {
		return nil, err
	}
	sellReturn, err := curve.SellReturn(batch.Supply, batch.Balance, batch.ReserveRatio, batch.TotalSellSpend)
	if err != nil {
		return nil, err
	}

	batch.TotalBuyReturn = buyReturn
	batch.TotalSellReturn = sellReturn
	batch.Cleared = true
	a.pending[collateral] = a.pending[collateral][1:]

	cp := *batch
	cp.Buyers = nil
	cp.Sellers = nil
	return &cp, nil
}

// ClearElapsed clears, in chronological order, every pending batch of the
// collateral whose window has elapsed. Batches that fail to price are left
// pending.
func (a *Accumulator) ClearElapsed(collateral common.Address, now int64) ([]*model.Batch, error) {
	var cleared []*model.Batch
	for {
		pending := a.pending[collateral]
		if len(pending) == 0 || now < pending[0]+a.window {
			return cleared, nil
		}
		batch, err := a.Clear(collateral, pending[0], now)
		if err != nil {
			return cleared, err
		}
		cleared = append(cleared, batch)
	}
}

// PendingCollaterals lists collaterals that still have uncleared batches.
func (a *Accumulator) PendingCollaterals() []common.Address {
	out := make([]common.Address, 0, len(a.pending))
	for collateral, ids := range a.pending {
		if len(ids) > 0 {
			out = append(out, collateral)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// BuyShare computes the buyer's pro-rata share of the cleared buy return
// without touching the ledger. Callers perform the external payout against
// this value and settle only once it succeeded.
func (a *Accumulator) BuyShare(collateral common.Address, id int64, buyer common.Address) (decimal.Decimal, error) {
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return decimal.Zero, err
	}
	if !batch.Cleared {
		return decimal.Zero, apperrors.Newf(apperrors.KindBatchNotCleared, "batch %d not cleared yet", id)
	}
	spend, ok := batch.Buyers[buyer]
	if !ok || spend.Sign() <= 0 {
		return decimal.Zero, apperrors.Newf(apperrors.KindNothingToClaim, "no buy to claim in batch %d", id)
	}
	return proRata(spend, batch.TotalBuyReturn, batch.TotalBuySpend), nil
}

// SellShare is the seller analog of BuyShare.
func (a *Accumulator) SellShare(collateral common.Address, id int64, seller common.Address) (decimal.Decimal, error) {
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return decimal.Zero, err
	}
	if !batch.Cleared {
		return decimal.Zero, apperrors.Newf(apperrors.KindBatchNotCleared, "batch %d not cleared yet", id)
	}
	spend, ok := batch.Sellers[seller]
	if !ok || spend.Sign() <= 0 {
		return decimal.Zero, apperrors.Newf(apperrors.KindNothingToClaim, "no sell to claim in batch %d", id)
	}
	return proRata(spend, batch.TotalSellReturn, batch.TotalSellSpend), nil
}

// SettleBuy returns the buyer's share and zeroes the ledger entry so a second
// settle fails.
func (a *Accumulator) SettleBuy(collateral common.Address, id int64, buyer common.Address) (decimal.Decimal, error) {
	share, err := a.BuyShare(collateral, id, buyer)
	if err != nil {
		return decimal.Zero, err
	}
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return decimal.Zero, err
	}
	delete(batch.Buyers, buyer)
	return share, nil
}

// SettleSell is the seller analog of SettleBuy.
func (a *Accumulator) SettleSell(collateral common.Address, id int64, seller common.Address) (decimal.Decimal, error) {
	share, err := a.SellShare(collateral, id, seller)
	if err != nil {
		return decimal.Zero, err
	}
	batch, err := a.lookup(collateral, id)
	if err != nil {
		return decimal.Zero, err
	}
	delete(batch.Sellers, seller)
	return share, nil
}

func proRata(spend, totalReturn, totalSpend decimal.Decimal) decimal.Decimal {
	if totalSpend.Sign() <= 0 {
		return decimal.Zero
	}
	return spend.Mul(totalReturn).DivRound(totalSpend, claimPrecision+10).Truncate(claimPrecision)
}
