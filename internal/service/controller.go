package service

import (
	"strconv"
	"sync"

	"github.com/curvebond/curvegate/internal/marketmaker"
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/curvebond/curvegate/internal/pkg/metrics"
	"github.com/curvebond/curvegate/internal/registry"
	"github.com/curvebond/curvegate/internal/tap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Controller is the transaction boundary around the market maker and the tap.
// One mutex serializes every public operation, reproducing the single-threaded
// all-or-nothing execution model the core's invariants assume; no operation
// suspends mid-mutation. Elapsed batches are advanced at the top of every
// state-changing operation (clearing is lazy, driven by touches).
type Controller struct {
	mu      sync.Mutex
	mm      *marketmaker.MarketMaker
	tap     *tap.Tap
	clock   Clock
	journal *EventJournal
}

func NewController(mm *marketmaker.MarketMaker, tp *tap.Tap, clock Clock, journal *EventJournal) *Controller {
	return &Controller{mm: mm, tap: tp, clock: clock, journal: journal}
}

func (c *Controller) Registry() *registry.Registry {
	return c.mm.Registry()
}

// --- market maker ---

func (c *Controller) OpenBuyOrder(buyer, collateral common.Address, amount decimal.Decimal) (*marketmaker.OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	res, err := c.mm.OpenBuyOrder(buyer, collateral, amount, now)
	if err != nil {
		c.reject(err)
		metrics.OrdersTotal.WithLabelValues("buy", "rejected").Inc()
		return nil, err
	}
	c.emitCleared(res.Cleared, now)
	metrics.OrdersTotal.WithLabelValues("buy", "accepted").Inc()
	c.journal.Record(model.EventOpenBuyOrder, collateral, now, map[string]string{
		"buyer":    buyer.Hex(),
		"batch_id": strconv.FormatInt(res.BatchID, 10),
		"amount":   res.Amount.String(),
		"fee":      res.Fee.String(),
	})
	return res, nil
}

func (c *Controller) OpenSellOrder(seller, collateral common.Address, amount decimal.Decimal) (*marketmaker.OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	res, err := c.mm.OpenSellOrder(seller, collateral, amount, now)
	if err != nil {
		c.reject(err)
		metrics.OrdersTotal.WithLabelValues("sell", "rejected").Inc()
		return nil, err
	}
	c.emitCleared(res.Cleared, now)
	metrics.OrdersTotal.WithLabelValues("sell", "accepted").Inc()
	c.journal.Record(model.EventOpenSellOrder, collateral, now, map[string]string{
		"seller":   seller.Hex(),
		"batch_id": strconv.FormatInt(res.BatchID, 10),
		"amount":   res.Amount.String(),
	})
	return res, nil
}

func (c *Controller) ClearBatches() ([]*model.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	cleared, err := c.mm.ClearBatches(now)
	c.emitCleared(cleared, now)
	if err != nil {
		c.reject(err)
		return cleared, err
	}
	return cleared, nil
}

func (c *Controller) GetBatch(collateral common.Address, id int64) (*model.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mm.GetBatch(collateral, id)
}

func (c *Controller) ClaimBuy(buyer, collateral common.Address, id int64) (*marketmaker.ClaimResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	res, err := c.mm.ClaimBuy(buyer, collateral, id, now)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	c.emitCleared(res.Cleared, now)
	metrics.ClaimsTotal.WithLabelValues("buy").Inc()
	c.journal.Record(model.EventClaimBuyOrder, collateral, now, map[string]string{
		"buyer":    buyer.Hex(),
		"batch_id": strconv.FormatInt(id, 10),
		"amount":   res.Amount.String(),
	})
	return res, nil
}

func (c *Controller) ClaimSell(seller, collateral common.Address, id int64) (*marketmaker.ClaimResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	res, err := c.mm.ClaimSell(seller, collateral, id, now)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	c.emitCleared(res.Cleared, now)
	metrics.ClaimsTotal.WithLabelValues("sell").Inc()
	c.journal.Record(model.EventClaimSellOrder, collateral, now, map[string]string{
		"seller":   seller.Hex(),
		"batch_id": strconv.FormatInt(id, 10),
		"amount":   res.Amount.String(),
		"fee":      res.Fee.String(),
	})
	return res, nil
}

func (c *Controller) UpdateFees(buyFeePct, sellFeePct decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mm.UpdateFees(buyFeePct, sellFeePct); err != nil {
		c.reject(err)
		return err
	}
	return nil
}

// --- collateral registry ---

func (c *Controller) AddCollateral(token common.Address, virtualSupply, virtualBalance decimal.Decimal, ratio uint32, slippage decimal.Decimal) (*model.CollateralToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	col, err := c.mm.Registry().Add(token, virtualSupply, virtualBalance, ratio, slippage)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	c.journal.Record(model.EventAddCollateralToken, token, now, map[string]string{
		"virtual_supply":    col.VirtualSupply.String(),
		"virtual_balance":   col.VirtualBalance.String(),
		"reserve_ratio_ppm": strconv.FormatUint(uint64(col.ReserveRatio), 10),
		"slippage":          col.Slippage.String(),
	})
	return col, nil
}

func (c *Controller) UpdateCollateral(token common.Address, virtualSupply, virtualBalance decimal.Decimal, ratio uint32, slippage decimal.Decimal) (*model.CollateralToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	col, err := c.mm.Registry().Update(token, virtualSupply, virtualBalance, ratio, slippage)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	c.journal.Record(model.EventUpdateCollateralToken, token, now, map[string]string{
		"virtual_supply":    col.VirtualSupply.String(),
		"virtual_balance":   col.VirtualBalance.String(),
		"reserve_ratio_ppm": strconv.FormatUint(uint64(col.ReserveRatio), 10),
		"slippage":          col.Slippage.String(),
	})
	return col, nil
}

func (c *Controller) RemoveCollateral(token common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	if err := c.mm.Registry().Remove(token); err != nil {
		c.reject(err)
		return err
	}
	c.journal.Record(model.EventRemoveCollateralToken, token, now, nil)
	return nil
}

func (c *Controller) ListCollaterals() []*model.CollateralToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mm.Registry().All()
}

// --- tap ---

func (c *Controller) AddTappedToken(token common.Address, rate, floor decimal.Decimal) (*model.TapEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	entry, err := c.tap.Add(token, rate, floor, now)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	c.journal.Record(model.EventAddTappedToken, token, now, map[string]string{
		"rate":  entry.Rate.String(),
		"floor": entry.Floor.String(),
	})
	return entry, nil
}

// UpdateTappedToken clears elapsed batches first so the reserved-claims
// accounting the implicit withdrawal relies on is current.
func (c *Controller) UpdateTappedToken(token common.Address, rate, floor decimal.Decimal) (*model.TapEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	cleared, err := c.mm.AdvanceBatches(now)
	c.emitCleared(cleared, now)
	if err != nil {
		c.reject(err)
		return nil, err
	}

	entry, withdrawn, err := c.tap.Update(token, rate, floor, now)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	if withdrawn.Sign() > 0 {
		metrics.TapWithdrawals.Inc()
		c.journal.Record(model.EventWithdraw, token, now, map[string]string{"amount": withdrawn.String()})
	}
	c.journal.Record(model.EventUpdateTappedToken, token, now, map[string]string{
		"rate":  entry.Rate.String(),
		"floor": entry.Floor.String(),
	})
	return entry, nil
}

func (c *Controller) ResetTappedToken(token common.Address) (*model.TapEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	entry, err := c.tap.Reset(token, now)
	if err != nil {
		c.reject(err)
		return nil, err
	}
	c.journal.Record(model.EventResetTappedToken, token, now, nil)
	return entry, nil
}

func (c *Controller) RemoveTappedToken(token common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	if err := c.tap.Remove(token); err != nil {
		c.reject(err)
		return err
	}
	c.journal.Record(model.EventRemoveTappedToken, token, now, nil)
	return nil
}

func (c *Controller) GetTappedToken(token common.Address) (*model.TapEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tap.Get(token)
}

func (c *Controller) GetMaximumWithdrawal(token common.Address) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tap.MaximumWithdrawal(token, c.clock.Now())
}

// Withdraw clears elapsed batches first: collateral owed to sell claims is
// only reserved once the batch clears, and the tap must see it reserved.
func (c *Controller) Withdraw(token common.Address) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	cleared, err := c.mm.AdvanceBatches(now)
	c.emitCleared(cleared, now)
	if err != nil {
		c.reject(err)
		return decimal.Zero, err
	}

	amount, err := c.tap.Withdraw(token, now)
	if err != nil {
		c.reject(err)
		return decimal.Zero, err
	}
	metrics.TapWithdrawals.Inc()
	c.journal.Record(model.EventWithdraw, token, now, map[string]string{"amount": amount.String()})
	return amount, nil
}

// --- events ---

func (c *Controller) Journal() *EventJournal {
	return c.journal
}

func (c *Controller) emitCleared(cleared []*model.Batch, now int64) {
	for _, batch := range cleared {
		metrics.BatchesCleared.Inc()
		c.journal.Record(model.EventClearBatch, batch.Collateral, now, map[string]string{
			"batch_id":          strconv.FormatInt(batch.ID, 10),
			"total_buy_return":  batch.TotalBuyReturn.String(),
			"total_sell_return": batch.TotalSellReturn.String(),
		})
	}
}

func (c *Controller) reject(err error) {
	metrics.Rejects.WithLabelValues(string(apperrors.Wrap(err).Kind)).Inc()
}
