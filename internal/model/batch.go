package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Batch aggregates the buy and sell orders of one collateral over one window.
// Supply and Balance are snapshots taken when the batch was initialized; both
// buys and sells clear against them, so orders inside one window do not affect
// each other's price. ReserveRatio and Slippage are copied from the collateral
// config at open so later config changes leave historical batches valid.
type Batch struct {
	Collateral  common.Address `json:"collateral"`
	ID          int64          `json:"id"` // window start, unix seconds
	Initialized bool           `json:"initialized"`
	Cleared     bool           `json:"cleared"`

	Supply       decimal.Decimal `json:"supply"`
	Balance      decimal.Decimal `json:"balance"`
	ReserveRatio uint32          `json:"reserve_ratio_ppm"`
	Slippage     decimal.Decimal `json:"slippage"`

	TotalBuySpend   decimal.Decimal `json:"total_buy_spend"`
	TotalBuyReturn  decimal.Decimal `json:"total_buy_return"`
	TotalSellSpend  decimal.Decimal `json:"total_sell_spend"`
	TotalSellReturn decimal.Decimal `json:"total_sell_return"`

	Buyers  map[common.Address]decimal.Decimal `json:"-"`
	Sellers map[common.Address]decimal.Decimal `json:"-"`
}

// BatchRef identifies a batch across collaterals.
type BatchRef struct {
	Collateral common.Address `json:"collateral"`
	ID         int64          `json:"id"`
}
