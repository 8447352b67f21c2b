package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ETH is the sentinel collateral address for native ether.
var ETH = common.Address{}

// CollateralToken is the per-collateral curve configuration. VirtualSupply and
// VirtualBalance offset the real supply/balance to shape initial pricing;
// ReserveRatio is expressed in parts per million; Slippage bounds how far a
// batch's effective price may drift from the batch-open spot price (fraction,
// zero disables the check).
type CollateralToken struct {
	Token          common.Address  `json:"token"`
	Exists         bool            `json:"exists"`
	VirtualSupply  decimal.Decimal `json:"virtual_supply"`
	VirtualBalance decimal.Decimal `json:"virtual_balance"`
	ReserveRatio   uint32          `json:"reserve_ratio_ppm"`
	Slippage       decimal.Decimal `json:"slippage"`
}
