package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TapEntry is the per-collateral withdrawal-rate configuration. Rate is in
// collateral units per second; Floor is the reserve balance that must never be
// tapped below. LastWithdrawal and LastTapUpdate are unix-second checkpoints.
type TapEntry struct {
	Token          common.Address  `json:"token"`
	Rate           decimal.Decimal `json:"rate"`
	Floor          decimal.Decimal `json:"floor"`
	LastWithdrawal int64           `json:"last_withdrawal"`
	LastTapUpdate  int64           `json:"last_tap_update"`
}
